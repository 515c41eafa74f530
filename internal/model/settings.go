package model

import "time"

type SettingScope string

const (
	ScopeDocument  SettingScope = "document"
	ScopeWorkspace SettingScope = "workspace"
	ScopeGlobal    SettingScope = "global"
)

const NamespaceMarkmap = "markmap"

func ParseSettingScope(raw string) (SettingScope, error) {
	switch SettingScope(raw) {
	case ScopeDocument, ScopeWorkspace, ScopeGlobal:
		return SettingScope(raw), nil
	}
	return "", &ValidationError{Field: "scope", Message: "must be document, workspace or global"}
}

// SettingQuery addresses one stored setting. ScopeID is empty for the global
// scope; UserID is empty for settings shared by every user.
type SettingQuery struct {
	UserID    string
	Scope     SettingScope
	ScopeID   string
	Namespace string
	Key       string
}

type UserSetting struct {
	ID        string       `db:"id" json:"id"`
	UserID    string       `db:"user_id" json:"userId"`
	Scope     SettingScope `db:"scope" json:"scope"`
	ScopeID   string       `db:"scope_id" json:"scopeId"`
	Namespace string       `db:"namespace" json:"namespace"`
	Key       string       `db:"key" json:"key"`
	ValueJSON string       `db:"value_json" json:"valueJson"`
	UpdatedAt time.Time    `db:"-" json:"updatedAt"`
}
