package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lattice/api/internal/model"
)

// GetSetting returns nil when no row matches.
func (s *Store) GetSetting(ctx context.Context, q model.SettingQuery) (*model.UserSetting, error) {
	var row settingRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, user_id, scope, scope_id, namespace, key, value_json, updated_at
		FROM user_settings
		WHERE user_id=? AND scope=? AND scope_id=? AND namespace=? AND key=?
	`), q.UserID, string(q.Scope), q.ScopeID, q.Namespace, q.Key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	setting := row.toModel()
	return &setting, nil
}

// PutSetting inserts or overwrites the value addressed by setting's
// user, scope, scope id, namespace and key.
func (s *Store) PutSetting(ctx context.Context, setting model.UserSetting) (model.UserSetting, error) {
	if _, err := model.ParseSettingScope(string(setting.Scope)); err != nil {
		return model.UserSetting{}, err
	}
	if setting.Scope == model.ScopeGlobal {
		setting.ScopeID = ""
	}
	setting.UpdatedAt = time.Now().UTC()
	row := settingRow{
		ID:        uuid.NewString(),
		UserID:    setting.UserID,
		Scope:     string(setting.Scope),
		ScopeID:   setting.ScopeID,
		Namespace: setting.Namespace,
		Key:       setting.Key,
		ValueJSON: setting.ValueJSON,
		UpdatedAt: toMillis(setting.UpdatedAt),
	}
	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO user_settings (id, user_id, scope, scope_id, namespace, key, value_json, updated_at)
		VALUES (:id, :user_id, :scope, :scope_id, :namespace, :key, :value_json, :updated_at)
		ON CONFLICT (user_id, scope, scope_id, namespace, key)
		DO UPDATE SET value_json=excluded.value_json, updated_at=excluded.updated_at
	`, row); err != nil {
		return model.UserSetting{}, fmt.Errorf("put setting: %w", err)
	}
	stored, err := s.GetSetting(ctx, model.SettingQuery{
		UserID:    setting.UserID,
		Scope:     setting.Scope,
		ScopeID:   setting.ScopeID,
		Namespace: setting.Namespace,
		Key:       setting.Key,
	})
	if err != nil {
		return model.UserSetting{}, err
	}
	if stored == nil {
		return model.UserSetting{}, fmt.Errorf("put setting: row missing after upsert")
	}
	return *stored, nil
}

// ListSettings returns every setting of one user in a namespace.
func (s *Store) ListSettings(ctx context.Context, userID, namespace string) ([]model.UserSetting, error) {
	var rows []settingRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, user_id, scope, scope_id, namespace, key, value_json, updated_at
		FROM user_settings WHERE user_id=? AND namespace=?
		ORDER BY scope, scope_id, key
	`), userID, namespace); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make([]model.UserSetting, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
