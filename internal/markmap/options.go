package markmap

import (
	"context"
	"encoding/json"
	"fmt"

	"lattice/api/internal/logger"
	"lattice/api/internal/model"
)

const (
	KeyInitialExpandLevel = "initial_expand_level"
	KeyLoadModeRoot       = "load_mode.root"
	KeyLoadModeChild      = "load_mode.child"
)

// OptionsProvider resolves the options in effect for one document.
type OptionsProvider interface {
	Resolve(ctx context.Context, userID string, docID model.DocumentID) (Options, error)
}

// SettingsReader returns a stored setting, or nil when none is stored.
type SettingsReader interface {
	GetSetting(ctx context.Context, q model.SettingQuery) (*model.UserSetting, error)
}

// WorkspaceResolver finds the workspace owning a document, or nil when the
// document or its folder is unknown.
type WorkspaceResolver interface {
	WorkspaceOfDocument(ctx context.Context, docID model.DocumentID) (*model.WorkspaceID, error)
}

// SettingsOptions cascades document, workspace and global settings. The
// first decodable value wins; malformed values are logged and skipped.
type SettingsOptions struct {
	settings   SettingsReader
	workspaces WorkspaceResolver
	log        *logger.Logger
}

func NewSettingsOptions(settings SettingsReader, workspaces WorkspaceResolver, log *logger.Logger) *SettingsOptions {
	if log == nil {
		log = logger.Discard()
	}
	return &SettingsOptions{settings: settings, workspaces: workspaces, log: log}
}

type scopeRef struct {
	scope model.SettingScope
	id    string
}

func (p *SettingsOptions) Resolve(ctx context.Context, userID string, docID model.DocumentID) (Options, error) {
	opts := DefaultOptions()
	scopes := []scopeRef{{scope: model.ScopeDocument, id: docID.String()}}
	if p.workspaces != nil {
		ws, err := p.workspaces.WorkspaceOfDocument(ctx, docID)
		if err != nil {
			return opts, fmt.Errorf("resolve workspace: %w", err)
		}
		if ws != nil {
			scopes = append(scopes, scopeRef{scope: model.ScopeWorkspace, id: ws.String()})
		}
	}
	scopes = append(scopes, scopeRef{scope: model.ScopeGlobal})

	if err := p.lookup(ctx, userID, scopes, KeyInitialExpandLevel, func(raw string) error {
		var level int
		if err := json.Unmarshal([]byte(raw), &level); err != nil {
			return err
		}
		opts.InitialExpandLevel = level
		return nil
	}); err != nil {
		return opts, err
	}

	for key, target := range map[string]*LoadMode{
		KeyLoadModeRoot:  &opts.LoadModeRoot,
		KeyLoadModeChild: &opts.LoadModeChild,
	} {
		if err := p.lookup(ctx, userID, scopes, key, func(raw string) error {
			var name string
			if err := json.Unmarshal([]byte(raw), &name); err != nil {
				return err
			}
			*target = ParseLoadMode(name)
			return nil
		}); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func (p *SettingsOptions) lookup(ctx context.Context, userID string, scopes []scopeRef, key string, decode func(raw string) error) error {
	for _, s := range scopes {
		setting, err := p.settings.GetSetting(ctx, model.SettingQuery{
			UserID:    userID,
			Scope:     s.scope,
			ScopeID:   s.id,
			Namespace: model.NamespaceMarkmap,
			Key:       key,
		})
		if err != nil {
			return fmt.Errorf("load setting %s: %w", key, err)
		}
		if setting == nil {
			continue
		}
		if err := decode(setting.ValueJSON); err != nil {
			p.log.SettingDecodeFailed(string(s.scope), key, err)
			continue
		}
		return nil
	}
	return nil
}

// StaticOptions always returns the same options.
type StaticOptions Options

func (s StaticOptions) Resolve(context.Context, string, model.DocumentID) (Options, error) {
	return Options(s), nil
}
