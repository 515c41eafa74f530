package store

import (
	"database/sql"
	"fmt"

	"lattice/api/internal/model"
)

// Row types mirror the tables one to one; ids are stored as text and
// timestamps as unix milliseconds so both drivers agree on the encoding.

type nodeRow struct {
	ID         string         `db:"id"`
	DocID      string         `db:"doc_id"`
	ParentID   sql.NullString `db:"parent_id"`
	NodeTypeID int64          `db:"node_type_id"`
	CreatedAt  int64          `db:"created_at"`
	UpdatedAt  int64          `db:"updated_at"`
}

type textRow struct {
	NodeID string `db:"node_id"`
	Text   string `db:"text"`
}

type rangeRow struct {
	NodeID    string `db:"node_id"`
	Start     int64  `db:"range_start"`
	End       int64  `db:"range_end"`
	UpdatedAt int64  `db:"updated_at"`
}

type headingRow struct {
	NodeID string `db:"node_id"`
	Level  int    `db:"level"`
}

type listRow struct {
	NodeID   string `db:"node_id"`
	Ordering int    `db:"ordering"`
	IsItem   bool   `db:"is_item"`
}

type codeBlockRow struct {
	NodeID   string         `db:"node_id"`
	Language sql.NullString `db:"language"`
}

type tableRow struct {
	NodeID    string `db:"node_id"`
	AlignJSON string `db:"align_json"`
}

type imageRow struct {
	NodeID string         `db:"node_id"`
	Src    string         `db:"src"`
	Alt    sql.NullString `db:"alt"`
	Title  string         `db:"title"`
}

type linkRow struct {
	NodeID   string `db:"node_id"`
	Href     string `db:"href"`
	Title    string `db:"title"`
	LinkType string `db:"link_type"`
	RefID    string `db:"ref_id"`
}

type taskRow struct {
	NodeID  string `db:"node_id"`
	Checked bool   `db:"checked"`
}

type wikiRow struct {
	NodeID       string `db:"node_id"`
	TargetNodeID string `db:"target_node_id"`
	DisplayText  string `db:"display_text"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

type footnoteRow struct {
	NodeID string `db:"node_id"`
	Label  string `db:"label"`
}

type workspaceRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

type folderRow struct {
	ID          string `db:"id"`
	WorkspaceID string `db:"workspace_id"`
	RootPath    string `db:"root_path"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

type documentRow struct {
	ID          string `db:"id"`
	FolderID    string `db:"folder_id"`
	Path        string `db:"path"`
	Title       string `db:"title"`
	ContentHash string `db:"content_hash"`
	Lang        string `db:"lang"`
	Ext         string `db:"ext"`
	UpdatedAt   int64  `db:"updated_at"`
}

type settingRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Scope     string `db:"scope"`
	ScopeID   string `db:"scope_id"`
	Namespace string `db:"namespace"`
	Key       string `db:"key"`
	ValueJSON string `db:"value_json"`
	UpdatedAt int64  `db:"updated_at"`
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func parseNodeID(raw string) (model.NodeID, error) {
	id, err := model.ParseNodeID(raw)
	if err != nil {
		return model.NodeID{}, fmt.Errorf("stored node id: %w", err)
	}
	return id, nil
}

func (r nodeRow) toModel() (model.NodeBase, error) {
	id, err := parseNodeID(r.ID)
	if err != nil {
		return model.NodeBase{}, err
	}
	docID, err := model.ParseDocumentID(r.DocID)
	if err != nil {
		return model.NodeBase{}, fmt.Errorf("stored document id: %w", err)
	}
	base := model.NodeBase{
		ID:         id,
		DocID:      docID,
		NodeTypeID: r.NodeTypeID,
		CreatedAt:  fromMillis(r.CreatedAt),
		UpdatedAt:  fromMillis(r.UpdatedAt),
	}
	if r.ParentID.Valid {
		parent, err := parseNodeID(r.ParentID.String)
		if err != nil {
			return model.NodeBase{}, err
		}
		base.ParentID = &parent
	}
	return base, nil
}

func newNodeRow(b model.NodeBase) nodeRow {
	row := nodeRow{
		ID:         b.ID.String(),
		DocID:      b.DocID.String(),
		NodeTypeID: b.NodeTypeID,
		CreatedAt:  toMillis(b.CreatedAt),
		UpdatedAt:  toMillis(b.UpdatedAt),
	}
	if b.ParentID != nil {
		row.ParentID = sql.NullString{String: b.ParentID.String(), Valid: true}
	}
	return row
}

func (r workspaceRow) toModel() (model.Workspace, error) {
	id, err := model.ParseWorkspaceID(r.ID)
	if err != nil {
		return model.Workspace{}, err
	}
	return model.Workspace{ID: id, Name: r.Name, CreatedAt: fromMillis(r.CreatedAt), UpdatedAt: fromMillis(r.UpdatedAt)}, nil
}

func (r folderRow) toModel() (model.Folder, error) {
	id, err := model.ParseFolderID(r.ID)
	if err != nil {
		return model.Folder{}, err
	}
	ws, err := model.ParseWorkspaceID(r.WorkspaceID)
	if err != nil {
		return model.Folder{}, err
	}
	return model.Folder{
		ID:          id,
		WorkspaceID: ws,
		RootPath:    r.RootPath,
		CreatedAt:   fromMillis(r.CreatedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}, nil
}

func (r documentRow) toModel() (model.Document, error) {
	id, err := model.ParseDocumentID(r.ID)
	if err != nil {
		return model.Document{}, err
	}
	folder, err := model.ParseFolderID(r.FolderID)
	if err != nil {
		return model.Document{}, err
	}
	return model.Document{
		ID:          id,
		FolderID:    folder,
		Path:        r.Path,
		Title:       r.Title,
		ContentHash: r.ContentHash,
		Lang:        r.Lang,
		Ext:         r.Ext,
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}, nil
}

func (r settingRow) toModel() model.UserSetting {
	return model.UserSetting{
		ID:        r.ID,
		UserID:    r.UserID,
		Scope:     model.SettingScope(r.Scope),
		ScopeID:   r.ScopeID,
		Namespace: r.Namespace,
		Key:       r.Key,
		ValueJSON: r.ValueJSON,
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
}
