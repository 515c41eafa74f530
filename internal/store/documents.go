package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"lattice/api/internal/model"
)

func (s *Store) CreateWorkspace(ctx context.Context, name string) (model.Workspace, error) {
	now := time.Now().UTC()
	row := workspaceRow{ID: model.NewWorkspaceID().String(), Name: name, CreatedAt: toMillis(now), UpdatedAt: toMillis(now)}
	if _, err := s.db.NamedExecContext(ctx, `INSERT INTO workspaces (id, name, created_at, updated_at)
		VALUES (:id, :name, :created_at, :updated_at)`, row); err != nil {
		return model.Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	return row.toModel()
}

func (s *Store) GetWorkspace(ctx context.Context, id model.WorkspaceID) (model.Workspace, error) {
	var row workspaceRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT id, name, created_at, updated_at FROM workspaces WHERE id=?`), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return model.Workspace{}, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Workspace{}, fmt.Errorf("get workspace: %w", err)
	}
	return row.toModel()
}

func (s *Store) CreateFolder(ctx context.Context, workspaceID model.WorkspaceID, rootPath string) (model.Folder, error) {
	now := time.Now().UTC()
	row := folderRow{
		ID:          model.NewFolderID().String(),
		WorkspaceID: workspaceID.String(),
		RootPath:    rootPath,
		CreatedAt:   toMillis(now),
		UpdatedAt:   toMillis(now),
	}
	if _, err := s.db.NamedExecContext(ctx, `INSERT INTO folders (id, workspace_id, root_path, created_at, updated_at)
		VALUES (:id, :workspace_id, :root_path, :created_at, :updated_at)`, row); err != nil {
		return model.Folder{}, fmt.Errorf("insert folder: %w", err)
	}
	return row.toModel()
}

func (s *Store) GetFolder(ctx context.Context, id model.FolderID) (model.Folder, error) {
	var row folderRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, workspace_id, root_path, created_at, updated_at FROM folders WHERE id=?
	`), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return model.Folder{}, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Folder{}, fmt.Errorf("get folder: %w", err)
	}
	return row.toModel()
}

// CreateDocument registers a document row. The markdown itself lives in
// document source storage under doc.Path.
func (s *Store) CreateDocument(ctx context.Context, doc model.Document) (model.Document, error) {
	if err := model.ValidateDocumentPath(doc.Path); err != nil {
		return model.Document{}, err
	}
	if err := model.ValidateTitle(doc.Title); err != nil {
		return model.Document{}, err
	}
	if doc.ID.IsZero() {
		doc.ID = model.NewDocumentID()
	}
	if doc.Ext == "" {
		doc.Ext = "md"
	}
	doc.UpdatedAt = time.Now().UTC()
	row := documentRow{
		ID:          doc.ID.String(),
		FolderID:    doc.FolderID.String(),
		Path:        doc.Path,
		Title:       doc.Title,
		ContentHash: doc.ContentHash,
		Lang:        doc.Lang,
		Ext:         doc.Ext,
		UpdatedAt:   toMillis(doc.UpdatedAt),
	}
	if _, err := s.db.NamedExecContext(ctx, `INSERT INTO documents (id, folder_id, path, title, content_hash, lang, ext, updated_at)
		VALUES (:id, :folder_id, :path, :title, :content_hash, :lang, :ext, :updated_at)`, row); err != nil {
		return model.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return row.toModel()
}

func (s *Store) GetDocument(ctx context.Context, id model.DocumentID) (model.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, folder_id, path, title, content_hash, lang, ext, updated_at
		FROM documents WHERE id=?
	`), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("get document: %w", err)
	}
	return row.toModel()
}

func (s *Store) ListDocuments(ctx context.Context) ([]model.Document, error) {
	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, folder_id, path, title, content_hash, lang, ext, updated_at
		FROM documents ORDER BY id
	`); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]model.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toModel()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// UpdateDocumentHash records the hash of the markdown that was last indexed.
func (s *Store) UpdateDocumentHash(ctx context.Context, id model.DocumentID, hash string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE documents SET content_hash=?, updated_at=? WHERE id=?`),
		hash, time.Now().UnixMilli(), id.String())
	if err != nil {
		return fmt.Errorf("update document hash: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes the document row and all of its node records.
func (s *Store) DeleteDocument(ctx context.Context, id model.DocumentID) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := deleteDocumentNodes(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM documents WHERE id=?`), id.String()); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		return nil
	})
}

// WorkspaceOfDocument resolves the workspace through the document's folder.
// A document without a folder row yields nil.
func (s *Store) WorkspaceOfDocument(ctx context.Context, docID model.DocumentID) (*model.WorkspaceID, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, s.db.Rebind(`
		SELECT f.workspace_id FROM documents d
		JOIN folders f ON f.id = d.folder_id
		WHERE d.id=?
	`), docID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	id, err := model.ParseWorkspaceID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
