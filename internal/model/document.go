package model

import (
	"strings"
	"time"
)

type Workspace struct {
	ID        WorkspaceID `json:"id"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Folder roots a set of documents inside a workspace.
type Folder struct {
	ID          FolderID    `json:"id"`
	WorkspaceID WorkspaceID `json:"workspaceId"`
	RootPath    string      `json:"rootPath"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Document points at a markdown source. Path is relative to the source
// storage root; ContentHash is the hash of the last indexed markdown.
type Document struct {
	ID          DocumentID `json:"id"`
	FolderID    FolderID   `json:"folderId"`
	Path        string     `json:"path"`
	Title       string     `json:"title"`
	ContentHash string     `json:"contentHash"`
	Lang        string     `json:"lang"`
	Ext         string     `json:"ext"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func ValidateDocumentPath(path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return &ValidationError{Field: "path", Message: "document path is required"}
	}
	if strings.HasPrefix(clean, "/") || strings.Contains(clean, "..") {
		return &ValidationError{Field: "path", Message: "document path must be relative"}
	}
	return nil
}

func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	return nil
}
