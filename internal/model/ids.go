// Package model holds the node data model shared by the parser, the tree
// builder, the renderers and the storage layer.
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeID identifies one node. Ids are UUIDv7 so creation order can be
// recovered from the id itself.
type NodeID struct{ uuid.UUID }

// DocumentID identifies one markdown document.
type DocumentID struct{ uuid.UUID }

type WorkspaceID struct{ uuid.UUID }

type FolderID struct{ uuid.UUID }

func NewNodeID() NodeID { return NodeID{newV7()} }

func NewDocumentID() DocumentID { return DocumentID{newV7()} }

func NewWorkspaceID() WorkspaceID { return WorkspaceID{newV7()} }

func NewFolderID() FolderID { return FolderID{newV7()} }

func newV7() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func ParseNodeID(raw string) (NodeID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return NodeID{}, &ValidationError{Field: "node_id", Message: fmt.Sprintf("invalid node id %q", raw)}
	}
	return NodeID{id}, nil
}

func ParseDocumentID(raw string) (DocumentID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return DocumentID{}, &ValidationError{Field: "document_id", Message: fmt.Sprintf("invalid document id %q", raw)}
	}
	return DocumentID{id}, nil
}

func ParseWorkspaceID(raw string) (WorkspaceID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return WorkspaceID{}, &ValidationError{Field: "workspace_id", Message: fmt.Sprintf("invalid workspace id %q", raw)}
	}
	return WorkspaceID{id}, nil
}

func ParseFolderID(raw string) (FolderID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return FolderID{}, &ValidationError{Field: "folder_id", Message: fmt.Sprintf("invalid folder id %q", raw)}
	}
	return FolderID{id}, nil
}

// IsZero reports whether the id was never assigned.
func (id NodeID) IsZero() bool { return id.UUID == uuid.Nil }

func (id DocumentID) IsZero() bool { return id.UUID == uuid.Nil }
