// Package tree assembles flat node records into an ordered, read-only
// NodeTree. The tree is an arena of records keyed by id plus a separately
// computed adjacency map.
package tree

import (
	"context"
	"errors"

	"lattice/api/internal/model"
)

var (
	// ErrInconsistent marks a snapshot whose records reference nodes that are
	// not in it.
	ErrInconsistent = errors.New("node snapshot inconsistent")
	ErrNodeNotFound = errors.New("node not found")
)

// NodeLoader loads every flat record of one document.
type NodeLoader interface {
	Load(ctx context.Context, docID model.DocumentID) (model.NodeSnapshot, error)
}

// NodeRecord bundles a NodeBase with its optional side records.
type NodeRecord struct {
	Base               model.NodeBase
	Text               *string
	Range              *model.NodeRange
	Heading            *model.NodeHeading
	List               *model.NodeList
	CodeBlock          *model.NodeCodeBlock
	Table              *model.NodeTable
	Image              *model.NodeImage
	Link               *model.NodeLink
	Task               *model.NodeTask
	Wiki               *model.NodeWiki
	FootnoteDefinition *model.NodeFootnoteDefinition
}

func (r *NodeRecord) ID() model.NodeID { return r.Base.ID }

// TextValue is the node's own text, or "" when it has none.
func (r *NodeRecord) TextValue() string {
	if r.Text == nil {
		return ""
	}
	return *r.Text
}

type NodeTree struct {
	Roots        []model.NodeID
	NodesByID    map[model.NodeID]*NodeRecord
	ChildrenByID map[model.NodeID][]model.NodeID
}

func (t *NodeTree) Node(id model.NodeID) (*NodeRecord, bool) {
	rec, ok := t.NodesByID[id]
	return rec, ok
}

func (t *NodeTree) Children(id model.NodeID) []model.NodeID {
	return t.ChildrenByID[id]
}

// Walk visits every node depth first in tree order. Returning false from fn
// skips the node's children.
func (t *NodeTree) Walk(fn func(rec *NodeRecord, depth int) bool) {
	var visit func(id model.NodeID, depth int)
	visit = func(id model.NodeID, depth int) {
		rec, ok := t.NodesByID[id]
		if !ok {
			return
		}
		if !fn(rec, depth) {
			return
		}
		for _, child := range t.ChildrenByID[id] {
			visit(child, depth+1)
		}
	}
	for _, root := range t.Roots {
		visit(root, 0)
	}
}

// Len is the number of nodes in the arena.
func (t *NodeTree) Len() int { return len(t.NodesByID) }
