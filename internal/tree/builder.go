package tree

import (
	"fmt"
	"sort"

	"lattice/api/internal/model"
)

type (
	AssembleFunc func(snapshot model.NodeSnapshot) (map[model.NodeID]*NodeRecord, []model.NodeID, error)
	LinkFunc     func(nodes map[model.NodeID]*NodeRecord, order []model.NodeID) ([]model.NodeID, map[model.NodeID][]model.NodeID)
	OrderFunc    func(tree *NodeTree)
)

// Builder composes the three build steps; each may be swapped independently.
type Builder struct {
	Assemble AssembleFunc
	Link     LinkFunc
	Order    OrderFunc
}

func NewBuilder() Builder {
	return Builder{Assemble: Assemble, Link: Link, Order: Order}
}

// Build is deterministic: the same snapshot always yields the same root and
// child order.
func (b Builder) Build(snapshot model.NodeSnapshot) (*NodeTree, error) {
	nodes, order, err := b.Assemble(snapshot)
	if err != nil {
		return nil, err
	}
	roots, children := b.Link(nodes, order)
	t := &NodeTree{Roots: roots, NodesByID: nodes, ChildrenByID: children}
	b.Order(t)
	return t, nil
}

// Build runs the default builder.
func Build(snapshot model.NodeSnapshot) (*NodeTree, error) {
	return NewBuilder().Build(snapshot)
}

// Assemble joins every side record onto its NodeBase. order is the base input
// order, used to break ties later.
func Assemble(snapshot model.NodeSnapshot) (map[model.NodeID]*NodeRecord, []model.NodeID, error) {
	nodes := make(map[model.NodeID]*NodeRecord, len(snapshot.Bases))
	order := make([]model.NodeID, 0, len(snapshot.Bases))
	for _, base := range snapshot.Bases {
		if _, dup := nodes[base.ID]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate node %s", ErrInconsistent, base.ID)
		}
		nodes[base.ID] = &NodeRecord{Base: base}
		order = append(order, base.ID)
	}

	lookup := func(table string, id model.NodeID) (*NodeRecord, error) {
		rec, ok := nodes[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s references missing node %s", ErrInconsistent, table, id)
		}
		return rec, nil
	}

	for i := range snapshot.Texts {
		rec, err := lookup("text", snapshot.Texts[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		value := snapshot.Texts[i].Text
		rec.Text = &value
	}
	for i := range snapshot.Ranges {
		rec, err := lookup("range", snapshot.Ranges[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		rec.Range = &snapshot.Ranges[i]
	}
	for i := range snapshot.Headings {
		rec, err := lookup("heading", snapshot.Headings[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		rec.Heading = &snapshot.Headings[i]
	}
	for i := range snapshot.Lists {
		rec, err := lookup("list", snapshot.Lists[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		rec.List = &snapshot.Lists[i]
	}
	for i := range snapshot.CodeBlocks {
		rec, err := lookup("code_block", snapshot.CodeBlocks[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		rec.CodeBlock = &snapshot.CodeBlocks[i]
	}
	for i := range snapshot.Tables {
		rec, err := lookup("table", snapshot.Tables[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		rec.Table = &snapshot.Tables[i]
	}
	for i := range snapshot.Images {
		rec, err := lookup("image", snapshot.Images[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		rec.Image = &snapshot.Images[i]
	}
	for i := range snapshot.Links {
		rec, err := lookup("link", snapshot.Links[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		rec.Link = &snapshot.Links[i]
	}
	for i := range snapshot.Tasks {
		rec, err := lookup("task", snapshot.Tasks[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		rec.Task = &snapshot.Tasks[i]
	}
	for i := range snapshot.Wikis {
		rec, err := lookup("wiki", snapshot.Wikis[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		rec.Wiki = &snapshot.Wikis[i]
	}
	for i := range snapshot.FootnoteDefinitions {
		rec, err := lookup("footnote_definition", snapshot.FootnoteDefinitions[i].NodeID)
		if err != nil {
			return nil, nil, err
		}
		rec.FootnoteDefinition = &snapshot.FootnoteDefinitions[i]
	}
	return nodes, order, nil
}

// Link groups nodes by parent. A node whose parent is absent from the arena
// is treated as a root.
func Link(nodes map[model.NodeID]*NodeRecord, order []model.NodeID) ([]model.NodeID, map[model.NodeID][]model.NodeID) {
	roots := make([]model.NodeID, 0)
	children := make(map[model.NodeID][]model.NodeID)
	for _, id := range order {
		rec := nodes[id]
		if rec.Base.ParentID == nil {
			roots = append(roots, id)
			continue
		}
		parent := *rec.Base.ParentID
		if _, ok := nodes[parent]; !ok {
			roots = append(roots, id)
			continue
		}
		children[parent] = append(children[parent], id)
	}
	return roots, children
}

// Order sorts roots and every child list by range start. Nodes without a
// range go last; ties keep their input order.
func Order(t *NodeTree) {
	sortIDs(t.Roots, t.NodesByID)
	for parent := range t.ChildrenByID {
		sortIDs(t.ChildrenByID[parent], t.NodesByID)
	}
}

func sortIDs(ids []model.NodeID, nodes map[model.NodeID]*NodeRecord) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := nodes[ids[i]].Range, nodes[ids[j]].Range
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Start < b.Start
		}
	})
}
