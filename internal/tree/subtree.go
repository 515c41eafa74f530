package tree

import (
	"fmt"

	"lattice/api/internal/model"
)

// Subtree restricts t to root and its descendants. The result shares records
// with t and has root as its only root.
func Subtree(t *NodeTree, root model.NodeID) (*NodeTree, error) {
	if _, ok := t.NodesByID[root]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, root)
	}
	nodes := make(map[model.NodeID]*NodeRecord)
	children := make(map[model.NodeID][]model.NodeID)
	queue := []model.NodeID{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		rec, ok := t.NodesByID[id]
		if !ok {
			continue
		}
		nodes[id] = rec
		kids := t.ChildrenByID[id]
		if len(kids) == 0 {
			continue
		}
		kept := make([]model.NodeID, 0, len(kids))
		for _, child := range kids {
			if _, ok := t.NodesByID[child]; ok {
				kept = append(kept, child)
				queue = append(queue, child)
			}
		}
		children[id] = kept
	}
	return &NodeTree{Roots: []model.NodeID{root}, NodesByID: nodes, ChildrenByID: children}, nil
}

// Descendants lists root and every node below it in breadth-first order.
func Descendants(t *NodeTree, root model.NodeID) []model.NodeID {
	if _, ok := t.NodesByID[root]; !ok {
		return nil
	}
	out := []model.NodeID{root}
	for i := 0; i < len(out); i++ {
		out = append(out, t.ChildrenByID[out[i]]...)
	}
	return out
}
