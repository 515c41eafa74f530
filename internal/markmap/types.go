// Package markmap projects a NodeTree into the nested JSON consumed by the
// markmap mind-map view.
package markmap

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PureNode is the format-agnostic markmap tree before ids, paths and fold
// state are assigned.
type PureNode struct {
	Content      string
	NodeID       string
	HeadingLevel int
	Children     []*PureNode
}

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type State struct {
	ID    int    `json:"id"`
	Depth int    `json:"depth"`
	Path  string `json:"path"`
	Key   string `json:"key"`
	Size  [2]int `json:"size"`
	Rect  Rect   `json:"rect"`
}

// Fold values. FoldRecursive folds the node and every descendant.
const (
	FoldNone      = 0
	FoldCollapsed = 1
	FoldRecursive = 2
)

type Payload struct {
	Fold                  int    `json:"fold,omitempty"`
	Path                  string `json:"path"`
	NodeID                string `json:"node_id"`
	HeadingLevel          int    `json:"heading_level,omitempty"`
	HasChildren           *bool  `json:"has_children,omitempty"`
	ChildrenLoaded        *bool  `json:"children_loaded,omitempty"`
	ChildrenCount         int    `json:"children_count,omitempty"`
	ShowChildrenIndicator *bool  `json:"show_children_indicator,omitempty"`
}

func (p *Payload) updateChildrenIndicator() {
	if p.HasChildren == nil || !*p.HasChildren {
		p.ShowChildrenIndicator = boolPtr(false)
		return
	}
	folded := p.Fold == FoldCollapsed || p.Fold == FoldRecursive
	lazy := p.ChildrenLoaded != nil && !*p.ChildrenLoaded
	p.ShowChildrenIndicator = boolPtr(folded || lazy)
}

type Node struct {
	Content  string  `json:"content"`
	Children []*Node `json:"children"`
	Payload  Payload `json:"payload"`
	State    State   `json:"state"`
}

// Find returns the first node in depth-first order whose payload node id
// matches.
func (n *Node) Find(nodeID string) *Node {
	if n.Payload.NodeID == nodeID {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(nodeID); found != nil {
			return found
		}
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }

type LoadMode int

const (
	LoadFull LoadMode = iota
	LoadLazy
	LoadOutline
)

func (m LoadMode) String() string {
	switch m {
	case LoadLazy:
		return "lazy"
	case LoadOutline:
		return "outline"
	default:
		return "full"
	}
}

// ParseLoadMode maps a stored name to a mode. Unrecognized names mean full.
func ParseLoadMode(name string) LoadMode {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lazy":
		return LoadLazy
	case "outline":
		return LoadOutline
	default:
		return LoadFull
	}
}

func (m LoadMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *LoadMode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("load mode: %w", err)
	}
	*m = ParseLoadMode(name)
	return nil
}

// Options drive folding and load-mode projection. InitialExpandLevel -1
// disables depth folding.
type Options struct {
	InitialExpandLevel int      `json:"initialExpandLevel"`
	LoadModeRoot       LoadMode `json:"loadModeRoot"`
	LoadModeChild      LoadMode `json:"loadModeChild"`
}

func DefaultOptions() Options {
	return Options{
		InitialExpandLevel: -1,
		LoadModeRoot:       LoadOutline,
		LoadModeChild:      LoadLazy,
	}
}
