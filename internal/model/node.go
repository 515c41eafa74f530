package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type NodeBase struct {
	ID         NodeID
	DocID      DocumentID
	ParentID   *NodeID
	NodeTypeID int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsRoot reports whether the node has no parent.
func (b NodeBase) IsRoot() bool { return b.ParentID == nil }

type NodeText struct {
	NodeID NodeID
	Text   string
}

// NodeRange is a half-open byte range into the source markdown of the parse
// that produced the node.
type NodeRange struct {
	NodeID    NodeID
	Start     int
	End       int
	UpdatedAt time.Time
}

type NodeHeading struct {
	NodeID NodeID
	Level  int
}

// NodeList carries both List (IsItem false) and ListItem (IsItem true)
// attributes.
type NodeList struct {
	NodeID   NodeID
	Ordering int
	IsItem   bool
}

type NodeTable struct {
	NodeID     NodeID
	Alignments []Alignment
}

// AlignmentsJSON encodes the alignment list the way it is stored.
func (t NodeTable) AlignmentsJSON() string {
	values := make([]int, len(t.Alignments))
	for i, a := range t.Alignments {
		values[i] = int(a)
	}
	raw, _ := json.Marshal(values)
	return string(raw)
}

func ParseAlignmentsJSON(raw string) ([]Alignment, error) {
	if raw == "" {
		return nil, nil
	}
	var values []int
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode table alignments: %w", err)
	}
	out := make([]Alignment, len(values))
	for i, v := range values {
		if v < int(AlignNone) || v > int(AlignRight) {
			return nil, fmt.Errorf("decode table alignments: value %d out of range", v)
		}
		out[i] = Alignment(v)
	}
	return out, nil
}

type NodeLink struct {
	NodeID   NodeID
	Href     string
	Title    string
	LinkType LinkKind
	RefID    string
}

type NodeImage struct {
	NodeID NodeID
	Src    string
	Alt    *string
	Title  string
}

type NodeTask struct {
	NodeID  NodeID
	Checked bool
}

type NodeCodeBlock struct {
	NodeID   NodeID
	Language *string
}

type NodeFootnoteDefinition struct {
	NodeID NodeID
	Label  string
}

type NodeWiki struct {
	NodeID       NodeID
	TargetNodeID NodeID
	DisplayText  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NodeSnapshot is every flat record of one document, as loaded from storage
// or collected from a parse.
type NodeSnapshot struct {
	Bases               []NodeBase
	Texts               []NodeText
	Ranges              []NodeRange
	Headings            []NodeHeading
	Lists               []NodeList
	CodeBlocks          []NodeCodeBlock
	Tables              []NodeTable
	Images              []NodeImage
	Links               []NodeLink
	Tasks               []NodeTask
	Wikis               []NodeWiki
	FootnoteDefinitions []NodeFootnoteDefinition
}

// NodeIDs lists the ids of all bases in input order.
func (s NodeSnapshot) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(s.Bases))
	for _, base := range s.Bases {
		ids = append(ids, base.ID)
	}
	return ids
}
