package index

import (
	"fmt"
	"time"

	"lattice/api/internal/model"
)

// CollectingSink gathers parser output into a NodeSnapshot ready to be
// applied to storage or handed to the tree builder.
type CollectingSink struct {
	snapshot  model.NodeSnapshot
	baseIndex map[model.NodeID]int
	now       func() time.Time
}

func NewCollectingSink() *CollectingSink {
	return &CollectingSink{
		baseIndex: make(map[model.NodeID]int),
		now:       time.Now,
	}
}

func (s *CollectingSink) PushBase(base model.NodeBase) error {
	s.baseIndex[base.ID] = len(s.snapshot.Bases)
	s.snapshot.Bases = append(s.snapshot.Bases, base)
	return nil
}

func (s *CollectingSink) PushNodeType(id model.NodeID, nodeType model.NodeType) error {
	switch nt := nodeType.(type) {
	case model.HeadingType:
		s.snapshot.Headings = append(s.snapshot.Headings, model.NodeHeading{NodeID: id, Level: nt.Level})
	case model.ListType:
		s.snapshot.Lists = append(s.snapshot.Lists, model.NodeList{NodeID: id, Ordering: nt.Order, IsItem: nt.IsItem})
	case model.CodeBlockType:
		s.snapshot.CodeBlocks = append(s.snapshot.CodeBlocks, model.NodeCodeBlock{NodeID: id, Language: nt.Language})
	case model.TableType:
		s.snapshot.Tables = append(s.snapshot.Tables, model.NodeTable{NodeID: id, Alignments: nt.Alignments})
	case model.ImageType:
		s.snapshot.Images = append(s.snapshot.Images, model.NodeImage{NodeID: id, Src: nt.Src, Alt: nt.Alt, Title: nt.Title})
	case model.LinkType:
		s.snapshot.Links = append(s.snapshot.Links, model.NodeLink{NodeID: id, Href: nt.Href, Title: nt.Title, LinkType: nt.LinkKind, RefID: nt.RefID})
	case model.TaskType:
		s.snapshot.Tasks = append(s.snapshot.Tasks, model.NodeTask{NodeID: id, Checked: nt.Checked})
	case model.FootnoteDefinitionType:
		s.snapshot.FootnoteDefinitions = append(s.snapshot.FootnoteDefinitions, model.NodeFootnoteDefinition{NodeID: id, Label: nt.Label})
	case model.WikiType:
		now := s.now()
		s.snapshot.Wikis = append(s.snapshot.Wikis, model.NodeWiki{
			NodeID:       id,
			TargetNodeID: nt.Target,
			DisplayText:  nt.Display,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return nil
}

func (s *CollectingSink) PushText(text model.NodeText) error {
	s.snapshot.Texts = append(s.snapshot.Texts, text)
	return nil
}

func (s *CollectingSink) PushRange(r model.NodeRange) error {
	s.snapshot.Ranges = append(s.snapshot.Ranges, r)
	return nil
}

func (s *CollectingSink) UpdateBaseType(id model.NodeID, nodeTypeID int64) error {
	idx, ok := s.baseIndex[id]
	if !ok {
		return fmt.Errorf("update base type: node %s not collected", id)
	}
	s.snapshot.Bases[idx].NodeTypeID = nodeTypeID
	return nil
}

func (s *CollectingSink) Flush() error { return nil }

// Snapshot returns everything collected so far.
func (s *CollectingSink) Snapshot() model.NodeSnapshot {
	return s.snapshot
}
