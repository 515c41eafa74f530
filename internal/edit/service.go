// Package edit reads and writes the markdown of a single node or of the
// subtree below it, in place inside a stored document.
package edit

import (
	"context"
	"fmt"
	"strings"

	"lattice/api/internal/index"
	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/parser"
	"lattice/api/internal/render/markdown"
	"lattice/api/internal/tree"
)

type Mode string

const (
	// ModeNode edits the inline content of one node.
	ModeNode Mode = "node"
	// ModeSubtree edits a node together with everything below it.
	ModeSubtree Mode = "subtree"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeNode, "":
		return ModeNode, nil
	case ModeSubtree:
		return ModeSubtree, nil
	}
	return "", &model.ValidationError{Field: "mode", Message: "mode must be node or subtree"}
}

// Nodes is the slice of the store edits need.
type Nodes interface {
	Load(ctx context.Context, docID model.DocumentID) (model.NodeSnapshot, error)
	ReplaceNodes(ctx context.Context, remove []model.NodeID, snap model.NodeSnapshot) error
	ReplaceNodeText(ctx context.Context, remove []model.NodeID, text model.NodeText) error
}

// Saved is the document state after an edit.
type Saved struct {
	Snapshot model.NodeSnapshot
	Tree     *tree.NodeTree
	Markdown string
}

// Anchor maps a node to the line where its content starts in the outline
// text of an edit session.
type Anchor struct {
	NodeID model.NodeID `json:"nodeId"`
	Line   int          `json:"line"`
}

type Service struct {
	types      nodetype.Snapshot
	nodes      Nodes
	parser     *parser.Parser
	serializer *markdown.Serializer
}

func NewService(types nodetype.Snapshot, nodes Nodes) *Service {
	return &Service{
		types:      types,
		nodes:      nodes,
		parser:     parser.New(types),
		serializer: markdown.NewSerializer(types),
	}
}

func (s *Service) loadTree(ctx context.Context, docID model.DocumentID) (*tree.NodeTree, error) {
	snap, err := s.nodes.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	return tree.Build(snap)
}

// FetchMarkdown returns the inline markdown of a node, or the markdown of
// its whole subtree.
func (s *Service) FetchMarkdown(ctx context.Context, docID model.DocumentID, nodeID model.NodeID, mode Mode) (string, error) {
	t, err := s.loadTree(ctx, docID)
	if err != nil {
		return "", err
	}
	if _, ok := t.Node(nodeID); !ok {
		return "", fmt.Errorf("%w: %s", tree.ErrNodeNotFound, nodeID)
	}
	if mode == ModeSubtree {
		return s.serializer.SerializeNode(t, nodeID)
	}
	return s.serializer.Inline(t, nodeID)
}

// SaveMarkdown writes content back into the document and returns the
// reloaded document.
func (s *Service) SaveMarkdown(ctx context.Context, docID model.DocumentID, nodeID model.NodeID, mode Mode, content string) (Saved, error) {
	t, err := s.loadTree(ctx, docID)
	if err != nil {
		return Saved{}, err
	}
	rec, ok := t.Node(nodeID)
	if !ok {
		return Saved{}, fmt.Errorf("%w: %s", tree.ErrNodeNotFound, nodeID)
	}

	if mode == ModeSubtree {
		err = s.saveSubtree(ctx, t, rec, content)
	} else {
		err = s.saveNode(ctx, t, rec, content)
	}
	if err != nil {
		return Saved{}, err
	}

	snap, err := s.nodes.Load(ctx, docID)
	if err != nil {
		return Saved{}, err
	}
	after, err := tree.Build(snap)
	if err != nil {
		return Saved{}, err
	}
	md, err := s.serializer.Serialize(after)
	if err != nil {
		return Saved{}, err
	}
	return Saved{Snapshot: snap, Tree: after, Markdown: md}, nil
}

// saveNode drops the node's inline children, and the paragraphs of a list
// item, and stores content as the node's own text.
func (s *Service) saveNode(ctx context.Context, t *tree.NodeTree, rec *tree.NodeRecord, content string) error {
	parentKind, err := s.types.KindByID(rec.Base.NodeTypeID)
	if err != nil {
		return err
	}
	var remove []model.NodeID
	for _, child := range t.Children(rec.ID()) {
		childRec, ok := t.Node(child)
		if !ok {
			continue
		}
		kind, err := s.types.KindByID(childRec.Base.NodeTypeID)
		if err != nil {
			return err
		}
		if kind.IsInline() || (parentKind == model.KindListItem && kind == model.KindParagraph) {
			remove = append(remove, tree.Descendants(t, child)...)
		}
	}
	return s.nodes.ReplaceNodeText(ctx, remove, model.NodeText{NodeID: rec.ID(), Text: content})
}

// saveSubtree parses content, which must have exactly one root, and swaps it
// in for the existing subtree. The new root keeps the old id and parent.
func (s *Service) saveSubtree(ctx context.Context, t *tree.NodeTree, rec *tree.NodeRecord, content string) error {
	sink := index.NewCollectingSink()
	if _, err := s.parser.Parse(content, rec.Base.DocID, sink); err != nil {
		return err
	}
	snap := sink.Snapshot()

	var roots []model.NodeID
	for _, base := range snap.Bases {
		if base.IsRoot() {
			roots = append(roots, base.ID)
		}
	}
	switch len(roots) {
	case 0:
		return &model.ValidationError{Field: "content", Message: "markdown has no root node"}
	case 1:
	default:
		return &model.ValidationError{Field: "content", Message: "markdown has multiple root nodes"}
	}

	offset := 0
	if rec.Range != nil {
		offset = rec.Range.Start
	}
	remapRoot(&snap, roots[0], rec.ID(), rec.Base.ParentID, offset)
	return s.nodes.ReplaceNodes(ctx, tree.Descendants(t, rec.ID()), snap)
}

// remapRoot renames from to to in every record and shifts ranges by offset
// so the new subtree sorts where the old one was.
func remapRoot(snap *model.NodeSnapshot, from, to model.NodeID, parent *model.NodeID, offset int) {
	swap := func(id *model.NodeID) {
		if *id == from {
			*id = to
		}
	}
	for i := range snap.Bases {
		base := &snap.Bases[i]
		if base.ID == from {
			base.ID = to
			base.ParentID = parent
		} else if base.ParentID != nil && *base.ParentID == from {
			p := to
			base.ParentID = &p
		}
	}
	for i := range snap.Texts {
		swap(&snap.Texts[i].NodeID)
	}
	for i := range snap.Ranges {
		swap(&snap.Ranges[i].NodeID)
		snap.Ranges[i].Start += offset
		snap.Ranges[i].End += offset
	}
	for i := range snap.Headings {
		swap(&snap.Headings[i].NodeID)
	}
	for i := range snap.Lists {
		swap(&snap.Lists[i].NodeID)
	}
	for i := range snap.CodeBlocks {
		swap(&snap.CodeBlocks[i].NodeID)
	}
	for i := range snap.Tables {
		swap(&snap.Tables[i].NodeID)
	}
	for i := range snap.Images {
		swap(&snap.Images[i].NodeID)
	}
	for i := range snap.Links {
		swap(&snap.Links[i].NodeID)
	}
	for i := range snap.Tasks {
		swap(&snap.Tasks[i].NodeID)
	}
	for i := range snap.Wikis {
		swap(&snap.Wikis[i].NodeID)
		swap(&snap.Wikis[i].TargetNodeID)
	}
	for i := range snap.FootnoteDefinitions {
		swap(&snap.FootnoteDefinitions[i].NodeID)
	}
}

// Anchors numbers the lines of an outline of root: every node starts on
// its own line and takes as many lines as its inline markdown has.
func (s *Service) Anchors(ctx context.Context, docID model.DocumentID, root model.NodeID) ([]Anchor, error) {
	t, err := s.loadTree(ctx, docID)
	if err != nil {
		return nil, err
	}
	anchors := make([]Anchor, 0)
	if _, ok := t.Node(root); !ok {
		return anchors, nil
	}
	line := 1
	var visit func(id model.NodeID) error
	visit = func(id model.NodeID) error {
		text, err := s.serializer.Inline(t, id)
		if err != nil {
			return err
		}
		anchors = append(anchors, Anchor{NodeID: id, Line: line})
		line += strings.Count(text, "\n") + 1
		for _, child := range t.Children(id) {
			if err := visit(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}
	return anchors, nil
}
