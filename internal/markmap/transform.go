package markmap

import (
	"fmt"
	"strings"

	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/render/markdown"
	"lattice/api/internal/tree"
)

// VirtualRootID is the node id of the wrapper root used when a document has
// more than one top-level entry.
const VirtualRootID = "root"

const bodyLevel = 7

// HTMLRenderer renders a markdown fragment to HTML.
type HTMLRenderer interface {
	Render(markdown string) (string, error)
}

type nodeKind int

const (
	kindOther nodeKind = iota
	kindHeading
	kindList
	kindListItem
	kindTable
)

// Transformer re-nests a NodeTree by heading level.
type Transformer struct {
	types      nodetype.Snapshot
	inline     *markdown.InlineRenderer
	serializer *markdown.Serializer
	html       HTMLRenderer
}

func NewTransformer(types nodetype.Snapshot, html HTMLRenderer) *Transformer {
	return &Transformer{
		types:      types,
		inline:     markdown.NewInlineRenderer(types, markdown.HTMLInline{}),
		serializer: markdown.NewSerializer(types),
		html:       html,
	}
}

type stackItem struct {
	level int
	node  *PureNode
}

// Transform builds the pure markmap tree. Headings open a level; lists and
// tables attach under the nearest preceding heading. A single top-level
// entry is promoted to be the root.
func (tr *Transformer) Transform(t *tree.NodeTree) (*PureNode, error) {
	stack := []stackItem{{level: 0, node: &PureNode{NodeID: VirtualRootID}}}
	attach := func(child *PureNode) {
		top := stack[len(stack)-1].node
		top.Children = append(top.Children, child)
	}

	for _, rootID := range t.Roots {
		level := headingLevel(t, rootID)
		nodes, err := tr.transformNode(t, rootID)
		if err != nil {
			return nil, err
		}
		for _, node := range nodes {
			for len(stack) > 1 && stack[len(stack)-1].level >= level {
				item := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				attach(item.node)
			}
			if level < bodyLevel {
				stack = append(stack, stackItem{level: level, node: node})
			} else {
				attach(node)
			}
		}
	}
	for len(stack) > 1 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		attach(item.node)
	}

	root := stack[0].node
	if len(root.Children) == 1 {
		root = root.Children[0]
	}
	return root, nil
}

func headingLevel(t *tree.NodeTree, id model.NodeID) int {
	rec, ok := t.Node(id)
	if !ok || rec.Heading == nil {
		return bodyLevel
	}
	if rec.Heading.Level < 1 || rec.Heading.Level > 6 {
		return bodyLevel
	}
	return rec.Heading.Level
}

func (tr *Transformer) classify(rec *tree.NodeRecord) (nodeKind, error) {
	kind, err := tr.types.KindByID(rec.Base.NodeTypeID)
	if err != nil {
		return kindOther, fmt.Errorf("%w: %d on node %s", markdown.ErrUnknownNodeType, rec.Base.NodeTypeID, rec.ID())
	}
	switch kind {
	case model.KindHeading:
		return kindHeading, nil
	case model.KindList:
		return kindList, nil
	case model.KindListItem, model.KindTask:
		return kindListItem, nil
	case model.KindTable:
		return kindTable, nil
	}
	return kindOther, nil
}

func (tr *Transformer) transformNode(t *tree.NodeTree, id model.NodeID) ([]*PureNode, error) {
	rec, ok := t.Node(id)
	if !ok {
		return nil, nil
	}
	kind, err := tr.classify(rec)
	if err != nil {
		return nil, err
	}
	switch kind {
	case kindHeading:
		content, err := tr.content(t, rec)
		if err != nil {
			return nil, err
		}
		children, err := tr.transformChildren(t, id)
		if err != nil {
			return nil, err
		}
		return []*PureNode{{Content: content, NodeID: id.String(), HeadingLevel: headingLevel(t, id), Children: children}}, nil
	case kindList:
		return tr.transformChildren(t, id)
	case kindListItem:
		content, err := tr.content(t, rec)
		if err != nil {
			return nil, err
		}
		children, err := tr.transformChildren(t, id)
		if err != nil {
			return nil, err
		}
		return []*PureNode{{Content: content, NodeID: id.String(), Children: children}}, nil
	case kindTable:
		content, err := tr.tableHTML(t, id)
		if err != nil {
			return nil, err
		}
		return []*PureNode{{Content: content, NodeID: id.String()}}, nil
	}
	return nil, nil
}

func (tr *Transformer) transformChildren(t *tree.NodeTree, id model.NodeID) ([]*PureNode, error) {
	var out []*PureNode
	for _, child := range t.Children(id) {
		nodes, err := tr.transformNode(t, child)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return out, nil
}

// content is the inline HTML of a node. List items whose text lives in
// paragraph children use those paragraphs instead.
func (tr *Transformer) content(t *tree.NodeTree, rec *tree.NodeRecord) (string, error) {
	content, err := tr.inline.Render(t, rec.ID())
	if err != nil || content != "" {
		return content, err
	}
	kind, err := tr.types.KindByID(rec.Base.NodeTypeID)
	if err != nil || (kind != model.KindListItem && kind != model.KindTask) {
		return "", nil
	}
	var parts []string
	for _, child := range t.Children(rec.ID()) {
		crec, ok := t.Node(child)
		if !ok {
			continue
		}
		if ckind, err := tr.types.KindByID(crec.Base.NodeTypeID); err != nil || ckind != model.KindParagraph {
			continue
		}
		part, err := tr.inline.Render(t, child)
		if err != nil {
			return "", err
		}
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ""), nil
}

func (tr *Transformer) tableHTML(t *tree.NodeTree, id model.NodeID) (string, error) {
	md, err := tr.serializer.SerializeNode(t, id)
	if err != nil {
		return "", err
	}
	if tr.html == nil {
		return md, nil
	}
	out, err := tr.html.Render(md)
	if err != nil {
		return "", fmt.Errorf("render table html: %w", err)
	}
	return out, nil
}
