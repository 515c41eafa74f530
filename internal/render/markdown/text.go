package markdown

import (
	"strings"

	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/tree"
)

// InlineRenderer renders inline content of a NodeTree in one format.
type InlineRenderer struct {
	types  nodetype.Snapshot
	format InlineFormat
}

func NewInlineRenderer(types nodetype.Snapshot, format InlineFormat) *InlineRenderer {
	return &InlineRenderer{types: types, format: format}
}

// Render returns the node's own text followed by its inline children, wrapped
// in the node's own inline syntax. Empty content renders as "".
func (r *InlineRenderer) Render(t *tree.NodeTree, id model.NodeID) (string, error) {
	return inlineFor(r.types, r.format, t, id)
}

func inlineFor(types nodetype.Snapshot, f InlineFormat, t *tree.NodeTree, id model.NodeID) (string, error) {
	rec, ok := t.Node(id)
	if !ok {
		return "", nil
	}
	kind, err := kindOf(types, rec)
	if err != nil {
		return "", err
	}
	own := rec.TextValue()

	switch kind {
	case model.KindText:
		if own == "" {
			return "", nil
		}
		return f.Text(own), nil
	case model.KindCodeInline:
		if own == "" {
			return "", nil
		}
		return f.Code(own), nil
	case model.KindMathInline:
		if own == "" {
			return "", nil
		}
		return f.Math(own), nil
	case model.KindMathDisplay:
		if own == "" {
			return "", nil
		}
		return f.MathDisplay(own), nil
	case model.KindHtmlInline:
		return f.HTML(own), nil
	case model.KindFootnoteReference:
		if own == "" {
			return "", nil
		}
		return f.FootnoteReference(own), nil
	case model.KindWiki:
		if rec.Wiki == nil {
			return f.Text(own), nil
		}
		display := rec.Wiki.DisplayText
		if display == "" {
			display = own
		}
		return f.Wiki(display, rec.Wiki.TargetNodeID.String()), nil
	case model.KindImage:
		alt := ""
		if rec.Image != nil && rec.Image.Alt != nil {
			alt = *rec.Image.Alt
		} else {
			content, err := inlineChildren(types, f, t, id)
			if err != nil {
				return "", err
			}
			alt = content
		}
		if rec.Image == nil {
			return alt, nil
		}
		return f.Image(alt, rec.Image.Src, rec.Image.Title), nil
	case model.KindLink:
		label, err := inlineChildren(types, f, t, id)
		if err != nil {
			return "", err
		}
		if rec.Link == nil {
			return label, nil
		}
		if label == "" && rec.Link.Href == "" {
			return "", nil
		}
		if label == "" {
			label = f.Text(rec.Link.Href)
		}
		return f.Link(label, rec.Link.Href, rec.Link.Title, rec.Link.LinkType), nil
	}

	content, err := inlineChildren(types, f, t, id)
	if err != nil {
		return "", err
	}
	if own != "" {
		content = f.Text(own) + content
	}
	if content == "" {
		return "", nil
	}
	switch kind {
	case model.KindEmphasis:
		return f.Emphasis(content), nil
	case model.KindStrong:
		return f.Strong(content), nil
	case model.KindStrikethrough:
		return f.Strikethrough(content), nil
	case model.KindSuperscript:
		return f.Superscript(content), nil
	case model.KindSubscript:
		return f.Subscript(content), nil
	}
	return content, nil
}

func inlineChildren(types nodetype.Snapshot, f InlineFormat, t *tree.NodeTree, id model.NodeID) (string, error) {
	var b strings.Builder
	for _, child := range t.Children(id) {
		rec, ok := t.Node(child)
		if !ok {
			continue
		}
		kind, err := kindOf(types, rec)
		if err != nil {
			return "", err
		}
		if !kind.IsInline() {
			continue
		}
		part, err := inlineFor(types, f, t, child)
		if err != nil {
			return "", err
		}
		b.WriteString(part)
	}
	return b.String(), nil
}

// textFor concatenates the raw text of a node and all its descendants.
func textFor(types nodetype.Snapshot, t *tree.NodeTree, id model.NodeID) string {
	var b strings.Builder
	var visit func(id model.NodeID)
	visit = func(id model.NodeID) {
		rec, ok := t.Node(id)
		if !ok {
			return
		}
		b.WriteString(rec.TextValue())
		for _, child := range t.Children(id) {
			visit(child)
		}
	}
	visit(id)
	return b.String()
}

// PlainText is the raw text of a node and its descendants, with block
// children separated by newlines.
func PlainText(types nodetype.Snapshot, t *tree.NodeTree, id model.NodeID) string {
	rec, ok := t.Node(id)
	if !ok {
		return ""
	}
	kind, err := kindOf(types, rec)
	if err == nil && kind.IsInline() {
		return textFor(types, t, id)
	}
	parts := []string{}
	if own := rec.TextValue(); own != "" {
		parts = append(parts, own)
	}
	var inline strings.Builder
	for _, child := range t.Children(id) {
		crec, ok := t.Node(child)
		if !ok {
			continue
		}
		ckind, err := kindOf(types, crec)
		if err == nil && ckind.IsInline() {
			inline.WriteString(textFor(types, t, child))
			continue
		}
		if inline.Len() > 0 {
			parts = append(parts, inline.String())
			inline.Reset()
		}
		if text := PlainText(types, t, child); text != "" {
			parts = append(parts, text)
		}
	}
	if inline.Len() > 0 {
		parts = append(parts, inline.String())
	}
	return strings.Join(parts, "\n")
}
