// Package markdown turns a NodeTree back into markdown text. The output is a
// structural round-trip: reparsing it yields an isomorphic tree, not the
// original bytes.
package markdown

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/tree"
)

// ErrUnknownNodeType is returned when a node's type id is not in the snapshot.
var ErrUnknownNodeType = errors.New("unknown node type")

type listContext struct {
	ordered bool
}

// Serializer writes markdown for a NodeTree using one node type snapshot.
type Serializer struct {
	types  nodetype.Snapshot
	inline InlineFormat
}

func NewSerializer(types nodetype.Snapshot) *Serializer {
	return &Serializer{types: types, inline: MarkdownInline{}}
}

// Serialize renders every root of t.
func (s *Serializer) Serialize(t *tree.NodeTree) (string, error) {
	w := &writer{s: s, t: t}
	for _, root := range t.Roots {
		if err := w.block(root, nil, "", 0); err != nil {
			return "", err
		}
	}
	return w.String(), nil
}

// SerializeNode renders the subtree rooted at id.
func (s *Serializer) SerializeNode(t *tree.NodeTree, id model.NodeID) (string, error) {
	sub, err := tree.Subtree(t, id)
	if err != nil {
		return "", err
	}
	return s.Serialize(sub)
}

// Inline renders the node's own text plus its inline descendants.
func (s *Serializer) Inline(t *tree.NodeTree, id model.NodeID) (string, error) {
	return inlineFor(s.types, s.inline, t, id)
}

func kindOf(types nodetype.Snapshot, rec *tree.NodeRecord) (model.Kind, error) {
	kind, err := types.KindByID(rec.Base.NodeTypeID)
	if err != nil {
		return model.KindUnknown, fmt.Errorf("%w: %d on node %s", ErrUnknownNodeType, rec.Base.NodeTypeID, rec.ID())
	}
	return kind, nil
}

type writer struct {
	s     *Serializer
	t     *tree.NodeTree
	lines []string
}

func (w *writer) String() string {
	end := len(w.lines)
	for end > 0 && isBlank(w.lines[end-1]) {
		end--
	}
	return strings.Join(w.lines[:end], "\n")
}

func isBlank(line string) bool {
	return strings.Trim(line, " >") == ""
}

func prefix(indent string, quote int) string {
	if quote == 0 {
		return indent
	}
	return indent + strings.Repeat("> ", quote)
}

func (w *writer) push(line string) {
	w.lines = append(w.lines, line)
}

// pushBlock writes a multi-line value with the same prefix on every line.
func (w *writer) pushBlock(value, pre string) {
	for _, line := range strings.Split(value, "\n") {
		if line == "" {
			w.push(strings.TrimRight(pre, " "))
			continue
		}
		w.push(pre + line)
	}
}

// hardBreaks marks line breaks inside inline content so they survive a
// reparse.
func hardBreaks(text string) string {
	return strings.ReplaceAll(text, "\n", "\\\n")
}

// pushLines writes value with first before the first line and rest before
// each continuation line.
func (w *writer) pushLines(value, first, rest string) {
	lines := strings.Split(value, "\n")
	w.push(first + lines[0])
	for _, line := range lines[1:] {
		w.push(rest + line)
	}
}

func (w *writer) ensureBlank(indent string, quote int) {
	if len(w.lines) == 0 || isBlank(w.lines[len(w.lines)-1]) {
		return
	}
	w.push(strings.TrimRight(prefix(indent, quote), " "))
}

func (w *writer) inline(id model.NodeID) (string, error) {
	return inlineFor(w.s.types, w.s.inline, w.t, id)
}

func (w *writer) block(id model.NodeID, list *listContext, indent string, quote int) error {
	rec, ok := w.t.Node(id)
	if !ok {
		return nil
	}
	kind, err := kindOf(w.s.types, rec)
	if err != nil {
		return err
	}
	pre := prefix(indent, quote)

	switch kind {
	case model.KindList:
		ctx := &listContext{ordered: rec.List != nil && rec.List.Ordering > 0}
		for _, child := range w.t.Children(id) {
			if err := w.block(child, ctx, indent, quote); err != nil {
				return err
			}
		}
		if indent == "" {
			w.ensureBlank(indent, quote)
		}
		return nil

	case model.KindListItem, model.KindTask:
		return w.item(rec, kind, list, indent, quote)

	case model.KindHeading:
		text, err := w.inline(id)
		if err != nil {
			return err
		}
		level := 1
		if rec.Heading != nil {
			level = min(max(rec.Heading.Level, 1), 6)
		}
		if text != "" {
			w.push(pre + strings.Repeat("#", level) + " " + strings.ReplaceAll(text, "\n", " "))
		}
		if err := w.children(id, indent, quote, nil); err != nil {
			return err
		}
		w.ensureBlank(indent, quote)
		return nil

	case model.KindBlockQuote:
		text, err := w.inline(id)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) != "" {
			w.pushBlock(hardBreaks(text), prefix(indent, quote+1))
		}
		if err := w.children(id, indent, quote+1, nil); err != nil {
			return err
		}
		if n := len(w.lines); n > 0 && w.lines[n-1] == strings.TrimRight(prefix(indent, quote+1), " ") {
			w.lines[n-1] = strings.TrimRight(prefix(indent, quote), " ")
		}
		w.ensureBlank(indent, quote)
		return nil

	case model.KindCodeBlock:
		lang := ""
		if rec.CodeBlock != nil && rec.CodeBlock.Language != nil {
			lang = *rec.CodeBlock.Language
		}
		fence := "```"
		body := strings.TrimRight(textFor(w.s.types, w.t, id), " \t\r\n")
		for strings.Contains(body, fence) {
			fence += "`"
		}
		w.push(pre + fence + lang)
		if body != "" {
			w.pushBlock(body, pre)
		}
		w.push(pre + fence)
		w.ensureBlank(indent, quote)
		return nil

	case model.KindMathDisplay:
		w.push(pre + "$$")
		if body := strings.TrimRight(textFor(w.s.types, w.t, id), " \t\r\n"); body != "" {
			w.pushBlock(body, pre)
		}
		w.push(pre + "$$")
		w.ensureBlank(indent, quote)
		return nil

	case model.KindHtmlBlock:
		if body := strings.TrimRight(textFor(w.s.types, w.t, id), " \t\r\n"); body != "" {
			w.pushBlock(body, pre)
		}
		if err := w.children(id, indent, quote, nil); err != nil {
			return err
		}
		w.ensureBlank(indent, quote)
		return nil

	case model.KindMetadataBlock:
		w.push("---")
		if body := strings.TrimRight(textFor(w.s.types, w.t, id), " \t\r\n"); body != "" {
			w.pushBlock(body, "")
		}
		w.push("---")
		w.ensureBlank("", 0)
		return nil

	case model.KindHorizontalRule:
		w.push(pre + "---")
		w.ensureBlank(indent, quote)
		return nil

	case model.KindTable:
		if err := w.table(rec, pre); err != nil {
			return err
		}
		w.ensureBlank(indent, quote)
		return nil

	case model.KindFootnoteDefinition:
		if rec.FootnoteDefinition == nil || rec.FootnoteDefinition.Label == "" {
			return nil
		}
		content, err := w.blockInline(id)
		if err != nil {
			return err
		}
		w.pushLines(content, pre+"[^"+rec.FootnoteDefinition.Label+"]: ", pre+"    ")
		w.ensureBlank(indent, quote)
		return nil

	case model.KindDefinitionList:
		if err := w.children(id, indent, quote, nil); err != nil {
			return err
		}
		w.ensureBlank(indent, quote)
		return nil

	case model.KindDefinitionListTitle:
		text, err := w.blockInline(id)
		if err != nil {
			return err
		}
		if text != "" {
			w.push(pre + text)
		}
		return nil

	case model.KindDefinitionListDefinition:
		text, err := w.blockInline(id)
		if err != nil {
			return err
		}
		w.pushLines(text, pre+": ", pre+"  ")
		return nil

	case model.KindParagraph, model.KindUnknown:
		text, err := w.inline(id)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) != "" {
			w.pushBlock(hardBreaks(text), pre)
		}
		if err := w.children(id, indent, quote, nil); err != nil {
			return err
		}
		if kind == model.KindParagraph {
			w.ensureBlank(indent, quote)
		}
		return nil
	}

	if kind.IsInline() {
		text, err := w.inline(id)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) != "" {
			w.pushBlock(text, pre)
			w.ensureBlank(indent, quote)
		}
	}
	return nil
}

// item writes a list item or task line. The first paragraph of a loose item
// is hoisted onto the marker line.
func (w *writer) item(rec *tree.NodeRecord, kind model.Kind, list *listContext, indent string, quote int) error {
	id := rec.ID()
	ordered := rec.List != nil && rec.List.Ordering > 0
	if list != nil {
		ordered = list.ordered
	}
	marker := "-"
	childIndent := indent + "  "
	if ordered {
		n := 1
		if rec.List != nil && rec.List.Ordering > 0 {
			n = rec.List.Ordering
		}
		marker = strconv.Itoa(n) + "."
		childIndent = indent + strings.Repeat(" ", len(marker)+1)
	}
	if kind == model.KindTask {
		box := "[ ]"
		if rec.Task != nil && rec.Task.Checked {
			box = "[x]"
		}
		marker += " " + box
	}

	text, err := w.inline(id)
	if err != nil {
		return err
	}
	var hoisted *model.NodeID
	if strings.TrimSpace(text) == "" {
		text = ""
		if first := w.firstParagraph(id); first != nil {
			if text, err = w.inline(*first); err != nil {
				return err
			}
			hoisted = first
		}
	}

	pre := prefix(indent, quote)
	if text == "" {
		w.push(pre + marker)
	} else {
		w.pushLines(hardBreaks(text), pre+marker+" ", prefix(childIndent, quote))
	}
	if hoisted != nil {
		w.ensureBlank(childIndent, quote)
	}
	return w.children(id, childIndent, quote, hoisted)
}

func (w *writer) firstParagraph(id model.NodeID) *model.NodeID {
	kids := w.t.Children(id)
	if len(kids) == 0 {
		return nil
	}
	rec, ok := w.t.Node(kids[0])
	if !ok {
		return nil
	}
	if kind, err := kindOf(w.s.types, rec); err != nil || kind != model.KindParagraph {
		return nil
	}
	first := kids[0]
	return &first
}

// blockInline is the inline content of a node, falling back to its
// paragraph children joined by newlines.
func (w *writer) blockInline(id model.NodeID) (string, error) {
	text, err := w.inline(id)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	var parts []string
	for _, child := range w.t.Children(id) {
		part, err := w.inline(child)
		if err != nil {
			return "", err
		}
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// children renders block children. Inline kinds, table parts and list items
// are handled by their parents.
func (w *writer) children(id model.NodeID, indent string, quote int, skip *model.NodeID) error {
	for _, child := range w.t.Children(id) {
		if skip != nil && child == *skip {
			continue
		}
		rec, ok := w.t.Node(child)
		if !ok {
			continue
		}
		kind, err := kindOf(w.s.types, rec)
		if err != nil {
			return err
		}
		if kind.IsInline() || kind.IsTablePart() || kind == model.KindListItem || kind == model.KindTask {
			continue
		}
		if err := w.block(child, nil, indent, quote); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) table(rec *tree.NodeRecord, pre string) error {
	var header []string
	var body [][]string
	for _, child := range w.t.Children(rec.ID()) {
		crec, ok := w.t.Node(child)
		if !ok {
			continue
		}
		kind, err := kindOf(w.s.types, crec)
		if err != nil {
			return err
		}
		switch kind {
		case model.KindTableHead:
			rows, err := w.tableRows(child)
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				header = rows[0]
				body = append(body, rows[1:]...)
			}
		case model.KindTableRow:
			cells, err := w.tableCells(child)
			if err != nil {
				return err
			}
			body = append(body, cells)
		}
	}

	var alignments []model.Alignment
	if rec.Table != nil {
		alignments = rec.Table.Alignments
	}
	count := len(alignments)
	switch {
	case header != nil:
		count = max(count, len(header))
	case len(body) > 0:
		count = max(count, len(body[0]))
	}
	if count == 0 {
		return nil
	}
	for len(header) < count {
		header = append(header, "")
	}

	w.push(pre + tableRow(header))
	seps := make([]string, count)
	for i := range seps {
		align := model.AlignNone
		if i < len(alignments) {
			align = alignments[i]
		}
		seps[i] = " " + separator(align) + " "
	}
	w.push(pre + "|" + strings.Join(seps, "|") + "|")
	for _, row := range body {
		w.push(pre + tableRow(row))
	}
	return nil
}

// tableRows reads a table head. A head holding cells directly is one row.
func (w *writer) tableRows(head model.NodeID) ([][]string, error) {
	var rows [][]string
	var direct []string
	for _, child := range w.t.Children(head) {
		rec, ok := w.t.Node(child)
		if !ok {
			continue
		}
		kind, err := kindOf(w.s.types, rec)
		if err != nil {
			return nil, err
		}
		switch kind {
		case model.KindTableRow:
			cells, err := w.tableCells(child)
			if err != nil {
				return nil, err
			}
			rows = append(rows, cells)
		case model.KindTableCell:
			cell, err := w.cell(child)
			if err != nil {
				return nil, err
			}
			direct = append(direct, cell)
		}
	}
	if direct != nil {
		rows = append([][]string{direct}, rows...)
	}
	return rows, nil
}

func (w *writer) tableCells(row model.NodeID) ([]string, error) {
	cells := []string{}
	for _, child := range w.t.Children(row) {
		cell, err := w.cell(child)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}
	return cells, nil
}

func (w *writer) cell(id model.NodeID) (string, error) {
	text, err := w.inline(id)
	if err != nil {
		return "", err
	}
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, `\|`, "|")
	return strings.ReplaceAll(text, "|", `\|`), nil
}

func tableRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

func separator(align model.Alignment) string {
	switch align {
	case model.AlignLeft:
		return ":---"
	case model.AlignCenter:
		return ":---:"
	case model.AlignRight:
		return "---:"
	default:
		return "---"
	}
}
