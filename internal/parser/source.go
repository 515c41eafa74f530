package parser

import (
	"bytes"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	gmparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"lattice/api/internal/model"
)

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
			extension.Linkify,
			extension.Footnote,
			extension.DefinitionList,
			inlineExtras{},
		),
		goldmark.WithParserOptions(gmparser.WithAttribute()),
	)
}

type span struct {
	start, end int
}

// eventSource walks a goldmark tree and produces the flat event stream.
// Offsets refer to src, which has the same length as the original input.
type eventSource struct {
	src      []byte
	spans    map[ast.Node]span
	cursor   int
	footnote map[int]string
	events   []Event
	warnings []string
}

func collectEvents(md goldmark.Markdown, input string) ([]Event, []string) {
	src := []byte(input)
	s := &eventSource{
		src:      src,
		spans:    make(map[ast.Node]span),
		footnote: make(map[int]string),
	}

	if fm, ok := detectFrontMatter(src); ok {
		content := src[fm.ContentStart:fm.ContentEnd]
		if fm.Style == metadataYAML {
			if err := validateYAML(content); err != nil {
				s.warnings = append(s.warnings, "markdown front matter is not valid yaml: "+err.Error())
			}
		}
		s.emit(Event{Kind: EventStart, Tag: Tag{Kind: TagMetadataBlock, MetadataStyle: fm.Style}, Start: 0, End: fm.End})
		if len(bytes.TrimSpace(content)) > 0 {
			s.emit(Event{Kind: EventText, Text: string(content), Start: fm.ContentStart, End: fm.ContentEnd})
		}
		s.emit(Event{Kind: EventEnd, Tag: Tag{Kind: TagMetadataBlock}, Start: 0, End: fm.End})
		parsed := make([]byte, len(src))
		copy(parsed, src)
		blankRange(parsed, 0, fm.End)
		s.src = parsed
		s.cursor = fm.End
	}

	doc := md.Parser().Parse(text.NewReader(s.src))
	s.indexFootnotes(doc)
	s.measure(doc)
	s.walkChildren(doc)
	return s.events, s.warnings
}

func (s *eventSource) emit(ev Event) {
	s.events = append(s.events, ev)
}

func (s *eventSource) indexFootnotes(doc ast.Node) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fn, ok := n.(*extast.Footnote); ok {
			s.footnote[fn.Index] = string(fn.Ref)
		}
		return ast.WalkContinue, nil
	})
}

// measure computes the byte span of every node bottom-up. A parent span is
// the union of its own lines and its children, so containment holds by
// construction. Nodes without any source position get a one byte span at the
// current cursor.
func (s *eventSource) measure(n ast.Node) (span, bool) {
	var sp span
	has := false
	add := func(start, end int) {
		if end < start {
			end = start
		}
		if !has {
			sp = span{start, end}
			has = true
			return
		}
		if start < sp.start {
			sp.start = start
		}
		if end > sp.end {
			sp.end = end
		}
	}

	switch node := n.(type) {
	case *ast.Text:
		add(node.Segment.Start, node.Segment.Stop)
		if node.HardLineBreak() || node.SoftLineBreak() {
			add(node.Segment.Stop, s.breakEnd(node.Segment.Stop))
		}
	case *ast.RawHTML:
		for i := 0; i < node.Segments.Len(); i++ {
			seg := node.Segments.At(i)
			add(seg.Start, seg.Stop)
		}
	case *scriptNode:
		add(node.Segment.Start, node.Segment.Stop)
	case *mathNode:
		add(node.Segment.Start, node.Segment.Stop)
	case *mathBlockNode:
		add(node.Segment.Start, node.Segment.Stop)
	case *wikiLinkNode:
		add(node.Segment.Start, node.Segment.Stop)
	case *ast.FencedCodeBlock:
		if node.Info != nil {
			add(node.Info.Segment.Start, node.Info.Segment.Stop)
		}
	case *ast.AutoLink:
		if idx := s.find(string(node.Label(s.src))); idx >= 0 {
			add(idx, idx+len(node.Label(s.src)))
		}
	case *extast.FootnoteLink:
		needle := "[^" + s.footnote[node.Index] + "]"
		if idx := s.find(needle); idx >= 0 {
			add(idx, idx+len(needle))
		}
	case *extast.TaskCheckBox, *extast.FootnoteBacklink:
		return span{}, false
	}
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			add(seg.Start, seg.Stop)
		}
		if html, ok := n.(*ast.HTMLBlock); ok && html.HasClosure() {
			add(html.ClosureLine.Start, html.ClosureLine.Stop)
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if cs, ok := s.measure(c); ok {
			add(cs.start, cs.end)
		}
	}
	if n.Kind() == ast.KindDocument {
		return span{}, false
	}

	if has {
		sp = s.widen(n, sp)
	} else {
		sp = s.fallback(n)
	}
	if sp.end > len(s.src) {
		sp.end = len(s.src)
	}
	if sp.start >= sp.end {
		if sp.end < len(s.src) {
			sp.end = sp.start + 1
		} else if sp.start > 0 {
			sp.start = sp.end - 1
		}
	}
	if sp.end > s.cursor {
		s.cursor = sp.end
	}
	s.spans[n] = sp
	return sp, true
}

// widen extends a content span over the syntax that surrounds it.
func (s *eventSource) widen(n ast.Node, sp span) span {
	src := s.src
	switch node := n.(type) {
	case *ast.FencedCodeBlock:
		if node.Info == nil {
			sp.start = s.previousLineStart(sp.start)
		}
		sp.start = s.lineStart(sp.start)
		sp.end = s.closingFenceEnd(sp.end)
	case *ast.Emphasis:
		for i := 0; i < node.Level && sp.start > 0 && isEmphasisMark(src[sp.start-1]); i++ {
			sp.start--
		}
		for i := 0; i < node.Level && sp.end < len(src) && isEmphasisMark(src[sp.end]); i++ {
			sp.end++
		}
	case *extast.Strikethrough:
		for i := 0; i < 2 && sp.start > 0 && src[sp.start-1] == '~'; i++ {
			sp.start--
		}
		for i := 0; i < 2 && sp.end < len(src) && src[sp.end] == '~'; i++ {
			sp.end++
		}
	case *ast.CodeSpan:
		for sp.start > 0 && src[sp.start-1] == '`' {
			sp.start--
		}
		for sp.end < len(src) && src[sp.end] == '`' {
			sp.end++
		}
	case *ast.Link:
		sp = s.widenLink(sp, false)
	case *ast.Image:
		sp = s.widenLink(sp, true)
	case *ast.AutoLink:
		if sp.start > 0 && src[sp.start-1] == '<' && sp.end < len(src) && src[sp.end] == '>' {
			sp.start--
			sp.end++
		}
	case *extast.TableCell:
	default:
		if n.Type() == ast.TypeBlock {
			sp.start = s.lineStart(sp.start)
		}
	}
	return sp
}

func (s *eventSource) widenLink(sp span, image bool) span {
	src := s.src
	if sp.start > 0 && src[sp.start-1] == '[' {
		sp.start--
	}
	if image && sp.start > 0 && src[sp.start-1] == '!' {
		sp.start--
	}
	if sp.end < len(src) && src[sp.end] == ']' {
		sp.end++
	}
	if sp.end < len(src) && (src[sp.end] == '(' || src[sp.end] == '[') {
		if closing := matchBracket(src, sp.end); closing > 0 {
			sp.end = closing + 1
		}
	}
	return sp
}

// matchBracket returns the index of the bracket closing src[open], or -1.
// The search stops at a blank line.
func matchBracket(src []byte, open int) int {
	openCh := src[open]
	closeCh := byte(')')
	if openCh == '[' {
		closeCh = ']'
	}
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i
			}
		case '\n':
			if i+1 < len(src) && src[i+1] == '\n' {
				return -1
			}
		}
	}
	return -1
}

func isEmphasisMark(c byte) bool { return c == '*' || c == '_' }

func (s *eventSource) lineStart(pos int) int {
	if pos > len(s.src) {
		pos = len(s.src)
	}
	if idx := bytes.LastIndexByte(s.src[:pos], '\n'); idx >= 0 {
		return idx + 1
	}
	return 0
}

func (s *eventSource) previousLineStart(pos int) int {
	start := s.lineStart(pos)
	if start == 0 {
		return 0
	}
	return s.lineStart(start - 1)
}

func (s *eventSource) closingFenceEnd(pos int) int {
	next := pos
	if next < len(s.src) && s.src[next] == '\n' {
		next++
	}
	if next >= len(s.src) {
		return pos
	}
	end := lineEnd(s.src, next)
	line := strings.TrimLeft(string(s.src[next:end]), " >\t")
	if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
		return end
	}
	return pos
}

// breakEnd is the end of the line break that follows pos: the trailing
// spaces or backslash of a hard break and the newline itself.
func (s *eventSource) breakEnd(pos int) int {
	if pos >= len(s.src) {
		return len(s.src)
	}
	if idx := bytes.IndexByte(s.src[pos:], '\n'); idx >= 0 {
		return pos + idx + 1
	}
	return len(s.src)
}

// find locates needle at or after the cursor.
func (s *eventSource) find(needle string) int {
	if needle == "" || s.cursor > len(s.src) {
		return -1
	}
	idx := bytes.Index(s.src[s.cursor:], []byte(needle))
	if idx < 0 {
		return -1
	}
	return s.cursor + idx
}

func (s *eventSource) fallback(ast.Node) span {
	start := s.cursor
	if start >= len(s.src) && start > 0 {
		start = len(s.src) - 1
	}
	return span{start, start + 1}
}

func (s *eventSource) spanOf(n ast.Node) span {
	return s.spans[n]
}

func (s *eventSource) start(n ast.Node, tag Tag) {
	sp := s.spanOf(n)
	s.emit(Event{Kind: EventStart, Tag: tag, Start: sp.start, End: sp.end})
}

func (s *eventSource) end(n ast.Node, tag Tag) {
	sp := s.spanOf(n)
	s.emit(Event{Kind: EventEnd, Tag: tag, Start: sp.start, End: sp.end})
}

func (s *eventSource) leaf(n ast.Node, kind EventKind, value string) {
	sp := s.spanOf(n)
	s.emit(Event{Kind: kind, Text: value, Start: sp.start, End: sp.end})
}

func (s *eventSource) container(n ast.Node, tag Tag) {
	s.start(n, tag)
	s.walkChildren(n)
	s.end(n, tag)
}

func (s *eventSource) walkChildren(n ast.Node) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		s.walk(c)
	}
}

func (s *eventSource) walk(n ast.Node) {
	switch node := n.(type) {
	case *ast.Paragraph:
		s.container(n, Tag{Kind: TagParagraph})
	case *ast.TextBlock:
		s.walkChildren(n)
	case *ast.Heading:
		s.container(n, Tag{Kind: TagHeading, Level: node.Level})
	case *ast.Blockquote:
		s.container(n, Tag{Kind: TagBlockQuote})
	case *ast.List:
		s.walkList(node)
	case *ast.FencedCodeBlock:
		var lang *string
		if raw := node.Language(s.src); len(raw) > 0 {
			value := string(raw)
			lang = &value
		}
		s.walkLines(n, Tag{Kind: TagCodeBlock, Language: lang}, EventText)
	case *ast.CodeBlock:
		s.walkLines(n, Tag{Kind: TagCodeBlock}, EventText)
	case *ast.HTMLBlock:
		s.walkLines(n, Tag{Kind: TagHTMLBlock}, EventHTML)
	case *mathBlockNode:
		var b strings.Builder
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(s.src))
		}
		s.leaf(n, EventDisplayMath, strings.TrimRight(b.String(), "\r\n"))
	case *ast.ThematicBreak:
		s.leaf(n, EventRule, "")
	case *extast.Table:
		s.container(n, Tag{Kind: TagTable, Alignments: tableAlignments(node.Alignments)})
	case *extast.TableHeader:
		s.container(n, Tag{Kind: TagTableHead})
	case *extast.TableRow:
		s.container(n, Tag{Kind: TagTableRow})
	case *extast.TableCell:
		s.container(n, Tag{Kind: TagTableCell})
	case *extast.DefinitionList:
		s.container(n, Tag{Kind: TagDefinitionList})
	case *extast.DefinitionTerm:
		s.container(n, Tag{Kind: TagDefinitionListTitle})
	case *extast.DefinitionDescription:
		s.container(n, Tag{Kind: TagDefinitionListDefinition})
	case *extast.FootnoteList:
		s.walkChildren(n)
	case *extast.Footnote:
		s.container(n, Tag{Kind: TagFootnoteDefinition, Label: string(node.Ref)})
	case *extast.FootnoteBacklink:
	case *extast.FootnoteLink:
		s.leaf(n, EventFootnoteReference, s.footnote[node.Index])
	case *extast.TaskCheckBox:
		sp := s.spanOf(n)
		s.emit(Event{Kind: EventTaskListMarker, Checked: node.IsChecked, Start: sp.start, End: sp.end})
	case *ast.Text:
		s.emit(Event{Kind: EventText, Text: string(node.Segment.Value(s.src)), Start: node.Segment.Start, End: node.Segment.Stop})
		if node.HardLineBreak() {
			s.emit(Event{Kind: EventHardBreak, Start: node.Segment.Stop, End: s.breakEnd(node.Segment.Stop)})
		} else if node.SoftLineBreak() {
			s.emit(Event{Kind: EventSoftBreak, Start: node.Segment.Stop, End: s.breakEnd(node.Segment.Stop)})
		}
	case *ast.String:
		sp := s.spanOf(n)
		s.emit(Event{Kind: EventText, Text: string(node.Value), Start: sp.start, End: sp.end})
	case *ast.Emphasis:
		kind := TagEmphasis
		if node.Level >= 2 {
			kind = TagStrong
		}
		s.container(n, Tag{Kind: kind})
	case *extast.Strikethrough:
		s.container(n, Tag{Kind: TagStrikethrough})
	case *scriptNode:
		kind := TagSubscript
		if node.Super {
			kind = TagSuperscript
		}
		s.container(n, Tag{Kind: kind})
	case *ast.CodeSpan:
		s.leaf(n, EventCode, s.inlineText(n))
	case *ast.RawHTML:
		var b strings.Builder
		for i := 0; i < node.Segments.Len(); i++ {
			seg := node.Segments.At(i)
			b.Write(seg.Value(s.src))
		}
		s.leaf(n, EventInlineHTML, b.String())
	case *mathNode:
		kind := EventInlineMath
		if node.Display {
			kind = EventDisplayMath
		}
		s.leaf(n, kind, string(node.Inner.Value(s.src)))
	case *ast.Link:
		s.container(n, s.linkTag(node))
	case *ast.Image:
		s.container(n, Tag{Kind: TagImage, Dest: string(node.Destination), Title: string(node.Title), LinkKind: model.LinkInline})
	case *ast.AutoLink:
		kind := model.LinkAutolink
		if node.AutoLinkType == ast.AutoLinkEmail {
			kind = model.LinkEmail
		}
		tag := Tag{Kind: TagLink, LinkKind: kind, Dest: string(node.URL(s.src))}
		sp := s.spanOf(n)
		label := node.Label(s.src)
		s.emit(Event{Kind: EventStart, Tag: tag, Start: sp.start, End: sp.end})
		labelStart := sp.start
		if sp.end-sp.start > len(label) {
			labelStart++
		}
		s.emit(Event{Kind: EventText, Text: string(label), Start: labelStart, End: labelStart + len(label)})
		s.emit(Event{Kind: EventEnd, Tag: tag, Start: sp.start, End: sp.end})
	case *wikiLinkNode:
		s.walkWiki(node)
	default:
		s.walkChildren(n)
	}
}

func (s *eventSource) walkList(list *ast.List) {
	tag := Tag{Kind: TagList}
	if list.IsOrdered() {
		start := list.Start
		tag.ListStart = &start
	}
	s.start(list, tag)
	index := 0
	for c := list.FirstChild(); c != nil; c = c.NextSibling() {
		if _, ok := c.(*ast.ListItem); !ok {
			s.walk(c)
			continue
		}
		order := 0
		if list.IsOrdered() {
			order = list.Start + index
		}
		s.container(c, Tag{Kind: TagItem, ItemOrder: order})
		index++
	}
	s.end(list, tag)
}

func (s *eventSource) walkLines(n ast.Node, tag Tag, kind EventKind) {
	s.start(n, tag)
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		s.emit(Event{Kind: kind, Text: string(seg.Value(s.src)), Start: seg.Start, End: seg.Stop})
	}
	if html, ok := n.(*ast.HTMLBlock); ok && html.HasClosure() {
		seg := html.ClosureLine
		s.emit(Event{Kind: kind, Text: string(seg.Value(s.src)), Start: seg.Start, End: seg.Stop})
	}
	s.end(n, tag)
}

func (s *eventSource) walkWiki(node *wikiLinkNode) {
	sp := s.spanOf(node)
	if target, display, ok := wikiNodeTarget(node); ok {
		s.emit(Event{Kind: EventWiki, Wiki: &WikiTarget{Target: target, Display: display}, Text: display, Start: sp.start, End: sp.end})
		return
	}
	tag := Tag{Kind: TagLink, LinkKind: model.LinkWiki(node.HasPothole), Dest: node.Target}
	s.emit(Event{Kind: EventStart, Tag: tag, Start: sp.start, End: sp.end})
	s.walkChildren(node)
	s.emit(Event{Kind: EventEnd, Tag: tag, Start: sp.start, End: sp.end})
}

// wikiNodeTarget reports whether a wiki link points at a node id. Either side
// of the pipe may hold the id; the other side is the display text.
func wikiNodeTarget(node *wikiLinkNode) (model.NodeID, string, bool) {
	if id, err := uuid.Parse(node.Target); err == nil {
		return model.NodeID{UUID: id}, node.Display, true
	}
	if node.HasPothole {
		if id, err := uuid.Parse(node.Display); err == nil {
			return model.NodeID{UUID: id}, node.Target, true
		}
	}
	return model.NodeID{}, "", false
}

func (s *eventSource) linkTag(link *ast.Link) Tag {
	tag := Tag{Kind: TagLink, Dest: string(link.Destination), Title: string(link.Title), LinkKind: model.LinkInline}
	sp := s.spanOf(link)
	if sp.start >= len(s.src) || s.src[sp.start] != '[' {
		return tag
	}
	labelEnd := matchBracket(s.src, sp.start)
	if labelEnd < 0 || labelEnd >= sp.end {
		return tag
	}
	label := s.inlineText(link)
	rest := s.src[labelEnd+1 : sp.end]
	switch {
	case bytes.HasPrefix(rest, []byte("(")):
		tag.LinkKind = model.LinkInline
	case bytes.HasPrefix(rest, []byte("[]")):
		tag.LinkKind = model.LinkCollapsed
		tag.RefID = label
	case bytes.HasPrefix(rest, []byte("[")):
		tag.LinkKind = model.LinkReference
		tag.RefID = strings.TrimSuffix(strings.TrimPrefix(string(rest), "["), "]")
	default:
		tag.LinkKind = model.LinkShortcut
		tag.RefID = label
	}
	return tag
}

// inlineText concatenates the literal text below n.
func (s *eventSource) inlineText(n ast.Node) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(s.src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func tableAlignments(in []extast.Alignment) []model.Alignment {
	out := make([]model.Alignment, len(in))
	for i, a := range in {
		switch a {
		case extast.AlignLeft:
			out[i] = model.AlignLeft
		case extast.AlignCenter:
			out[i] = model.AlignCenter
		case extast.AlignRight:
			out[i] = model.AlignRight
		default:
			out[i] = model.AlignNone
		}
	}
	return out
}
