package parser

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	kindSuperscript = ast.NewNodeKind("Superscript")
	kindSubscript   = ast.NewNodeKind("Subscript")
	kindMath        = ast.NewNodeKind("Math")
	kindMathBlock   = ast.NewNodeKind("MathBlock")
	kindWikiLink    = ast.NewNodeKind("WikiLink")
)

// scriptNode is ^sup^ or ~sub~. Segment spans the delimiters.
type scriptNode struct {
	ast.BaseInline
	Segment text.Segment
	Super   bool
}

func (n *scriptNode) Kind() ast.NodeKind {
	if n.Super {
		return kindSuperscript
	}
	return kindSubscript
}

func (n *scriptNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// mathNode is $inline$ or $$display$$ math.
type mathNode struct {
	ast.BaseInline
	Segment text.Segment
	Inner   text.Segment
	Display bool
}

func (n *mathNode) Kind() ast.NodeKind { return kindMath }

func (n *mathNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// mathBlockNode is display math between two lines holding only $$. Segment
// spans both fences; Lines holds the content.
type mathBlockNode struct {
	ast.BaseBlock
	Segment text.Segment
}

func (n *mathBlockNode) Kind() ast.NodeKind { return kindMathBlock }

func (n *mathBlockNode) IsRaw() bool { return true }

func (n *mathBlockNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// wikiLinkNode is [[target]] or [[display|target]]. Either side of the pipe
// may hold a node id; the text after the pipe is attached as a Text child.
type wikiLinkNode struct {
	ast.BaseInline
	Segment    text.Segment
	Target     string
	Display    string
	HasPothole bool
}

func (n *wikiLinkNode) Kind() ast.NodeKind { return kindWikiLink }

func (n *wikiLinkNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Target": n.Target, "Display": n.Display}, nil)
}

type scriptParser struct {
	delim byte
	super bool
}

func (p *scriptParser) Trigger() []byte { return []byte{p.delim} }

func (p *scriptParser) Parse(_ ast.Node, block text.Reader, _ gmparser.Context) ast.Node {
	line, seg := block.PeekLine()
	if len(line) < 3 || line[0] != p.delim {
		return nil
	}
	if line[1] == p.delim || isSpace(line[1]) {
		return nil
	}
	for i := 1; i < len(line); i++ {
		c := line[i]
		if c == '\n' || c == '\r' {
			return nil
		}
		if c == '\\' {
			i++
			continue
		}
		if c != p.delim {
			continue
		}
		if i+1 < len(line) && line[i+1] == p.delim {
			return nil
		}
		if isSpace(line[i-1]) {
			return nil
		}
		node := &scriptNode{Segment: text.NewSegment(seg.Start, seg.Start+i+1), Super: p.super}
		node.AppendChild(node, ast.NewTextSegment(text.NewSegment(seg.Start+1, seg.Start+i)))
		block.Advance(i + 1)
		return node
	}
	return nil
}

type mathParser struct{}

func (mathParser) Trigger() []byte { return []byte{'$'} }

func (mathParser) Parse(_ ast.Node, block text.Reader, _ gmparser.Context) ast.Node {
	line, seg := block.PeekLine()
	if len(line) < 3 || line[0] != '$' {
		return nil
	}
	if line[1] == '$' {
		closing := bytes.Index(line[2:], []byte("$$"))
		if closing <= 0 {
			return nil
		}
		inner := line[2 : 2+closing]
		if bytes.ContainsAny(inner, "\n\r") || len(bytes.TrimSpace(inner)) == 0 {
			return nil
		}
		width := closing + 4
		node := &mathNode{
			Segment: text.NewSegment(seg.Start, seg.Start+width),
			Inner:   text.NewSegment(seg.Start+2, seg.Start+2+closing),
			Display: true,
		}
		block.Advance(width)
		return node
	}
	if isSpace(line[1]) {
		return nil
	}
	for i := 1; i < len(line); i++ {
		c := line[i]
		if c == '\n' || c == '\r' {
			return nil
		}
		if c == '\\' {
			i++
			continue
		}
		if c != '$' {
			continue
		}
		if isSpace(line[i-1]) {
			return nil
		}
		node := &mathNode{
			Segment: text.NewSegment(seg.Start, seg.Start+i+1),
			Inner:   text.NewSegment(seg.Start+1, seg.Start+i),
		}
		block.Advance(i + 1)
		return node
	}
	return nil
}

// isMathFence reports whether line holds $$ and nothing else but spaces.
func isMathFence(line []byte) bool {
	return bytes.Equal(bytes.TrimSpace(line), []byte("$$"))
}

// withoutNewline is seg minus the line terminator at the end of line.
func withoutNewline(line []byte, seg text.Segment) text.Segment {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		seg.Stop--
		if n > 1 && line[n-2] == '\r' {
			seg.Stop--
		}
	}
	return seg
}

type mathBlockParser struct{}

func (mathBlockParser) Trigger() []byte { return []byte{'$'} }

func (mathBlockParser) Open(_ ast.Node, reader text.Reader, pc gmparser.Context) (ast.Node, gmparser.State) {
	line, seg := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || pos >= len(line) || !isMathFence(line[pos:]) {
		return nil, gmparser.NoChildren
	}
	open := withoutNewline(line, seg)
	node := &mathBlockNode{Segment: text.NewSegment(seg.Start+pos, open.Stop)}
	reader.Advance(seg.Stop - seg.Start - 1)
	return node, gmparser.NoChildren
}

func (mathBlockParser) Continue(n ast.Node, reader text.Reader, _ gmparser.Context) gmparser.State {
	node := n.(*mathBlockNode)
	line, seg := reader.PeekLine()
	if line == nil {
		return gmparser.Close
	}
	if isMathFence(line) {
		node.Segment.Stop = withoutNewline(line, seg).Stop
		newline := 0
		if line[len(line)-1] == '\n' {
			newline = 1
		}
		reader.Advance(seg.Stop - seg.Start - newline)
		return gmparser.Close
	}
	node.Lines().Append(seg)
	node.Segment.Stop = withoutNewline(line, seg).Stop
	reader.Advance(seg.Stop - seg.Start - 1)
	return gmparser.NoChildren
}

func (mathBlockParser) Close(ast.Node, text.Reader, gmparser.Context) {}

func (mathBlockParser) CanInterruptParagraph() bool { return true }

func (mathBlockParser) CanAcceptIndentedLine() bool { return false }

type wikiParser struct{}

func (wikiParser) Trigger() []byte { return []byte{'['} }

func (wikiParser) Parse(_ ast.Node, block text.Reader, _ gmparser.Context) ast.Node {
	line, seg := block.PeekLine()
	if !bytes.HasPrefix(line, []byte("[[")) {
		return nil
	}
	closing := bytes.Index(line[2:], []byte("]]"))
	if closing <= 0 {
		return nil
	}
	inner := line[2 : 2+closing]
	if bytes.ContainsAny(inner, "\n\r[") {
		return nil
	}
	node := &wikiLinkNode{Segment: text.NewSegment(seg.Start, seg.Start+closing+4)}
	labelStart, labelStop := seg.Start+2, seg.Start+2+closing
	if pipe := bytes.IndexByte(inner, '|'); pipe >= 0 {
		node.Target = string(bytes.TrimSpace(inner[:pipe]))
		node.Display = string(bytes.TrimSpace(inner[pipe+1:]))
		node.HasPothole = true
		labelStart = seg.Start + 2 + pipe + 1
	} else {
		node.Target = string(bytes.TrimSpace(inner))
	}
	if node.Target == "" && node.Display == "" {
		return nil
	}
	if labelStop > labelStart {
		node.AppendChild(node, ast.NewTextSegment(text.NewSegment(labelStart, labelStop)))
	}
	block.Advance(closing + 4)
	return node
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// inlineExtras registers the syntax goldmark does not ship with: the inline
// extras plus $$ display math blocks.
// Lower priorities run first: wiki links must win over footnote references
// and links, subscripts over strikethrough.
type inlineExtras struct{}

func (inlineExtras) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(gmparser.WithInlineParsers(
		util.Prioritized(wikiParser{}, 99),
		util.Prioritized(&scriptParser{delim: '~'}, 499),
		util.Prioritized(&scriptParser{delim: '^', super: true}, 500),
		util.Prioritized(mathParser{}, 500),
	))
	m.Parser().AddOptions(gmparser.WithBlockParsers(
		util.Prioritized(mathBlockParser{}, 690),
	))
}
