package parser_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"lattice/api/internal/index"
	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/parser"
	"lattice/api/internal/tree"
)

func parse(t *testing.T, input string) (*tree.NodeTree, parser.Result) {
	t.Helper()
	sink := index.NewCollectingSink()
	res, err := parser.New(nodetype.Default()).Parse(input, model.NewDocumentID(), sink)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	nt, err := tree.Build(sink.Snapshot())
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	return nt, res
}

func kindOf(t *testing.T, nt *tree.NodeTree, id model.NodeID) model.Kind {
	t.Helper()
	rec, ok := nt.Node(id)
	if !ok {
		t.Fatalf("node %s missing", id)
	}
	kind, err := nodetype.Default().KindByID(rec.Base.NodeTypeID)
	if err != nil {
		t.Fatalf("kind of %s: %v", id, err)
	}
	return kind
}

// shape renders the tree as indented "Kind[:text]" lines.
func shape(t *testing.T, nt *tree.NodeTree) string {
	t.Helper()
	var b strings.Builder
	nt.Walk(func(rec *tree.NodeRecord, depth int) bool {
		kind := kindOf(t, nt, rec.ID())
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(kind.String())
		if rec.Text != nil {
			b.WriteString(":" + *rec.Text)
		}
		b.WriteString("\n")
		return true
	})
	return b.String()
}

func TestParseSingleParagraph(t *testing.T) {
	nt, res := parse(t, "hello")
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	want := "Paragraph\n  Text:hello\n"
	if got := shape(t, nt); got != want {
		t.Fatalf("unexpected shape:\n%s", got)
	}
}

func TestParseEmphasisSplitsText(t *testing.T) {
	nt, _ := parse(t, "hello *world*")
	want := "Paragraph\n  Text:hello \n  Emphasis\n    Text:world\n"
	if got := shape(t, nt); got != want {
		t.Fatalf("unexpected shape:\n%s", got)
	}
}

func TestParseNestedOrderedList(t *testing.T) {
	nt, _ := parse(t, "1. Parent\n   1. Child")
	want := strings.Join([]string{
		"List",
		"  ListItem",
		"    Text:Parent",
		"    List",
		"      ListItem",
		"        Text:Child",
		"",
	}, "\n")
	if got := shape(t, nt); got != want {
		t.Fatalf("unexpected shape:\n%s", got)
	}
	item := nt.Children(nt.Roots[0])[0]
	rec, _ := nt.Node(item)
	if rec.List == nil || !rec.List.IsItem || rec.List.Ordering != 1 {
		t.Fatalf("expected ordered list item 1, got %+v", rec.List)
	}
}

func TestParseRangesNestInsideParents(t *testing.T) {
	input := strings.Join([]string{
		"# Title",
		"",
		"Some **bold** and `code` with [a link](http://example.com).",
		"",
		"> quoted *text*",
		"",
		"- one",
		"- two",
		"  - nested",
		"",
		"```go",
		"fmt.Println(1)",
		"```",
		"",
		"| A | B |",
		"| --- | --- |",
		"| 1 | 2 |",
	}, "\n")
	nt, res := parse(t, input)
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	nt.Walk(func(rec *tree.NodeRecord, _ int) bool {
		if rec.Range == nil {
			t.Fatalf("node %s has no range", rec.ID())
		}
		if rec.Range.Start < 0 || rec.Range.Start >= rec.Range.End || rec.Range.End > len(input) {
			t.Fatalf("range out of bounds: %+v", rec.Range)
		}
		for _, child := range nt.Children(rec.ID()) {
			crec, _ := nt.Node(child)
			if crec.Range.Start < rec.Range.Start || crec.Range.End > rec.Range.End {
				t.Fatalf("child range %d..%d escapes parent %d..%d", crec.Range.Start, crec.Range.End, rec.Range.Start, rec.Range.End)
			}
		}
		return true
	})
}

func TestParseTaskItems(t *testing.T) {
	nt, res := parse(t, "- [x] done\n- [ ] todo")
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	items := nt.Children(nt.Roots[0])
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for i, want := range []bool{true, false} {
		if kind := kindOf(t, nt, items[i]); kind != model.KindTask {
			t.Fatalf("item %d: expected Task, got %s", i, kind)
		}
		rec, _ := nt.Node(items[i])
		if rec.Task == nil || rec.Task.Checked != want {
			t.Fatalf("item %d: expected checked=%v, got %+v", i, want, rec.Task)
		}
	}
}

func TestParseWikiLinks(t *testing.T) {
	target := model.NewNodeID()
	nt, _ := parse(t, fmt.Sprintf("see [[%s|Intro]] and [[Page|label]]", target))

	var wiki, link *tree.NodeRecord
	nt.Walk(func(rec *tree.NodeRecord, _ int) bool {
		switch kindOf(t, nt, rec.ID()) {
		case model.KindWiki:
			wiki = rec
		case model.KindLink:
			link = rec
		}
		return true
	})
	if wiki == nil || wiki.Wiki == nil {
		t.Fatalf("expected wiki node")
	}
	if wiki.Wiki.TargetNodeID != target || wiki.Wiki.DisplayText != "Intro" {
		t.Fatalf("unexpected wiki record: %+v", wiki.Wiki)
	}
	if link == nil || link.Link == nil {
		t.Fatalf("expected link node")
	}
	if link.Link.Href != "Page" || link.Link.LinkType != model.LinkWiki(true) {
		t.Fatalf("unexpected link record: %+v", link.Link)
	}
}

func TestParseFrontMatter(t *testing.T) {
	input := "---\ntitle: Notes\n---\n# Head"
	nt, res := parse(t, input)
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	if len(nt.Roots) != 2 {
		t.Fatalf("expected metadata and heading roots, got %d", len(nt.Roots))
	}
	if kind := kindOf(t, nt, nt.Roots[0]); kind != model.KindMetadataBlock {
		t.Fatalf("expected MetadataBlock first, got %s", kind)
	}
	if kind := kindOf(t, nt, nt.Roots[1]); kind != model.KindHeading {
		t.Fatalf("expected Heading second, got %s", kind)
	}
	heading, _ := nt.Node(nt.Roots[1])
	if heading.Range.Start != strings.Index(input, "# Head") {
		t.Fatalf("heading offset shifted: %d", heading.Range.Start)
	}
	meta := nt.Children(nt.Roots[0])
	if len(meta) != 1 {
		t.Fatalf("expected one metadata text child, got %d", len(meta))
	}
	rec, _ := nt.Node(meta[0])
	if !strings.Contains(rec.TextValue(), "title: Notes") {
		t.Fatalf("unexpected metadata text %q", rec.TextValue())
	}
}

func TestParseInvalidFrontMatterWarns(t *testing.T) {
	_, res := parse(t, "---\ntitle: [unclosed\n---\nbody")
	if len(res.Warnings) == 0 {
		t.Fatalf("expected a yaml warning")
	}
}

func TestParseUnknownTypeTableFails(t *testing.T) {
	types, err := nodetype.New([]nodetype.Entry{{ID: 1, Name: "Heading"}})
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	_, err = parser.New(types).Parse("plain text", model.NewDocumentID(), index.NewCollectingSink())
	if !errors.Is(err, nodetype.ErrUnknownName) {
		t.Fatalf("expected ErrUnknownName, got %v", err)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	input := "# A\n\ntext *em* **strong**\n\n- x\n- y\n"
	first, _ := parse(t, input)
	second, _ := parse(t, input)
	if shape(t, first) != shape(t, second) {
		t.Fatalf("shapes differ between runs")
	}
}

func TestParseTotality(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "blank lines", input: "\n\n  \n"},
		{name: "invalid utf8", input: "\xff\xfe"},
		{name: "invalid utf8 in heading", input: "# a\xc3\n\n- \xff item"},
		{name: "deep emphasis", input: strings.Repeat("*", 40) + "x" + strings.Repeat("*", 40)},
		{name: "alternating emphasis", input: strings.Repeat("*a _b ", 30) + strings.Repeat("_ *", 30)},
		{name: "deep quotes", input: strings.Repeat("> ", 100) + "x"},
		{name: "deep lists", input: deepList(30)},
		{name: "unclosed fences", input: "```\ncode\n\n$$\nx"},
		{name: "hard breaks only", input: "*a*\\\n*b*  \nc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := index.NewCollectingSink()
			if _, err := parser.New(nodetype.Default()).Parse(tt.input, model.NewDocumentID(), sink); err != nil {
				t.Fatalf("parse: %v", err)
			}
			snap := sink.Snapshot()
			nt, err := tree.Build(snap)
			if err != nil {
				t.Fatalf("build tree: %v", err)
			}
			if nt.Len() != len(snap.Bases) {
				t.Fatalf("tree holds %d nodes, sink emitted %d", nt.Len(), len(snap.Bases))
			}
			seen := make(map[model.NodeID]bool, nt.Len())
			nt.Walk(func(rec *tree.NodeRecord, _ int) bool {
				if seen[rec.ID()] {
					t.Fatalf("node %s reached twice", rec.ID())
				}
				seen[rec.ID()] = true
				if rec.Range == nil || rec.Range.Start < 0 || rec.Range.Start >= rec.Range.End || rec.Range.End > len(tt.input) {
					t.Fatalf("bad range %+v for %s in %q", rec.Range, kindOf(t, nt, rec.ID()), tt.input)
				}
				if kindOf(t, nt, rec.ID()) == model.KindText && rec.TextValue() == "" {
					t.Fatalf("empty text node %s", rec.ID())
				}
				return true
			})
			if len(seen) != nt.Len() {
				t.Fatalf("walk reached %d of %d nodes", len(seen), nt.Len())
			}
		})
	}
}

func deepList(depth int) string {
	var b strings.Builder
	for i := 0; i < depth; i++ {
		b.WriteString(strings.Repeat("  ", i) + "- item\n")
	}
	return b.String()
}

func TestParseLineBreakRangesAreNotEmpty(t *testing.T) {
	for _, input := range []string{"a\\\nb", "*a*\\\n*b*", "*a*  \n*b*", "a\nb", "\\\n$83920)&1|\\$*+&$$"} {
		nt, _ := parse(t, input)
		nt.Walk(func(rec *tree.NodeRecord, _ int) bool {
			if kindOf(t, nt, rec.ID()) != model.KindText {
				return true
			}
			if rec.Range.Start >= rec.Range.End {
				t.Fatalf("%q: text %q has empty range %d..%d", input, rec.TextValue(), rec.Range.Start, rec.Range.End)
			}
			return true
		})
	}
}

func TestParseDisplayMathBlock(t *testing.T) {
	input := "before\n\n$$\nE = mc^2\n\\int x\n$$\n\nafter"
	nt, _ := parse(t, input)
	want := strings.Join([]string{
		"Paragraph",
		"  Text:before",
		"MathDisplay:E = mc^2\n\\int x",
		"Paragraph",
		"  Text:after",
		"",
	}, "\n")
	if got := shape(t, nt); got != want {
		t.Fatalf("unexpected shape:\n%s", got)
	}
	rec, _ := nt.Node(nt.Roots[1])
	if got := input[rec.Range.Start:rec.Range.End]; got != "$$\nE = mc^2\n\\int x\n$$" {
		t.Fatalf("math range covers %q", got)
	}
}

func TestParseInlineDisplayMathStaysInline(t *testing.T) {
	nt, _ := parse(t, "sum $$a+b$$ here")
	want := "Paragraph\n  Text:sum \n  MathDisplay:a+b\n  Text: here\n"
	if got := shape(t, nt); got != want {
		t.Fatalf("unexpected shape:\n%s", got)
	}
}

func TestParseInlineHTML(t *testing.T) {
	nt, _ := parse(t, "a <b>x</b>")
	want := "Paragraph\n  Text:a \n  HtmlInline:<b>\n  Text:x\n  HtmlInline:</b>\n"
	if got := shape(t, nt); got != want {
		t.Fatalf("unexpected shape:\n%s", got)
	}
}
