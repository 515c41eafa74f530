package markdown

import (
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark/util"

	"lattice/api/internal/model"
)

// InlineFormat renders inline constructs for one output format.
type InlineFormat interface {
	Text(value string) string
	Emphasis(content string) string
	Strong(content string) string
	Strikethrough(content string) string
	Superscript(content string) string
	Subscript(content string) string
	Code(value string) string
	Math(value string) string
	MathDisplay(value string) string
	HTML(raw string) string
	FootnoteReference(label string) string
	Link(label, href, title string, kind model.LinkKind) string
	Image(alt, src, title string) string
	Wiki(display, target string) string
}

// MarkdownInline writes inline markdown.
type MarkdownInline struct{}

func (MarkdownInline) Text(value string) string            { return value }
func (MarkdownInline) Emphasis(content string) string      { return "*" + content + "*" }
func (MarkdownInline) Strong(content string) string        { return "**" + content + "**" }
func (MarkdownInline) Strikethrough(content string) string { return "~~" + content + "~~" }
func (MarkdownInline) Superscript(content string) string   { return "^" + content + "^" }
func (MarkdownInline) Subscript(content string) string     { return "~" + content + "~" }
func (MarkdownInline) Math(value string) string            { return "$" + value + "$" }
func (MarkdownInline) MathDisplay(value string) string     { return "$$" + value + "$$" }
func (MarkdownInline) HTML(raw string) string              { return raw }
func (MarkdownInline) FootnoteReference(label string) string {
	return "[^" + label + "]"
}

func (MarkdownInline) Code(value string) string {
	fence := "`"
	for strings.Contains(value, fence) {
		fence += "`"
	}
	if fence != "`" || strings.HasPrefix(value, "`") || strings.HasSuffix(value, "`") {
		return fence + " " + value + " " + fence
	}
	return fence + value + fence
}

func (MarkdownInline) Link(label, href, title string, kind model.LinkKind) string {
	if kind.Name == model.LinkWiki(false).Name {
		if kind.HasPothole && label != "" && label != href {
			return "[[" + href + "|" + label + "]]"
		}
		return "[[" + href + "]]"
	}
	if title != "" {
		return fmt.Sprintf("[%s](%s %q)", label, href, title)
	}
	return fmt.Sprintf("[%s](%s)", label, href)
}

func (MarkdownInline) Image(alt, src, title string) string {
	if title != "" {
		return fmt.Sprintf("![%s](%s %q)", alt, src, title)
	}
	return fmt.Sprintf("![%s](%s)", alt, src)
}

func (MarkdownInline) Wiki(display, target string) string {
	if display == "" {
		return "[[" + target + "]]"
	}
	return "[[" + display + "|" + target + "]]"
}

// HTMLInline writes inline HTML. Text is unescaped from markdown and escaped
// for HTML.
type HTMLInline struct{}

func escapeText(value string) string {
	return html.EscapeString(string(util.UnescapePunctuations([]byte(value))))
}

func (HTMLInline) Text(value string) string {
	return strings.ReplaceAll(escapeText(value), "\n", "<br />")
}
func (HTMLInline) Emphasis(content string) string      { return "<em>" + content + "</em>" }
func (HTMLInline) Strong(content string) string        { return "<strong>" + content + "</strong>" }
func (HTMLInline) Strikethrough(content string) string { return "<del>" + content + "</del>" }
func (HTMLInline) Superscript(content string) string   { return "<sup>" + content + "</sup>" }
func (HTMLInline) Subscript(content string) string     { return "<sub>" + content + "</sub>" }
func (HTMLInline) Code(value string) string            { return "<code>" + html.EscapeString(value) + "</code>" }
func (HTMLInline) HTML(raw string) string              { return raw }

func (HTMLInline) Math(value string) string {
	return `<span class="math-inline">` + html.EscapeString(value) + "</span>"
}

func (HTMLInline) MathDisplay(value string) string {
	return `<span class="math-display">` + html.EscapeString(value) + "</span>"
}

func (HTMLInline) FootnoteReference(label string) string {
	return `<sup class="footnote-ref">` + html.EscapeString(label) + "</sup>"
}

func (HTMLInline) Link(label, href, title string, _ model.LinkKind) string {
	attrs := ` href="` + html.EscapeString(href) + `"`
	if title != "" {
		attrs += ` title="` + html.EscapeString(title) + `"`
	}
	return "<a" + attrs + ">" + label + "</a>"
}

func (HTMLInline) Image(alt, src, title string) string {
	attrs := ` src="` + html.EscapeString(src) + `" alt="` + html.EscapeString(alt) + `"`
	if title != "" {
		attrs += ` title="` + html.EscapeString(title) + `"`
	}
	return "<img" + attrs + " />"
}

func (HTMLInline) Wiki(display, target string) string {
	label := display
	if label == "" {
		label = target
	}
	return `<span class="wiki" data-target="` + html.EscapeString(target) + `">` + html.EscapeString(label) + "</span>"
}
