// Package html renders markdown fragments to sanitized HTML.
package html

import (
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

const extensions = blackfriday.NoIntraEmphasis |
	blackfriday.Tables |
	blackfriday.FencedCode |
	blackfriday.Autolink |
	blackfriday.Strikethrough |
	blackfriday.SpaceHeadings |
	blackfriday.Footnotes |
	blackfriday.DefinitionLists |
	blackfriday.BackslashLineBreak

// Renderer turns markdown into HTML that is safe to embed in a page.
type Renderer struct {
	flags  blackfriday.HTMLFlags
	policy *bluemonday.Policy
}

func New() *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("span", "code", "div", "sup")
	policy.AllowAttrs("data-target").OnElements("span")
	policy.AllowAttrs("align").OnElements("th", "td")
	return &Renderer{
		flags:  blackfriday.UseXHTML,
		policy: policy,
	}
}

// Render converts markdown to sanitized HTML.
func (r *Renderer) Render(markdown string) (string, error) {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{Flags: r.flags})
	unsafe := blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(extensions), blackfriday.WithRenderer(renderer))
	return string(r.policy.SanitizeBytes(unsafe)), nil
}

// Sanitize cleans an HTML fragment produced elsewhere.
func (r *Renderer) Sanitize(fragment string) string {
	return r.policy.Sanitize(fragment)
}
