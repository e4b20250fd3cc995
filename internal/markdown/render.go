// Package markdown converts assistant output into HTML that is safe to embed
// verbatim in a page.
package markdown

import (
	"bytes"
	"html"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func New() *Renderer {
	return &Renderer{
		// GFM for the structures the assistant actually emits: tables and
		// fenced code blocks.
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
}

// ToSafeHTML renders markdown and strips anything that could execute. A
// conversion failure degrades to a single escaped paragraph instead of
// propagating.
func (r *Renderer) ToSafeHTML(text string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML("<p>" + html.EscapeString(text) + "</p>")
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}
