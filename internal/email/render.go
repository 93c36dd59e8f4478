package email

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Body formats
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Renderer turns the template into message bodies. The text body is always the
// template verbatim; the markdown format adds a sanitized HTML alternative.
type Renderer struct {
	format string
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewRenderer creates a Renderer for the given body format
func NewRenderer(format string) *Renderer {
	return &Renderer{
		format: format,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// Render returns the text body and, for markdown, the HTML body.
func (r *Renderer) Render(template string) (text string, html string, err error) {
	if r.format != FormatMarkdown {
		return template, "", nil
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(template), &buf); err != nil {
		return "", "", fmt.Errorf("failed to render markdown: %w", err)
	}

	return template, r.policy.Sanitize(buf.String()), nil
}
