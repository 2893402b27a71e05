package notify

import (
	htmltemplate "html/template"
	"io"
	"strings"
	"text/template"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// Renderer turns stored template content plus a context into message text.
type Renderer interface {
	Render(content string, data map[string]any) (string, error)
}

type executor interface {
	Execute(w io.Writer, data any) error
}

func execute(tmpl executor, data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", &RenderError{Err: err}
	}
	return out.String(), nil
}

// PlainRenderer substitutes placeholders with text/template. A placeholder
// missing from the context is an error.
type PlainRenderer struct{}

func (PlainRenderer) Render(content string, data map[string]any) (string, error) {
	tmpl, err := template.New("message").Option("missingkey=error").Parse(content)
	if err != nil {
		return "", &RenderError{Err: err}
	}
	return execute(tmpl, data)
}

// HTMLRenderer is PlainRenderer with contextual HTML escaping of the
// substituted values.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(content string, data map[string]any) (string, error) {
	tmpl, err := htmltemplate.New("message").Option("missingkey=error").Parse(content)
	if err != nil {
		return "", &RenderError{Err: err}
	}
	return execute(tmpl, data)
}

// MarkdownRenderer renders HTML content and converts the result to
// markdown for channels that speak markdown.
type MarkdownRenderer struct {
	converter *md.Converter
}

// NewMarkdownRenderer creates a MarkdownRenderer.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{converter: md.NewConverter("", true, nil)}
}

func (m *MarkdownRenderer) Render(content string, data map[string]any) (string, error) {
	html, err := HTMLRenderer{}.Render(content, data)
	if err != nil {
		return "", err
	}
	text, err := m.converter.ConvertString(html)
	if err != nil {
		return "", &RenderError{Err: err}
	}
	return text, nil
}
