package mail

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const codeTemplate = `# Your sign-in code

Use this code to finish signing in to **Cypress Resort**:

## {{ .Code }}

The code expires in {{ .Minutes }} minutes ({{ .ExpiresAt }}).
It can be used once.

If you did not ask for this code you can ignore this email.
`

var (
	markdownOnce     sync.Once
	markdownRenderer goldmark.Markdown
	bodyTemplate     = template.Must(template.New("code").Parse(codeTemplate))
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownRenderer = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdownRenderer
}

// Body is a rendered code email.
type Body struct {
	Text string
	HTML string
}

// RenderCodeEmail renders the plain-text (Markdown) and HTML bodies for code.
func RenderCodeEmail(code string, expiresAt, now time.Time) (*Body, error) {
	minutes := int(expiresAt.Sub(now).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	var text bytes.Buffer
	err := bodyTemplate.Execute(&text, struct {
		Code      string
		Minutes   int
		ExpiresAt string
	}{
		Code:      code,
		Minutes:   minutes,
		ExpiresAt: expiresAt.UTC().Format("15:04 MST"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render email text: %w", err)
	}

	var out bytes.Buffer
	if err := getMarkdown().Convert(text.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("failed to render email html: %w", err)
	}

	return &Body{Text: text.String(), HTML: out.String()}, nil
}
