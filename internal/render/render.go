// Package render converts advisor content between markdown, HTML and text.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Markdown renders src to HTML. Raw HTML in src is not passed through.
func Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// ExtractText returns the readable text of an HTML document with scripts,
// styles and excess whitespace removed.
func ExtractText(htmlDoc string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var lines []string
	doc.Find("title, h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote").Each(func(_ int, sel *goquery.Selection) {
		// Nested blocks are collected through their innermost element.
		if sel.Find("p, li, pre, blockquote").Length() > 0 {
			return
		}
		if text := collapseSpace(sel.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		return collapseSpace(doc.Text()), nil
	}
	return strings.Join(lines, "\n"), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type exportMessage struct {
	Role string
	At   string
	Body template.HTML
}

var exportTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; color: #1f2937; }
.message { border-radius: 0.5rem; padding: 0.75rem 1rem; margin: 0.75rem 0; }
.user { background: #eef2ff; }
.assistant { background: #f3f4f6; }
.meta { font-size: 0.75rem; color: #6b7280; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">{{.Type}} &middot; exported {{.Exported}}</p>
{{range .Messages}}<div class="message {{.Role}}">
<div class="meta">{{.Role}} &middot; {{.At}}</div>
{{.Body}}
</div>
{{end}}</body>
</html>
`))

// ConversationHTML renders a standalone HTML export of a conversation.
func ConversationHTML(conv *domain.Conversation, messages []domain.Message, exportedAt time.Time) (string, error) {
	data := struct {
		Title    string
		Type     string
		Exported string
		Messages []exportMessage
	}{
		Title:    conv.Title,
		Type:     string(conv.Type),
		Exported: exportedAt.UTC().Format(time.RFC1123),
	}

	for _, m := range messages {
		body, err := Markdown(m.Content)
		if err != nil {
			return "", err
		}
		data.Messages = append(data.Messages, exportMessage{
			Role: string(m.Role),
			At:   m.CreatedAt.UTC().Format(time.RFC1123),
			// goldmark escapes raw HTML, so its output is safe to embed.
			Body: template.HTML(body), //nolint:gosec
		})
	}

	var buf bytes.Buffer
	if err := exportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}
	return buf.String(), nil
}
