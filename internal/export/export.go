// Package export renders a story history as a linear document.
package export

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/gosimple/slug"
	"github.com/yuin/goldmark"

	"github.com/dgallion1/folio/internal/chapter"
	"github.com/dgallion1/folio/internal/story"
)

// Format is an export file type.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
)

// ParseFormat accepts md, markdown, html and docx.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "docx":
		return FormatDOCX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "text/markdown; charset=utf-8"
}

// Filename builds a download name like "the-salt-road.md".
func Filename(title string, f Format) string {
	name := slug.Make(title)
	if name == "" {
		name = "story"
	}
	return name + "." + string(f)
}

// Write renders fragments in the given format.
func Write(w io.Writer, f Format, title string, fragments []story.Fragment) error {
	switch f {
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(title, fragments))
		return err
	case FormatHTML:
		return HTML(w, title, fragments)
	case FormatDOCX:
		return DOCX(w, title, fragments)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

// heading is emitted whenever a new chapter starts or the running chapter
// title changes between fragments.
type part struct {
	heading string
	body    string
}

func linearize(fragments []story.Fragment) []part {
	var parts []part
	running := ""
	for _, f := range fragments {
		for _, sec := range chapter.Split(f.Content, f.ChapterTitle) {
			p := part{body: sec.Body}
			if sec.IsNewChapter || sec.Title != running {
				p.heading = sec.Title
				running = sec.Title
			}
			parts = append(parts, p)
		}
	}
	return parts
}

// Markdown renders the story with "# title" and "## chapter" headers.
func Markdown(title string, fragments []story.Fragment) string {
	var b strings.Builder
	b.WriteString("# " + title + "\n")
	for _, p := range linearize(fragments) {
		if p.heading != "" {
			b.WriteString("\n## " + p.heading + "\n")
		}
		if p.body != "" {
			b.WriteString("\n" + p.body + "\n")
		}
	}
	return b.String()
}

const htmlHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
`

// HTML renders the Markdown export through goldmark into a standalone page.
func HTML(w io.Writer, title string, fragments []story.Fragment) error {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(title, fragments)), &body); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	if _, err := fmt.Fprintf(w, htmlHead, html.EscapeString(title)); err != nil {
		return err
	}
	if _, err := body.WriteTo(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}

// DOCX renders a Word document with a title page and one heading per chapter.
func DOCX(w io.Writer, title string, fragments []story.Fragment) error {
	doc := docx.New().WithDefaultTheme()

	doc.AddParagraph().Justification("center").AddText(title).Size("44").Bold()

	for _, p := range linearize(fragments) {
		if p.heading != "" {
			doc.AddParagraph().AddPageBreaks()
			doc.AddParagraph().Style("Heading1").AddText(p.heading)
		}
		for _, para := range strings.Split(p.body, "\n\n") {
			if para = strings.TrimSpace(para); para != "" {
				doc.AddParagraph().AddText(strings.Join(strings.Fields(para), " "))
			}
		}
	}

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}
