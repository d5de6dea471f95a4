// Package manuscript imports an existing text as the opening of a story.
package manuscript

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dgallion1/folio/internal/story"
)

// Chapter is one titled part of a manuscript. An empty title continues
// whatever came before.
type Chapter struct {
	Title string
	Body  string
}

// Manuscript is an imported text split into chapters.
type Manuscript struct {
	Title    string
	Chapters []Chapter
}

// Reader converts an uploaded file into a Manuscript.
type Reader interface {
	Read(r io.Reader, filename string) (*Manuscript, error)
}

// Options tune the readers.
type Options struct {
	PDFFallbackPdftotext bool
}

// SupportedExtensions lists the file extensions that can be imported.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the reader for a filename.
func ForFile(filename string, opts Options) (Reader, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextReader{}, nil
	case ".md", ".markdown":
		return &MarkdownReader{}, nil
	case ".html", ".htm":
		return &HTMLReader{}, nil
	case ".pdf":
		return &PDFReader{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXReader{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension can be imported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Content renders the manuscript with "## " chapter markers.
func (m *Manuscript) Content() string {
	parts := make([]string, 0, len(m.Chapters))
	for _, ch := range m.Chapters {
		switch {
		case ch.Title != "" && ch.Body != "":
			parts = append(parts, "## "+ch.Title+"\n"+ch.Body)
		case ch.Title != "":
			parts = append(parts, "## "+ch.Title)
		case ch.Body != "":
			parts = append(parts, ch.Body)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ContinueChoice is the single choice offered after an imported opening.
var ContinueChoice = story.Choice{ID: "continue", Text: "Continue the story", Tone: "neutral"}

// Fragment turns the manuscript into the opening fragment of a story.
func (m *Manuscript) Fragment(id string) story.Fragment {
	title := m.Title
	for i := len(m.Chapters) - 1; i >= 0; i-- {
		if m.Chapters[i].Title != "" {
			title = m.Chapters[i].Title
			break
		}
	}
	if title == "" {
		title = "Prologue"
	}
	content := m.Content()
	return story.Fragment{
		ID:           id,
		ChapterTitle: title,
		Content:      content,
		Choices:      []story.Choice{ContinueChoice},
		Summary:      summarize(content, 60),
	}
}

// summarize returns roughly the first n words of prose, without markers.
func summarize(content string, n int) string {
	var words []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") {
			continue
		}
		for _, w := range strings.Fields(line) {
			if len(words) == n {
				return strings.Join(words, " ") + "..."
			}
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

// block is one heading (level > 0) or paragraph (level 0) in reading order.
type block struct {
	level int
	text  string
}

// assemble groups blocks into chapters. The shallowest heading level marks
// chapters, except that a lone leading heading at that level is taken as
// the book title. Deeper headings stay in the prose as their own paragraph.
func assemble(fallbackTitle string, blocks []block) *Manuscript {
	m := &Manuscript{Title: fallbackTitle}

	level, count := shallowest(blocks)
	if count == 1 && len(blocks) > 0 && blocks[0].level == level {
		m.Title = blocks[0].text
		blocks = blocks[1:]
		level, _ = shallowest(blocks)
	}

	var current *Chapter
	var body []string
	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n\n"))
		body = body[:0]
		if current == nil {
			if text == "" {
				return
			}
			current = &Chapter{}
		}
		current.Body = text
		m.Chapters = append(m.Chapters, *current)
		current = nil
	}

	for _, b := range blocks {
		if b.level > 0 && b.level == level {
			flush()
			current = &Chapter{Title: b.text}
			continue
		}
		if t := strings.TrimSpace(b.text); t != "" {
			body = append(body, t)
		}
	}
	flush()
	return m
}

func shallowest(blocks []block) (level, count int) {
	for _, b := range blocks {
		if b.level == 0 {
			continue
		}
		switch {
		case level == 0 || b.level < level:
			level, count = b.level, 1
		case b.level == level:
			count++
		}
	}
	return level, count
}

var chapterLineRe = regexp.MustCompile(`(?i)^(chapter|part|book|prologue|epilogue|interlude)\b.{0,60}$`)

func isChapterLine(line string) bool {
	return chapterLineRe.MatchString(line) && !strings.ContainsAny(line[len(line)-1:], ".!?,;")
}

// paragraphBlocks splits plain text on blank lines and promotes lines that
// look like chapter headings ("Chapter 3: The Pass", "Prologue") or existing
// "## " markers to headings.
func paragraphBlocks(text string) []block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var blocks []block
	var current []string

	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, block{text: strings.Join(current, "\n")})
			current = current[:0]
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case strings.HasPrefix(trimmed, "## "):
			flush()
			blocks = append(blocks, block{level: 1, text: strings.TrimSpace(strings.TrimLeft(trimmed, "#"))})
		case len(current) == 0 && isChapterLine(trimmed):
			blocks = append(blocks, block{level: 1, text: trimmed})
		default:
			current = append(current, trimmed)
		}
	}
	flush()
	return blocks
}

func trimExt(filename string, exts ...string) string {
	base := filepath.Base(filename)
	for _, ext := range exts {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}
