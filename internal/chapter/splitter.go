// Package chapter splits a fragment's prose on "## " chapter markers.
package chapter

import (
	"strings"

	"github.com/dgallion1/folio/internal/book"
)

// Split breaks content into ordered sections. Text before the first marker
// continues the running chapter and takes fallbackTitle. Split never fails;
// anything that is not a well-formed marker line is treated as prose.
func Split(content, fallbackTitle string) []book.Section {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")

	// blocks[0] is the text before the first marker; every later block
	// starts with its marker line.
	var blocks [][]string
	var current []string
	for _, line := range lines {
		if isMarker(line) {
			blocks = append(blocks, current)
			current = []string{line}
			continue
		}
		current = append(current, line)
	}
	blocks = append(blocks, current)

	var sections []book.Section

	if lead := strings.Join(blocks[0], "\n"); strings.TrimSpace(lead) != "" {
		sec := book.Section{
			Title: fallbackTitle,
			Body:  strings.TrimSpace(lead),
		}
		// Content that opens with "##" but not a valid marker (e.g. "##Title")
		// still reads as a chapter opening.
		if strings.HasPrefix(content, "##") {
			sec.IsNewChapter = true
		}
		sections = append(sections, sec)
	}

	for _, block := range blocks[1:] {
		sections = append(sections, book.Section{
			Title:        markerTitle(block[0]),
			Body:         strings.TrimSpace(strings.Join(block[1:], "\n")),
			IsNewChapter: true,
		})
	}

	kept := sections[:0]
	for _, s := range sections {
		if s.Body == "" && !s.IsNewChapter {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// isMarker reports whether line is "##" followed by at least one space.
func isMarker(line string) bool {
	rest, ok := strings.CutPrefix(line, "##")
	return ok && strings.HasPrefix(rest, " ")
}

func markerTitle(line string) string {
	title := strings.TrimSpace(strings.TrimPrefix(line, "##"))
	return strings.TrimSpace(strings.TrimLeft(title, "#"))
}
