// Package paginator lays a story history out as numbered book pages.
package paginator

import (
	"fmt"
	"strings"

	"github.com/dgallion1/folio/internal/book"
	"github.com/dgallion1/folio/internal/chapter"
	"github.com/dgallion1/folio/internal/story"
)

// Config controls page layout. A zero WordsPerPage, ChapterReserve or Slack
// takes the DefaultConfig value; set ChapterReserve or Slack to None to turn
// it off.
type Config struct {
	WordsPerPage   int        // Word budget for an ordinary page.
	ChapterReserve int        // Words given up on the first page of a new chapter for the title block.
	Slack          int        // Words a page may overrun its budget while looking for a sentence end.
	Mode           story.Mode // Decides which fragments get an illustration page.
}

// None disables ChapterReserve or Slack.
const None = -1

// DefaultConfig returns the reference layout.
func DefaultConfig() Config {
	return Config{
		WordsPerPage:   130,
		ChapterReserve: 50,
		Slack:          20,
		Mode:           story.ModeFreeChoice,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WordsPerPage <= 0 {
		c.WordsPerPage = d.WordsPerPage
	}
	switch {
	case c.ChapterReserve < 0:
		c.ChapterReserve = 0
	case c.ChapterReserve == 0:
		c.ChapterReserve = d.ChapterReserve
	}
	if c.ChapterReserve >= c.WordsPerPage {
		c.ChapterReserve = c.WordsPerPage / 2
	}
	switch {
	case c.Slack < 0:
		c.Slack = 0
	case c.Slack == 0:
		c.Slack = d.Slack
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	return c
}

// Paginate lays out every fragment in history order. The result is a pure
// function of its inputs: page numbers start at 1 with no gaps and the page
// count is always even.
func Paginate(fragments []story.Fragment, cfg Config) []book.Page {
	cfg = cfg.withDefaults()

	l := layout{cfg: cfg}
	for fi, f := range fragments {
		l.fragment(fi, f, fi == len(fragments)-1)
	}

	if len(l.pages)%2 == 1 {
		n := len(l.pages) + 1
		l.pages = append(l.pages, book.Page{
			ID:         fmt.Sprintf("filler-%d", n),
			Kind:       book.KindFiller,
			PageNumber: n,
		})
	}
	return l.pages
}

type layout struct {
	cfg   Config
	pages []book.Page
}

func (l *layout) emit(p book.Page) {
	p.PageNumber = len(l.pages) + 1
	l.pages = append(l.pages, p)
}

func (l *layout) fragment(fi int, f story.Fragment, latest bool) {
	if strings.TrimSpace(f.BackgroundImagePrompt) != "" && (fi == 0 || l.cfg.Mode == story.ModeFreeChoice) {
		l.emit(book.Page{
			ID:           f.ID + "-art",
			Kind:         book.KindIllustration,
			ImagePrompt:  f.BackgroundImagePrompt,
			ChapterTitle: f.ChapterTitle,
		})
	}

	sections := chapter.Split(f.Content, f.ChapterTitle)

	// Index of the fragment's last text page; it hosts the choices.
	last := -1
	if len(sections) == 0 {
		// A blank fragment still gets a page so its choices have a home.
		l.emit(book.Page{
			ID:           fmt.Sprintf("%s-s0-p0", f.ID),
			Kind:         book.KindText,
			ChapterTitle: f.ChapterTitle,
		})
		last = len(l.pages) - 1
	}
	for si, sec := range sections {
		for pi, content := range l.pack(sec) {
			l.emit(book.Page{
				ID:             fmt.Sprintf("%s-s%d-p%d", f.ID, si, pi),
				Kind:           book.KindText,
				Content:        content,
				ChapterTitle:   sec.Title,
				IsChapterStart: pi == 0 && sec.IsNewChapter,
			})
			last = len(l.pages) - 1
		}
	}

	if latest && len(f.Choices) > 0 && last >= 0 {
		l.pages[last].Choices = append([]story.Choice(nil), f.Choices...)
	}
}

// pack greedily fills pages with words from sec.Body. A page closes once it
// holds its budget and the last word ends a sentence, or once it overruns
// the budget by more than the slack. Without slack a page closes exactly at
// its budget.
func (l *layout) pack(sec book.Section) []string {
	var words []string
	if sec.Body != "" {
		words = strings.Split(sec.Body, " ")
	}

	var pages []string
	var buf []string
	for _, w := range words {
		buf = append(buf, w)

		limit := l.cfg.WordsPerPage
		if sec.IsNewChapter && len(pages) == 0 {
			limit -= l.cfg.ChapterReserve
		}
		if len(buf) < limit {
			continue
		}
		if endsSentence(w) || l.cfg.Slack == 0 || len(buf) > limit+l.cfg.Slack {
			pages = append(pages, strings.Join(buf, " "))
			buf = nil
		}
	}

	if len(buf) > 0 || (len(pages) == 0 && sec.IsNewChapter) {
		pages = append(pages, strings.Join(buf, " "))
	}
	return pages
}

// endsSentence reports whether w ends in '.', '!' or '?', optionally
// followed by closing quotes.
func endsSentence(w string) bool {
	w = strings.TrimRight(w, "\"'”’»")
	if w == "" {
		return false
	}
	switch w[len(w)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// Bookmarks lists the chapter-start pages as jump targets.
func Bookmarks(pages []book.Page) []book.Bookmark {
	var marks []book.Bookmark
	for i, p := range pages {
		if p.IsChapterStart {
			marks = append(marks, book.Bookmark{Index: i, PageNumber: p.PageNumber, Title: p.ChapterTitle})
		}
	}
	return marks
}
