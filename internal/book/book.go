package book

import (
	"unicode"

	"github.com/dgallion1/folio/internal/story"
)

// Section is a chapter-delimited slice of one fragment's prose.
type Section struct {
	Title        string // Chapter title (explicit marker or the fragment's running title)
	Body         string // Prose with the marker line removed
	IsNewChapter bool   // True when the section opened with a chapter marker
}

// PageKind distinguishes what a page shows.
type PageKind string

const (
	KindText         PageKind = "text"
	KindIllustration PageKind = "illustration"
	KindFiller       PageKind = "filler" // blank text page kept for spread parity
)

// Page is one leaf of the laid-out book. Pages are rebuilt on every
// pagination run; only ID is meant to be stable across runs.
type Page struct {
	ID             string         `json:"id" yaml:"id"`
	Kind           PageKind       `json:"kind" yaml:"kind"`
	Content        string         `json:"content" yaml:"content"`
	ImagePrompt    string         `json:"imagePrompt,omitempty" yaml:"imagePrompt,omitempty"`
	PageNumber     int            `json:"pageNumber" yaml:"pageNumber"`
	ChapterTitle   string         `json:"chapterTitle" yaml:"chapterTitle"`
	IsChapterStart bool           `json:"isChapterStart" yaml:"isChapterStart"`
	Choices        []story.Choice `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// DropCap returns the first letter of a chapter-start page, or "" when the
// page should not get one.
func (p Page) DropCap() string {
	if !p.IsChapterStart || p.Kind != KindText {
		return ""
	}
	for _, r := range p.Content {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return string(r)
		}
	}
	return ""
}

// Bookmark is a jump target at the start of a chapter.
type Bookmark struct {
	Index      int    `json:"index" yaml:"index"` // 0-based position in the page sequence
	PageNumber int    `json:"pageNumber" yaml:"pageNumber"`
	Title      string `json:"title" yaml:"title"`
}
