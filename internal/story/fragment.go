package story

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Choice is one option offered to the reader at the end of a fragment.
type Choice struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
	Tone string `json:"tone" yaml:"tone"`
}

// Stats are the four mood meters reported with every fragment.
type Stats struct {
	Tension int `json:"tension"`
	Mystery int `json:"mystery"`
	Romance int `json:"romance"`
	Hope    int `json:"hope"`
}

// Clamp returns a copy with every meter bounded to 0..100.
func (s Stats) Clamp() Stats {
	return Stats{
		Tension: clampPercent(s.Tension),
		Mystery: clampPercent(s.Mystery),
		Romance: clampPercent(s.Romance),
		Hope:    clampPercent(s.Hope),
	}
}

// Fragment is one unit of generated narrative. Once appended to a History it
// is never modified.
type Fragment struct {
	ID                    string            `json:"id"`
	ChapterTitle          string            `json:"chapterTitle"`
	Content               string            `json:"content"`
	Choices               []Choice          `json:"choices"`
	CharacterUpdates      []CharacterUpdate `json:"characterUpdates"`
	Stats                 Stats             `json:"stats"`
	Summary               string            `json:"summary"`
	BackgroundImagePrompt string            `json:"backgroundImagePrompt,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
}

// Ending reports whether the fragment closes the story.
func (f Fragment) Ending() bool {
	return len(f.Choices) == 0
}

// Choice looks up an offered choice by id.
func (f Fragment) Choice(id string) (Choice, bool) {
	for _, c := range f.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// ErrInvalidFragment is wrapped by every Validate failure.
var ErrInvalidFragment = errors.New("invalid fragment")

// Validate checks the fields a fragment needs before it can join a history.
func (f Fragment) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidFragment)
	}
	if strings.TrimSpace(f.ChapterTitle) == "" {
		return fmt.Errorf("%w %s: chapter title is required", ErrInvalidFragment, f.ID)
	}
	seen := make(map[string]bool, len(f.Choices))
	for i, c := range f.Choices {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("%w %s: choice %d has no id", ErrInvalidFragment, f.ID, i)
		}
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("%w %s: choice %q has no text", ErrInvalidFragment, f.ID, c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w %s: duplicate choice id %q", ErrInvalidFragment, f.ID, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
