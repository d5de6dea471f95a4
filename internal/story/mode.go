package story

import "fmt"

// Mode selects how the reader drives the story.
type Mode string

const (
	// ModeFreeChoice asks the reader to pick a choice after every fragment.
	ModeFreeChoice Mode = "free_choice"
	// ModeFullGeneration keeps generating long-form chapters with a single
	// "continue" action.
	ModeFullGeneration Mode = "full_generation"
)

// ParseMode accepts the wire names of the two modes. Empty means free choice.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFreeChoice:
		return ModeFreeChoice, nil
	case ModeFullGeneration:
		return ModeFullGeneration, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}
