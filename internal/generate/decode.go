package generate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dgallion1/folio/internal/story"
)

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// wireFragment mirrors FragmentShape.
type wireFragment struct {
	ChapterTitle          string                  `json:"chapterTitle"`
	Content               string                  `json:"content"`
	Choices               []story.Choice          `json:"choices"`
	CharacterUpdates      []story.CharacterUpdate `json:"characterUpdates"`
	Stats                 story.Stats             `json:"stats"`
	Summary               string                  `json:"summary"`
	BackgroundImagePrompt string                  `json:"backgroundImagePrompt"`
}

// DecodeFragment parses a model reply into a fragment without an id.
// Replies that are not JSON objects or that do not satisfy shape are
// reported as ErrMalformedResponse.
func DecodeFragment(raw string, shape ResponseShape) (story.Fragment, error) {
	text := stripCodeBlock(raw)

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return story.Fragment{}, fmt.Errorf("%w: %v (raw: %s)", ErrMalformedResponse, err, truncate(text, 200))
	}
	if problems := shape.Check(obj); len(problems) > 0 {
		return story.Fragment{}, fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(problems, "; "))
	}

	var w wireFragment
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return story.Fragment{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	f := story.Fragment{
		ChapterTitle:          strings.TrimSpace(w.ChapterTitle),
		Content:               StripMarkup(w.Content),
		Choices:               normalizeChoices(w.Choices),
		CharacterUpdates:      w.CharacterUpdates,
		Stats:                 w.Stats.Clamp(),
		Summary:               strings.TrimSpace(w.Summary),
		BackgroundImagePrompt: strings.TrimSpace(w.BackgroundImagePrompt),
	}
	if f.ChapterTitle == "" {
		return story.Fragment{}, fmt.Errorf("%w: empty chapterTitle", ErrMalformedResponse)
	}
	return f, nil
}

// normalizeChoices trims text and fills in missing or repeated ids so every
// choice can be selected.
func normalizeChoices(in []story.Choice) []story.Choice {
	out := make([]story.Choice, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, c := range in {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" || seen[c.ID] {
			c.ID = fmt.Sprintf("choice-%d", i+1)
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
