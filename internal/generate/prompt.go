package generate

import (
	"fmt"
	"strings"

	"github.com/dgallion1/folio/internal/story"
)

const storytellerPrompt = `You are the narrator of an interactive novel in the %s genre. Write vivid, literary second-person prose.

Rules:
- "content" is the prose of this installment. When a new chapter begins, put the heading on its own line as "## <chapter title>".
- Do NOT use markdown other than chapter headings, and never use HTML.
- "chapterTitle" is the title of the chapter the installment ends in.
- "choices" lists 2 to 4 distinct options with short ids ("a", "b", ...). Return an empty array only when the story has reached its ending.
- "characterUpdates" lists only characters who appeared or changed. New characters must include role and affinity (0-100, how warmly they regard the reader).
- "stats" are the current tension, mystery, romance and hope, each 0-100.
- "summary" is one or two sentences recapping this installment for later context.
- "backgroundImagePrompt" is a short visual description of the scene for an illustrator.`

const longformRules = `
- This is a long-form reading. Write at least 900 words per installment and open a new chapter at natural breaks.
- Offer a single choice with id "continue" unless the story has ended.`

// SystemInstruction returns the narrator instruction for a genre and mode.
func SystemInstruction(genre string, mode story.Mode) string {
	if strings.TrimSpace(genre) == "" {
		genre = "fantasy"
	}
	s := fmt.Sprintf(storytellerPrompt, genre)
	if mode == story.ModeFullGeneration {
		s += longformRules
	}
	return s
}

// TurnInput is everything the prompt for the next installment needs.
type TurnInput struct {
	Title      string
	Genre      string
	Premise    string
	Recent     []story.Fragment // oldest first
	Characters []story.Character
	Choice     *story.Choice // nil to continue without a choice
}

// BuildTurnPrompt assembles the user prompt for the next fragment.
func BuildTurnPrompt(in TurnInput) string {
	var sb strings.Builder

	if in.Title != "" {
		fmt.Fprintf(&sb, "Story: %q\n", in.Title)
	}
	if in.Premise != "" {
		sb.WriteString("Premise: ")
		sb.WriteString(in.Premise)
		sb.WriteString("\n")
	}

	if len(in.Recent) == 0 {
		sb.WriteString("\nBegin the story with its first chapter.\n")
		writeCast(&sb, in.Characters)
		return sb.String()
	}

	sb.WriteString("\nStory so far:\n")
	for _, f := range in.Recent[:len(in.Recent)-1] {
		fmt.Fprintf(&sb, "- [%s] %s\n", f.ChapterTitle, f.Summary)
	}

	last := in.Recent[len(in.Recent)-1]
	fmt.Fprintf(&sb, "\nPrevious installment (%s):\n---\n%s\n---\n", last.ChapterTitle, last.Content)
	fmt.Fprintf(&sb, "Current mood: tension %d, mystery %d, romance %d, hope %d\n",
		last.Stats.Tension, last.Stats.Mystery, last.Stats.Romance, last.Stats.Hope)

	writeCast(&sb, in.Characters)

	if in.Choice != nil {
		fmt.Fprintf(&sb, "\nThe reader chose: %q", in.Choice.Text)
		if in.Choice.Tone != "" {
			fmt.Fprintf(&sb, " (%s)", in.Choice.Tone)
		}
		sb.WriteString("\nContinue the story from that choice.\n")
	} else {
		sb.WriteString("\nContinue the story from where it left off.\n")
	}
	return sb.String()
}

func writeCast(sb *strings.Builder, cast []story.Character) {
	if len(cast) == 0 {
		return
	}
	sb.WriteString("\nCharacters:\n")
	for _, c := range cast {
		fmt.Fprintf(sb, "- %s (%s), affinity %d", c.Name, c.Role, c.Affinity)
		if c.Status != "" {
			fmt.Fprintf(sb, ", %s", c.Status)
		}
		sb.WriteString("\n")
	}
}
