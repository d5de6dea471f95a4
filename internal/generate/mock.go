package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MockCompleter writes short canned installments without calling a model.
// Every second call opens a new chapter, and the story ends after
// EndAfter calls when EndAfter is positive.
type MockCompleter struct {
	EndAfter int

	mu    sync.Mutex
	calls int
}

func (m *MockCompleter) Model() string { return "mock" }

func (m *MockCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()

	chapterNo := (n + 1) / 2
	title := fmt.Sprintf("Chapter %d", chapterNo)

	var content strings.Builder
	if n%2 == 1 {
		fmt.Fprintf(&content, "## %s\n", title)
	}
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&content, "Scene %d moves on as the lanterns gutter and the road bends toward the hills. ", n)
	}

	choices := []map[string]string{
		{"id": "a", "text": "Follow the lanterns", "tone": "brave"},
		{"id": "b", "text": "Wait for morning", "tone": "cautious"},
	}
	if m.EndAfter > 0 && n >= m.EndAfter {
		choices = []map[string]string{}
	}

	out, err := json.Marshal(map[string]any{
		"chapterTitle": title,
		"content":      strings.TrimSpace(content.String()),
		"choices":      choices,
		"characterUpdates": []map[string]any{
			{"name": "The Guide", "role": "mentor", "affinity": min(40+n*5, 100)},
		},
		"stats":                 map[string]int{"tension": min(10*n, 100), "mystery": 50, "romance": 5, "hope": 60},
		"summary":               fmt.Sprintf("Scene %d passed on the road.", n),
		"backgroundImagePrompt": "lanterns along a mountain road at dusk",
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
