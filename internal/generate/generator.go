// Package generate turns prompts into story fragments using a text model.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/folio/internal/story"
)

// Request is one generation call.
type Request struct {
	System string
	Prompt string
	Shape  ResponseShape
}

// Generator produces the next fragment of a story.
type Generator interface {
	Generate(ctx context.Context, req Request) (story.Fragment, error)
}

// Completer is a raw text model: system + prompt in, reply text out.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Client is a Generator backed by a Completer. It appends the response
// shape to the system instruction, decodes and validates the reply, and
// records latency.
type Client struct {
	completer Completer
	stats     *LLMStats
	log       *slog.Logger
}

func NewClient(c Completer, stats *LLMStats, log *slog.Logger) *Client {
	if stats == nil {
		stats = NewLLMStats(time.Hour)
	}
	return &Client{completer: c, stats: stats, log: log}
}

// Stats exposes the latency tracker.
func (c *Client) Stats() *LLMStats { return c.stats }

// Model returns the underlying model name.
func (c *Client) Model() string { return c.completer.Model() }

func (c *Client) Generate(ctx context.Context, req Request) (story.Fragment, error) {
	shape := req.Shape
	if len(shape.Fields) == 0 {
		shape = FragmentShape
	}
	system := req.System + "\n\nRespond with a single JSON object of this shape and nothing else:\n" + shape.Describe()

	start := time.Now()
	raw, err := c.completer.Complete(ctx, system, req.Prompt)
	elapsed := time.Since(start)
	c.stats.Record(elapsed.Milliseconds(), err)
	if err != nil {
		return story.Fragment{}, err
	}

	f, err := DecodeFragment(raw, shape)
	if err != nil {
		c.log.Warn("discarding malformed fragment", "model", c.completer.Model(), "error", err)
		return story.Fragment{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return story.Fragment{}, fmt.Errorf("fragment id: %w", err)
	}
	f.ID = id.String()
	f.CreatedAt = time.Now().UTC()

	c.log.Debug("fragment generated",
		"model", c.completer.Model(),
		"duration_ms", elapsed.Milliseconds(),
		"chapter", f.ChapterTitle,
		"choices", len(f.Choices),
	)
	return f, nil
}
