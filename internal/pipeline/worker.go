package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgallion1/folio/internal/generate"
	"github.com/dgallion1/folio/internal/session"
)

// Worker generates the fragment for one turn at a time.
type Worker struct {
	gen generate.Generator
	log *slog.Logger
}

func NewWorker(gen generate.Generator, log *slog.Logger) *Worker {
	return &Worker{gen: gen, log: log}
}

// Process generates the next fragment for turn and completes or fails it on s.
// The prompt is built from the history captured when the turn began.
func (w *Worker) Process(ctx context.Context, s *session.Session, turn session.Turn) {
	log := w.log.With("session_id", s.ID(), "seq", turn.Seq)
	start := time.Now()

	f, err := w.gen.Generate(ctx, generate.Request{
		System: turn.System,
		Prompt: generate.BuildTurnPrompt(turn.Input),
		Shape:  generate.FragmentShape,
	})
	if err != nil {
		log.Error("generation failed", "error", err, "malformed", errors.Is(err, generate.ErrMalformedResponse))
		if ferr := s.FailTurn(turn, err); ferr != nil {
			log.Warn("could not fail turn", "error", ferr)
		}
		return
	}

	if err := s.CompleteTurn(turn, f); err != nil {
		log.Error("fragment rejected", "fragment_id", f.ID, "error", err)
		return
	}
	log.Info("turn complete",
		"fragment_id", f.ID,
		"chapter", f.ChapterTitle,
		"ending", f.Ending(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
