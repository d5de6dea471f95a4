package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/folio/internal/api"
	"github.com/dgallion1/folio/internal/config"
	"github.com/dgallion1/folio/internal/generate"
	"github.com/dgallion1/folio/internal/pipeline"
	"github.com/dgallion1/folio/internal/store"
	"go.uber.org/multierr"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	completer, closeCompleter := newCompleter(cfg)
	llm := generate.NewClient(completer, generate.NewLLMStats(time.Hour), log)
	policy := generate.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.BaseDelay = cfg.RetryBaseDelay
	policy.MaxDelay = cfg.RetryMaxDelay
	gen := generate.NewRetrying(llm, policy, log)

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("open store", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, gen, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, db, llm, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Close()
		err := httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		err = multierr.Combine(err, db.Close(), closeCompleter())
		if err != nil {
			log.Error("shutdown", "error", err)
		}
	}()

	log.Info("starting folio",
		"port", cfg.Port,
		"provider", cfg.GeneratorProvider,
		"model", llm.Model(),
		"workers", cfg.WorkerCount,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}

// newCompleter builds the model client for the configured provider.
func newCompleter(cfg config.Config) (generate.Completer, func() error) {
	noop := func() error { return nil }
	switch cfg.GeneratorProvider {
	case "openai":
		return generate.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), noop
	case "mock":
		return &generate.MockCompleter{}, noop
	default:
		claude := generate.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		return claude, func() error {
			claude.Close()
			return nil
		}
	}
}
