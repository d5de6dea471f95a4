// Package pipeline runs story generation off the request path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/folio/internal/config"
	"github.com/dgallion1/folio/internal/generate"
	"github.com/dgallion1/folio/internal/session"
)

var (
	// ErrQueueFull is returned by Submit when the turn queue has no room.
	ErrQueueFull = errors.New("turn queue is full")
	// ErrStopped is returned by Submit once Stop has been called.
	ErrStopped = errors.New("pipeline stopped")
)

// Notifier is called after a session changes in the background.
type Notifier func(s *session.Session)

type job struct {
	session *session.Session
	turn    session.Turn
	queued  time.Time
}

// Orchestrator owns the live sessions and the worker pool that generates
// their next fragments.
type Orchestrator struct {
	sessions *session.Registry
	queue    chan job
	gen      generate.Generator
	log      *slog.Logger
	cfg      config.Config

	mu      sync.Mutex
	notify  []Notifier
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, gen generate.Generator, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		sessions: session.NewRegistry(cfg.SessionTTL),
		queue:    make(chan job, cfg.MaxQueueSize),
		gen:      gen,
		log:      log,
		cfg:      cfg,
	}
}

// Subscribe registers fn to run after every background session update.
func (o *Orchestrator) Subscribe(fn Notifier) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notify = append(o.notify, fn)
}

func (o *Orchestrator) publish(s *session.Session) {
	o.mu.Lock()
	fns := append([]Notifier(nil), o.notify...)
	o.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.gen, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case j, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, j.session, j.turn)
					o.publish(j.session)
				}
			}
		}()
	}

	// Evict idle sessions.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if n := o.sessions.Cleanup(); n > 0 {
					o.log.Info("evicted idle sessions", "count", n)
				}
			}
		}
	}()
}

// Stop shuts the workers down and fails any turns still queued.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()

	for j := range o.queue {
		o.fail(j.session, j.turn, errors.New("server shutting down"))
	}
}

// Submit queues a turn that s.BeginTurn already reserved. When the queue is
// full the turn is failed so the reader can try again.
func (o *Orchestrator) Submit(s *session.Session, turn session.Turn) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		o.fail(s, turn, ErrStopped)
		return ErrStopped
	}
	select {
	case o.queue <- job{session: s, turn: turn, queued: time.Now()}:
		o.mu.Unlock()
		return nil
	default:
		o.mu.Unlock()
		err := fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
		o.fail(s, turn, err)
		return err
	}
}

func (o *Orchestrator) fail(s *session.Session, turn session.Turn, cause error) {
	if err := s.FailTurn(turn, cause); err != nil {
		o.log.Warn("could not fail turn", "session_id", s.ID(), "error", err)
	}
}

// Sessions returns the live session registry.
func (o *Orchestrator) Sessions() *session.Registry {
	return o.sessions
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
