package generate

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/folio/internal/story"
)

// RetryPolicy describes how a failed generation is retried.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first.
	BaseDelay   time.Duration // Wait before the second attempt.
	Factor      float64       // Growth of the wait per attempt.
	MaxDelay    time.Duration // Cap on a single wait.
	Jitter      float64       // Up to this fraction of the wait is added at random.
	Retryable   func(error) bool
}

// DefaultRetryPolicy doubles from one second for up to four attempts and
// retries rate limiting and service errors only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		Factor:      2,
		MaxDelay:    30 * time.Second,
		Jitter:      0.5,
		Retryable:   IsRetryable,
	}
}

// Delay returns the wait after the given failed attempt (0-indexed),
// without jitter.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for range attempt {
		d *= p.Factor
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Factor < 1 {
		p.Factor = d.Factor
	}
	if p.Retryable == nil {
		p.Retryable = d.Retryable
	}
	return p
}

// Retrying wraps a Generator with a RetryPolicy. Every failure it returns
// is a *GenerationError.
type Retrying struct {
	next   Generator
	policy RetryPolicy
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetrying(next Generator, policy RetryPolicy, log *slog.Logger) *Retrying {
	return &Retrying{
		next:   next,
		policy: policy.withDefaults(),
		log:    log,
		sleep:  sleepCtx,
	}
}

func (r *Retrying) Generate(ctx context.Context, req Request) (story.Fragment, error) {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		f, err := r.next.Generate(ctx, req)
		if err == nil {
			return f, nil
		}
		lastErr = err

		if !r.policy.Retryable(err) {
			return story.Fragment{}, &GenerationError{Attempts: attempt + 1, Err: err}
		}
		if attempt == r.policy.MaxAttempts-1 {
			break
		}

		delay := r.policy.Delay(attempt)
		if r.policy.Jitter > 0 && delay > 0 {
			delay += time.Duration(rand.Int64N(int64(float64(delay)*r.policy.Jitter) + 1))
		}
		r.log.Warn("generation failed, retrying",
			"attempt", attempt+1,
			"max_attempts", r.policy.MaxAttempts,
			"delay", delay.String(),
			"error", err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return story.Fragment{}, &GenerationError{Attempts: attempt + 1, Err: err}
		}
	}
	return story.Fragment{}, &GenerationError{Attempts: r.policy.MaxAttempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
