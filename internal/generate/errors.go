package generate

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrGenerationFailed matches every failed generation, including
	// exhausted retries and malformed responses.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrMalformedResponse means the upstream answered but the payload was
	// not a usable fragment. It is never retried.
	ErrMalformedResponse = errors.New("malformed response")
)

// RetryableError is a transient upstream failure: rate limiting (429) or
// an overloaded/unavailable service (5xx).
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	kind := "service unavailable"
	if e.RateLimited() {
		kind = "rate limited"
	}
	return fmt.Sprintf("%s (status %d): %s", kind, e.StatusCode, truncate(e.Message, 200))
}

// RateLimited reports whether the upstream rejected the call for quota.
func (e *RetryableError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// statusError classifies an upstream HTTP status. It returns nil for 2xx.
func statusError(provider string, code int, body string) error {
	switch {
	case code == http.StatusTooManyRequests || code >= 500:
		return &RetryableError{StatusCode: code, Message: body}
	case code < 200 || code > 299:
		return fmt.Errorf("%s api status %d: %s", provider, code, truncate(body, 200))
	}
	return nil
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// GenerationError is what callers see when a fragment could not be produced.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailed }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
