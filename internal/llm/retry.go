package llm

import (
	"context"
	"errors"
	"time"
)

type retryPolicy struct {
	attempts int
	initial  time.Duration
	max      time.Duration
}

var defaultRetry = retryPolicy{attempts: 1}

// do runs fn until it succeeds, returns a permanent error, or the attempts run out.
// Backoff doubles from initial up to max.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	attempts := p.attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.initial
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			if wait < p.max {
				wait *= 2
				if wait > p.max {
					wait = p.max
				}
			}
		}
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// retryable reports transport failures and 429/5xx answers. Context errors, auth failures
// and undecodable bodies are permanent.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	return !errors.Is(err, ErrMissingAPIKey)
}
