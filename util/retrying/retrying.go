// Package retrying runs an operation with exponential backoff. Used for the
// grant dispatch, where a transient RPC failure must not burn the purchase.
package retrying

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Backoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable: Execute returns it immediately
// instead of running further attempts
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func DefaultBackoff() Backoff {
	return Backoff{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// Execute runs fun until it succeeds, retries are exhausted or ctx is done.
// The delay doubles after every failed attempt, capped at MaxDelay.
func (b Backoff) Execute(ctx context.Context, log *zap.SugaredLogger, name string, fun func() error) error {
	var lastErr error
	delay := b.InitialDelay

	for attempt := 0; attempt <= b.MaxRetries; attempt++ {
		lastErr = fun()
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt >= b.MaxRetries {
			break
		}
		if log != nil {
			log.Warnf("%s failed (attempt %d of %d), retrying in %v: %v",
				name, attempt+1, b.MaxRetries+1, delay, lastErr)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > b.MaxDelay {
			delay = b.MaxDelay
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, b.MaxRetries+1, lastErr)
}
