// Package poll implements a repeat-until-changed primitive: probe a value on
// a fixed period, compare with the previous observation and invoke a callback
// when it differs. No backoff, no jitter. The loop runs until the context is
// cancelled.
package poll

import (
	"context"
	"time"
)

type (
	// Probe obtains the current observation
	Probe[T any] func(ctx context.Context) (T, error)

	// HasChanged compares the baseline with the fresh observation
	HasChanged[T any] func(before, after T) bool

	// OnChange is invoked with the fresh observation. The observation becomes
	// the new baseline
	OnChange[T any] func(after T)

	// OnError is invoked on probe failure. The baseline is kept
	OnError func(err error)
)

// Repeat blocks until ctx is closed. The first successful probe becomes the
// baseline and does not trigger the callback.
func Repeat[T any](ctx context.Context, probe Probe[T], hasChanged HasChanged[T], onChange OnChange[T], delay time.Duration, onError ...OnError) {
	reportErr := func(error) {}
	if len(onError) > 0 {
		reportErr = onError[0]
	}

	var baseline T
	baselineKnown := false

	for {
		after, err := probe(ctx)
		switch {
		case err != nil:
			reportErr(err)
		case !baselineKnown:
			baseline = after
			baselineKnown = true
		case hasChanged(baseline, after):
			baseline = after
			onChange(after)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
