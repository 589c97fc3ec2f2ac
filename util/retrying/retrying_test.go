package retrying

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	b := Backoff{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("first attempt succeeds", func(t *testing.T) {
		calls := 0
		err := b.Execute(context.Background(), nil, "op", func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("recovers within budget", func(t *testing.T) {
		calls := 0
		err := b.Execute(context.Background(), nil, "op", func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("exhausts retries", func(t *testing.T) {
		boom := errors.New("permanent")
		calls := 0
		err := b.Execute(context.Background(), nil, "op", func() error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, 3, calls)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		boom := errors.New("will not improve")
		calls := 0
		err := b.Execute(context.Background(), nil, "op", func() error {
			calls++
			return Permanent(boom)
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, 1, calls)
	})

	t.Run("stops on context cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := b.Execute(ctx, nil, "op", func() error {
			calls++
			return errors.New("transient")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, calls)
	})
}
