package keybatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lockhaven/paywalld/paywall"
)

func TestAccumulator(t *testing.T) {
	locks := []string{"0xa", "0xB"}

	t.Run("fires once when all slots filled", func(t *testing.T) {
		fired := 0
		var got map[string]*paywall.Key
		acc := New(locks, func(batch map[string]*paywall.Key) {
			fired++
			got = batch
		})

		acc.AddKey(&paywall.Key{Lock: "0xa", Expiration: 1})
		require.Equal(t, 0, fired)
		acc.AddKey(&paywall.Key{Lock: "0xb", Expiration: 2})
		require.Equal(t, 1, fired)
		require.Equal(t, 2, len(got))
		require.EqualValues(t, 1, got["0xa"].Expiration)
		require.EqualValues(t, 2, got["0xb"].Expiration)

		// further updates never re-fire a disarmed accumulator
		acc.AddKey(&paywall.Key{Lock: "0xa", Expiration: 3})
		acc.AddKey(&paywall.Key{Lock: "0xb", Expiration: 4})
		require.Equal(t, 1, fired)
	})

	t.Run("unconfigured locks are ignored", func(t *testing.T) {
		fired := 0
		acc := New(locks, func(map[string]*paywall.Key) { fired++ })
		acc.AddKey(&paywall.Key{Lock: "0xelse", Expiration: 1})
		acc.AddKey(&paywall.Key{Lock: "0xa", Expiration: 1})
		require.Equal(t, 0, fired)
	})

	t.Run("reset re-arms", func(t *testing.T) {
		fired := 0
		acc := New(locks, func(map[string]*paywall.Key) { fired++ })
		acc.AddKey(&paywall.Key{Lock: "0xa", Expiration: 1})
		acc.AddKey(&paywall.Key{Lock: "0xb", Expiration: 1})
		require.Equal(t, 1, fired)

		acc.Reset()
		acc.AddKey(&paywall.Key{Lock: "0xa", Expiration: 5})
		require.Equal(t, 1, fired)
		acc.AddKey(&paywall.Key{Lock: "0xb", Expiration: 5})
		require.Equal(t, 2, fired)
	})

	t.Run("lock addresses are normalized", func(t *testing.T) {
		fired := 0
		acc := New(locks, func(map[string]*paywall.Key) { fired++ })
		acc.AddKey(&paywall.Key{Lock: "0xA", Expiration: 1})
		acc.AddKey(&paywall.Key{Lock: "0xB", Expiration: 1})
		require.Equal(t, 1, fired)
	})
}
