package payment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lockhaven/paywalld/paywall"
)

func TestQuote(t *testing.T) {
	pricer := NewPricer()
	lock := &paywall.Lock{Address: "0xlock", KeyPrice: "12.34"}

	pricing, err := pricer.Quote(lock, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1234, pricing.KeyPriceInCents)
	require.EqualValues(t, 50, pricing.ServiceFeeInCents)
	require.EqualValues(t, 1284, pricing.TotalInCents())

	pricing, err = pricer.Quote(lock, 3)
	require.NoError(t, err)
	require.EqualValues(t, 3702, pricing.KeyPriceInCents)
	require.EqualValues(t, 3752, pricing.TotalInCents())

	_, err = pricer.Quote(&paywall.Lock{Address: "0xbad", KeyPrice: "not-a-number"}, 1)
	require.Error(t, err)
}

func TestWithinTolerance(t *testing.T) {
	require.True(t, WithinTolerance(1000, 1000))
	require.True(t, WithinTolerance(1030, 1000))
	require.True(t, WithinTolerance(970, 1000))
	require.False(t, WithinTolerance(1031, 1000))
	require.False(t, WithinTolerance(969, 1000))
}
