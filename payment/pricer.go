package payment

import (
	"fmt"
	"math"
	"strconv"

	"github.com/lockhaven/paywalld/paywall"
)

// Pricing is the cent breakdown of one purchase quote
type Pricing struct {
	KeyPriceInCents   int64 `json:"keyPrice"`
	ServiceFeeInCents int64 `json:"unlockServiceFee"`
}

const (
	// service fee charged on top of the key price, in cents
	serviceFeeInCents = int64(50)
	// quotes diverging from the agreed maximum by more than this fraction
	// are rejected
	priceTolerance = 0.03
)

// Pricer quotes the fiat price of a key purchase: per-recipient key price
// times the recipient count, plus the service fee
type Pricer struct{}

func NewPricer() *Pricer {
	return &Pricer{}
}

func (p *Pricer) Quote(lock *paywall.Lock, recipientCount int) (Pricing, error) {
	priceInCents, err := amountToCents(lock.KeyPrice)
	if err != nil {
		return Pricing{}, fmt.Errorf("Quote: lock %s: %w", lock.Address, err)
	}
	return Pricing{
		KeyPriceInCents:   priceInCents * int64(recipientCount),
		ServiceFeeInCents: serviceFeeInCents,
	}, nil
}

func (p Pricing) TotalInCents() int64 {
	return p.KeyPriceInCents + p.ServiceFeeInCents
}

// WithinTolerance reports whether totalInCents stays within the accepted
// divergence of the price the purchaser agreed to
func WithinTolerance(totalInCents, agreedMaxInCents int64) bool {
	divergence := math.Abs(float64(totalInCents - agreedMaxInCents))
	return divergence <= priceTolerance*float64(agreedMaxInCents)
}

func amountToCents(amount string) (int64, error) {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse amount '%s': %w", amount, err)
	}
	return int64(math.Round(v * 100)), nil
}
