// Package records persists the fiat side of key purchases: payment intents,
// captured charges and recurring subscriptions. The chain remains the ground
// truth for membership; these rows exist for billing and renewal.
package records

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentIntentRecord struct {
	gorm.Model
	IntentID            string `gorm:"uniqueIndex;size:64"`
	UserAddress         string `gorm:"index;size:42"`
	LockAddress         string `gorm:"index;size:42"`
	Chain               int
	Recipients          string `gorm:"size:1024"` // comma-joined addresses
	StripeCustomerID    string `gorm:"size:64"`
	ConnectedStripeID   string `gorm:"size:64"`
	ConnectedCustomerID string `gorm:"size:64"`
	Recurring           int
}

type Charge struct {
	gorm.Model
	ChargeID          string `gorm:"uniqueIndex;size:36"`
	UserAddress       string `gorm:"index;size:42"`
	LockAddress       string `gorm:"index;size:42"`
	Chain             int
	Recipients        string `gorm:"size:1024"`
	StripeCustomerID  string `gorm:"size:64"`
	ConnectedCustomer string `gorm:"size:64"`
	IntentID          string `gorm:"size:64"`
	TotalPriceInCents int64
	ServiceFeeInCents int64
	TransactionHash   string `gorm:"size:66"`
	Recurring         int
}

// Subscription makes a granted key renewal-eligible. Exactly one row per
// successful capture, always for the purchaser's own key, never for gifted
// recipients.
type Subscription struct {
	gorm.Model
	KeyID             string `gorm:"index;size:80"`
	LockAddress       string `gorm:"index;size:42"`
	UserAddress       string `gorm:"index;size:42"`
	Chain             int
	AmountInCents     int64
	ServiceFeeInCents int64
	StripeCustomerID  string `gorm:"size:64"`
	ConnectedCustomer string `gorm:"size:64"`
	Recurring         int
}

func (c *Charge) BeforeCreate(_ *gorm.DB) error {
	if c.ChargeID == "" {
		c.ChargeID = uuid.NewString()
	}
	return nil
}

func JoinRecipients(recipients []string) string {
	return strings.Join(recipients, ",")
}

// RecipientList is the recipients the intent was created for
func (r *PaymentIntentRecord) RecipientList() []string {
	if r.Recipients == "" {
		return nil
	}
	return strings.Split(r.Recipients, ",")
}

// CoversRecipients reports whether every recipient of the stored intent is
// still among the requested ones, the condition for reusing it
func (r *PaymentIntentRecord) CoversRecipients(requested []string) bool {
	requestedSet := make(map[string]struct{}, len(requested))
	for _, addr := range requested {
		requestedSet[addr] = struct{}{}
	}
	for _, addr := range r.RecipientList() {
		if _, ok := requestedSet[addr]; !ok {
			return false
		}
	}
	return true
}
