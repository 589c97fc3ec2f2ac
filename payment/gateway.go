// Package payment talks to the card-payment processor. Intents are created
// with manual capture: the money moves only when the purchase saga explicitly
// captures, which happens strictly after the on-chain grant transaction hash
// is known.
package payment

import "context"

// Connect sentinel codes for locks without a usable processor integration.
// The two cases are distinguishable on purpose: "never connected" and
// "connected but the account has not finished onboarding" get different
// user-facing answers.
const (
	ConnectMissing  = 0
	ConnectNotReady = -1
)

type (
	// ConnectInfo describes the processor integration of one lock
	ConnectInfo struct {
		// Code is ConnectMissing, ConnectNotReady or positive when ready
		Code    int    `json:"code"`
		Account string `json:"account,omitempty"`
	}

	IntentParams struct {
		Purchaser         string   `json:"purchaser"`
		Recipients        []string `json:"recipients"`
		CustomerID        string   `json:"customerId"`
		Lock              string   `json:"lock"`
		Network           int      `json:"network"`
		AmountInCents     int64    `json:"amount"`
		ServiceFeeInCents int64    `json:"applicationFeeAmount"`
		Recurring         int      `json:"recurring"`
	}

	// Intent mirrors the processor-side payment intent
	Intent struct {
		ID            string   `json:"id"`
		ClientSecret  string   `json:"clientSecret"`
		Status        string   `json:"status"`
		AmountInCents int64    `json:"amount"`
		Purchaser     string   `json:"purchaser"`
		Lock          string   `json:"lock"`
		Recipients    []string `json:"recipients"`
		CustomerID    string   `json:"customer"`
	}

	// Gateway is everything the purchase saga needs from the processor
	Gateway interface {
		ConnectForLock(ctx context.Context, lockAddress string, network int) (ConnectInfo, error)
		CreateIntent(ctx context.Context, connectedAccount string, par IntentParams) (*Intent, error)
		RetrieveIntent(ctx context.Context, connectedAccount, intentID string) (*Intent, error)
		// SetIntentTransactionHash records the grant transaction hash on the
		// processor side before capture
		SetIntentTransactionHash(ctx context.Context, connectedAccount, intentID, txHash string) error
		CaptureIntent(ctx context.Context, connectedAccount, intentID string) error
	}
)

// intent statuses the saga cares about
const (
	IntentRequiresConfirmation = "requires_confirmation"
	IntentRequiresCapture      = "requires_capture"
	IntentSucceeded            = "succeeded"
)

func (ci ConnectInfo) Ready() bool {
	return ci.Code > 0 && ci.Account != ""
}
