// Package purchase implements the assisted-purchase saga: quote, payment
// intent, on-chain grant, card capture, subscription record. The ordering
// invariant of the whole package: the card is captured only inside the grant
// dispatch completion callback, after the grant transaction hash is known.
// A capture failure after the grant was broadcast is surfaced but never
// compensated: minting is irreversible and the chain stays the ground truth.
package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/lockhaven/paywalld/global"
	"github.com/lockhaven/paywalld/payment"
	"github.com/lockhaven/paywalld/paywall"
	"github.com/lockhaven/paywalld/records"
	"github.com/lockhaven/paywalld/util/retrying"
)

// precondition rejections. Returned synchronously, before any money or gas
// is spent, with no partial state created.
var (
	ErrSoldOut             = errors.New("lock is sold out")
	ErrNoGasFunds          = errors.New("dispatcher has insufficient gas funds")
	ErrNotConnected        = errors.New("no payment processor connected to the lock")
	ErrConnectNotReady     = errors.New("payment processor connection is not ready")
	ErrPriceDiverged       = errors.New("price diverged by more than the accepted tolerance")
	ErrUnknownLock         = errors.New("unknown lock")
	ErrIntentNotCapturable = errors.New("payment intent cannot be captured")
	ErrIntentMismatch      = errors.New("request does not match the stored payment intent")
)

type (
	Environment interface {
		global.PaywallGlobal
	}

	// Dispatcher broadcasts grant transactions and pays their gas with its
	// own funds, distinct from the purchaser's wallet
	Dispatcher interface {
		HasGasFunds(ctx context.Context, network int, keyCount int) (bool, error)
		// GrantKeys submits the grant transaction. onSubmitted runs exactly
		// once, after the transaction hash is known but before mining; its
		// error fails the call.
		GrantKeys(ctx context.Context, lockAddress string, recipients []string, network int, onSubmitted func(txHash string) error) error
		// KeyIDFor resolves the on-chain key id held by owner on the lock
		KeyIDFor(ctx context.Context, lockAddress, owner string, network int) (string, error)
	}

	// Records is the slice of the records store the saga needs
	Records interface {
		SaveIntent(*records.PaymentIntentRecord) error
		FindReusableIntent(userAddress, lockAddress string, chain int, connectedStripeID string) (*records.PaymentIntentRecord, error)
		FindIntentByID(intentID string) (*records.PaymentIntentRecord, error)
		SaveCharge(*records.Charge) error
		SetChargeTransactionHash(chargeID, txHash string) error
		SaveSubscription(*records.Subscription) error
	}

	// LockState serves the current view of a configured lock, typically
	// backed by the synchronizer snapshot. Nil means unknown lock.
	LockState func(lockAddress string) *paywall.Lock

	Saga struct {
		Environment
		gateway    payment.Gateway
		pricer     *payment.Pricer
		recs       Records
		dispatcher Dispatcher
		lockState  LockState
		backoff    retrying.Backoff

		metrics sagaMetrics
	}

	Params struct {
		Gateway    payment.Gateway
		Records    Records
		Dispatcher Dispatcher
		LockState  LockState
		Backoff    *retrying.Backoff // nil means the default
	}

	// IntentRequest asks for a confirmable payment intent
	IntentRequest struct {
		Purchaser        string
		Recipients       []string
		Lock             string
		Network          int
		CustomerID       string
		AgreedMaxInCents int64
		Recurring        int
	}

	IntentReceipt struct {
		ClientSecret     string
		ConnectedAccount string
		Pricing          payment.Pricing
	}

	// CaptureRequest captures a previously confirmed intent and grants the
	// keys
	CaptureRequest struct {
		Purchaser  string
		Recipients []string
		Lock       string
		Network    int
		IntentID   string
	}

	CaptureReceipt struct {
		TransactionHash string
		ChargeID        string
	}
)

const Name = "purchase"

func New(env Environment, par Params) *Saga {
	ret := &Saga{
		Environment: env,
		gateway:     par.Gateway,
		pricer:      payment.NewPricer(),
		recs:        par.Records,
		dispatcher:  par.Dispatcher,
		lockState:   par.LockState,
		backoff:     retrying.DefaultBackoff(),
	}
	if par.Backoff != nil {
		ret.backoff = *par.Backoff
	}
	ret.registerMetrics()
	return ret
}

// preconditions are evaluated in order of increasing cost: the sold-out
// check runs against local state and makes no service calls at all.
func (s *Saga) preconditions(ctx context.Context, lockAddress string, recipientCount int, network int) (*paywall.Lock, payment.ConnectInfo, error) {
	lock := s.lockState(lockAddress)
	if lock == nil {
		return nil, payment.ConnectInfo{}, ErrUnknownLock
	}
	if lock.IsSoldOut(int64(recipientCount)) {
		s.metrics.rejections.Inc()
		return nil, payment.ConnectInfo{}, ErrSoldOut
	}

	hasFunds, err := s.dispatcher.HasGasFunds(ctx, network, recipientCount)
	if err != nil {
		return nil, payment.ConnectInfo{}, fmt.Errorf("gas funds check: %w", err)
	}
	if !hasFunds {
		s.metrics.rejections.Inc()
		return nil, payment.ConnectInfo{}, ErrNoGasFunds
	}

	connect, err := s.gateway.ConnectForLock(ctx, lockAddress, network)
	if err != nil {
		return nil, payment.ConnectInfo{}, fmt.Errorf("connect lookup: %w", err)
	}
	switch connect.Code {
	case payment.ConnectMissing:
		s.metrics.rejections.Inc()
		return nil, payment.ConnectInfo{}, ErrNotConnected
	case payment.ConnectNotReady:
		s.metrics.rejections.Inc()
		return nil, payment.ConnectInfo{}, ErrConnectNotReady
	}
	return lock, connect, nil
}

// CreateIntent runs the preconditions, quotes the price and creates (or
// reuses) a manual-capture payment intent for the purchaser to confirm
func (s *Saga) CreateIntent(ctx context.Context, req IntentRequest) (*IntentReceipt, error) {
	purchaser := paywall.NormalizeAddress(req.Purchaser)
	lockAddress := paywall.NormalizeAddress(req.Lock)

	lock, connect, err := s.preconditions(ctx, lockAddress, len(req.Recipients), req.Network)
	if err != nil {
		return nil, err
	}

	pricing, err := s.pricer.Quote(lock, len(req.Recipients))
	if err != nil {
		return nil, err
	}
	if !payment.WithinTolerance(pricing.TotalInCents(), req.AgreedMaxInCents) {
		s.metrics.rejections.Inc()
		return nil, ErrPriceDiverged
	}

	// a pending intent created moments ago for the same purchase is reused
	// instead of piling up duplicates on the processor side
	existing, err := s.recs.FindReusableIntent(purchaser, lockAddress, req.Network, connect.Account)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.CoversRecipients(req.Recipients) {
		intent, err := s.gateway.RetrieveIntent(ctx, connect.Account, existing.IntentID)
		if err != nil {
			return nil, err
		}
		if intent.Status == payment.IntentRequiresConfirmation {
			return &IntentReceipt{
				ClientSecret:     intent.ClientSecret,
				ConnectedAccount: connect.Account,
				Pricing:          pricing,
			}, nil
		}
	}

	intent, err := s.gateway.CreateIntent(ctx, connect.Account, payment.IntentParams{
		Purchaser:         purchaser,
		Recipients:        req.Recipients,
		CustomerID:        req.CustomerID,
		Lock:              lockAddress,
		Network:           req.Network,
		AmountInCents:     pricing.TotalInCents(),
		ServiceFeeInCents: pricing.ServiceFeeInCents,
		Recurring:         req.Recurring,
	})
	if err != nil {
		return nil, err
	}
	err = s.recs.SaveIntent(&records.PaymentIntentRecord{
		IntentID:          intent.ID,
		UserAddress:       purchaser,
		LockAddress:       lockAddress,
		Chain:             req.Network,
		Recipients:        records.JoinRecipients(req.Recipients),
		StripeCustomerID:  req.CustomerID,
		ConnectedStripeID: connect.Account,
		Recurring:         req.Recurring,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.intentsCreated.Inc()
	return &IntentReceipt{
		ClientSecret:     intent.ClientSecret,
		ConnectedAccount: connect.Account,
		Pricing:          pricing,
	}, nil
}

// Capture validates the confirmed intent against the stored record, grants
// the keys and captures the card inside the grant completion callback. On
// success, exactly one subscription row is written for the purchaser's own
// key when the purchase is recurring.
func (s *Saga) Capture(ctx context.Context, req CaptureRequest) (*CaptureReceipt, error) {
	purchaser := paywall.NormalizeAddress(req.Purchaser)
	lockAddress := paywall.NormalizeAddress(req.Lock)

	stored, err := s.recs.FindIntentByID(req.IntentID)
	if err != nil {
		return nil, fmt.Errorf("could not find payment intent: %w", err)
	}
	intent, err := s.gateway.RetrieveIntent(ctx, stored.ConnectedStripeID, req.IntentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != payment.IntentRequiresCapture {
		return nil, ErrIntentNotCapturable
	}
	if paywall.NormalizeAddress(intent.Lock) != lockAddress ||
		paywall.NormalizeAddress(intent.Purchaser) != purchaser ||
		!stored.CoversRecipients(req.Recipients) {
		return nil, ErrIntentMismatch
	}

	lock := s.lockState(lockAddress)
	if lock == nil {
		return nil, ErrUnknownLock
	}
	pricing, err := s.pricer.Quote(lock, len(req.Recipients))
	if err != nil {
		return nil, err
	}
	if !payment.WithinTolerance(pricing.TotalInCents(), intent.AmountInCents) {
		s.metrics.rejections.Inc()
		return nil, ErrPriceDiverged
	}

	charge := &records.Charge{
		UserAddress:       purchaser,
		LockAddress:       lockAddress,
		Chain:             req.Network,
		Recipients:        records.JoinRecipients(req.Recipients),
		StripeCustomerID:  intent.CustomerID,
		ConnectedCustomer: intent.CustomerID,
		IntentID:          intent.ID,
		TotalPriceInCents: intent.AmountInCents,
		Recurring:         stored.Recurring,
	}
	if err = s.recs.SaveCharge(charge); err != nil {
		return nil, err
	}

	recurring := charge.Recurring
	var txHash string
	grant := func() error {
		err := s.dispatcher.GrantKeys(ctx, lockAddress, req.Recipients, req.Network, func(hash string) error {
			txHash = hash
			if err := s.recs.SetChargeTransactionHash(charge.ChargeID, hash); err != nil {
				s.Log().Warnf("[%s] could not record grant hash on charge %s: %v", Name, charge.ChargeID, err)
			}
			if err := s.gateway.SetIntentTransactionHash(ctx, stored.ConnectedStripeID, intent.ID, hash); err != nil {
				s.Log().Warnf("[%s] could not record grant hash on intent %s: %v", Name, intent.ID, err)
			}
			// the only place the money actually moves
			return s.gateway.CaptureIntent(ctx, stored.ConnectedStripeID, intent.ID)
		})
		if err != nil && txHash != "" {
			// the grant went out: another attempt would mint the keys again
			return retrying.Permanent(err)
		}
		return err
	}
	if err = s.backoff.Execute(ctx, s.Log(), Name+".grantKeys", grant); err != nil {
		s.metrics.captureFailures.Inc()
		if txHash != "" {
			// the grant went out; the chain is authoritative and is not
			// rolled back
			return nil, fmt.Errorf("capture failed after grant %s was broadcast: %w", txHash, err)
		}
		return nil, err
	}
	s.metrics.captures.Inc()

	if recurring > 0 {
		s.recordSubscription(ctx, stored, intent, purchaser, lockAddress, req.Network, recurring)
	}
	return &CaptureReceipt{TransactionHash: txHash, ChargeID: charge.ChargeID}, nil
}

// recordSubscription scopes the renewal eligibility to the purchaser's own
// key. Gifted recipients never gave consent to be billed later and get none.
func (s *Saga) recordSubscription(ctx context.Context, stored *records.PaymentIntentRecord, intent *payment.Intent, purchaser, lockAddress string, network, recurring int) {
	keyID, err := s.dispatcher.KeyIDFor(ctx, lockAddress, purchaser, network)
	if err != nil {
		s.Log().Warnf("[%s] could not resolve key id for subscription: %v", Name, err)
		return
	}
	err = s.recs.SaveSubscription(&records.Subscription{
		KeyID:             keyID,
		LockAddress:       lockAddress,
		UserAddress:       purchaser,
		Chain:             network,
		AmountInCents:     intent.AmountInCents,
		StripeCustomerID:  stored.StripeCustomerID,
		ConnectedCustomer: stored.ConnectedCustomerID,
		Recurring:         recurring,
	})
	if err != nil {
		s.Log().Warnf("[%s] could not save subscription: %v", Name, err)
	}
}
