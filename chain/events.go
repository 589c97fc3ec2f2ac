package chain

import (
	"errors"

	"github.com/lockhaven/paywalld/paywall"
)

// ErrFailedToPurchaseKey is reported by the chain-write service when a key
// purchase could not be broadcast. The event carries no transaction
// identifier, which is why the synchronizer rolls back every submitted
// transaction on it.
var ErrFailedToPurchaseKey = errors.New("FAILED_TO_PURCHASE_KEY")

type (
	// ReadEvent is the closed union of events emitted by the chain-read
	// service
	ReadEvent interface {
		isReadEvent()
	}

	// AccountUpdated carries a fresh balance observation for an address
	AccountUpdated struct {
		Address string
		Balance string
	}

	// KeyUpdated carries a whole-record key replacement
	KeyUpdated struct {
		Key *paywall.Key
	}

	// LockUpdated carries a sparse lock update: zero fields are absent
	LockUpdated struct {
		Address string
		Update  *paywall.Lock
	}

	// TransactionUpdated carries a sparse transaction update: zero fields
	// are absent
	TransactionUpdated struct {
		Hash   string
		Update *paywall.Transaction
	}

	// ReadError is a transient read failure. The snapshot is unaffected.
	ReadError struct {
		Err error
	}
)

func (AccountUpdated) isReadEvent()     {}
func (KeyUpdated) isReadEvent()         {}
func (LockUpdated) isReadEvent()        {}
func (TransactionUpdated) isReadEvent() {}
func (ReadError) isReadEvent()          {}

type (
	// WriteEvent is the closed union of events emitted by the chain-write
	// (signing) service
	WriteEvent interface {
		isWriteEvent()
	}

	AccountChanged struct {
		Address string
	}

	NetworkChanged struct {
		NetworkID int
	}

	// TransactionPending fires when a wallet confirmation dialog is up
	TransactionPending struct {
		Type paywall.TxType
	}

	// TransactionNew fires at submission time, before any confirmation
	TransactionNew struct {
		Hash   string
		From   string
		To     string
		Input  string
		Type   paywall.TxType
		Status paywall.TxStatus
	}

	WalletError struct {
		Err error
	}
)

func (AccountChanged) isWriteEvent()     {}
func (NetworkChanged) isWriteEvent()     {}
func (TransactionPending) isWriteEvent() {}
func (TransactionNew) isWriteEvent()     {}
func (WalletError) isWriteEvent()        {}
