// Package chain declares the narrow contracts of the two chain services the
// synchronizer consumes: a read-only service resolving locks, keys, balances
// and transactions, and a write/signing service owning the wallet. Both are
// external collaborators; this package carries their event unions and
// interfaces only.
package chain

import (
	"context"

	"github.com/lockhaven/paywalld/paywall"
)

type (
	// Reader is the chain-read service. Getter results are also fed back by
	// implementations through the event stream (e.g. a transaction lookup
	// starts confirmation polling which keeps emitting TransactionUpdated).
	Reader interface {
		GetLock(ctx context.Context, address string) (*paywall.Lock, error)
		GetKeyByLockForOwner(ctx context.Context, lock, owner string) (*paywall.Key, error)
		// GetTransaction resolves a transaction, seeding unknown fields from
		// defaults when provided (history backfill path)
		GetTransaction(ctx context.Context, hash string, defaults *paywall.Transaction) (*paywall.Transaction, error)
		GetAddressBalance(ctx context.Context, address string) (string, error)
		GetTokenBalance(ctx context.Context, tokenContract, owner string) (string, error)
		Events() <-chan ReadEvent
	}

	// PurchaseParams is what the wallet needs to broadcast a key purchase
	PurchaseParams struct {
		LockAddress  string
		Owner        string
		AmountToSend string
		ERC20Address string
	}

	// Writer is the chain-write/signing service
	Writer interface {
		// GetAccount re-probes the wallet for the active account. The result
		// arrives as an AccountChanged event.
		GetAccount(ctx context.Context) error
		PurchaseKey(ctx context.Context, par PurchaseParams) error
		// Ready reports whether a provider is attached
		Ready() bool
		Events() <-chan WriteEvent
	}
)
