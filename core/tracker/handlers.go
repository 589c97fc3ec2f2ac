package tracker

import (
	"errors"
	"time"

	"github.com/lockhaven/paywalld/chain"
	"github.com/lockhaven/paywalld/paywall"
)

// onAccountChanged: same account is a no-op, otherwise full reset
func (t *Tracker) onAccountChanged(newAccount string) {
	newAccount = paywall.NormalizeAddress(newAccount)
	if newAccount == t.account {
		return
	}
	t.Tracef(TraceTag, "account changed: '%s' -> '%s'", t.account, newAccount)
	t.account = newAccount
	t.reset()
}

// onNetworkChanged: same reset policy, keyed on network id
func (t *Tracker) onNetworkChanged(networkID int) {
	if networkID == t.network {
		return
	}
	t.Tracef(TraceTag, "network changed: %d -> %d", t.network, networkID)
	t.network = networkID
	t.reset()
}

// onAccountUpdated guards against stale balance updates for a previously
// active account
func (t *Tracker) onAccountUpdated(address, balance string) {
	if paywall.NormalizeAddress(address) != t.account {
		return
	}
	if balance == t.balance {
		return
	}
	t.balance = balance
	t.emit()
}

// onKeyUpdated is a whole-record replacement, followed by re-arming the
// expiry re-emission timer for the lock
func (t *Tracker) onKeyUpdated(key *paywall.Key) {
	k := key.Clone()
	k.Lock = paywall.NormalizeAddress(k.Lock)
	t.keys[k.Lock] = k
	t.armExpiryTimer(k)
	t.keyBatch.AddKey(k)
	t.emit()
}

// onLockUpdated merges last-write-wins and applies the configured display
// name override. A lock priced in an ERC20 currency triggers a detached
// token balance fetch for the active account.
func (t *Tracker) onLockUpdated(address string, update *paywall.Lock) {
	address = paywall.NormalizeAddress(address)
	upd := update.Clone()
	upd.Address = address
	if name := t.cfg.NameOverride(address); name != "" {
		upd.Name = name
	}

	if upd.CurrencyContractAddress != "" && t.account != "" {
		t.fetchTokenBalance(upd.CurrencyContractAddress, t.account)
	}

	lock, ok := t.locks[address]
	if !ok {
		lock = &paywall.Lock{Address: address}
		t.locks[address] = lock
	}
	mergeLock(lock, upd)
	t.metrics.merges.Inc()
	t.emit()
}

// onTransactionUpdated merges by hash, defaulting unknown fields on first
// sight. A key purchase additionally refreshes or synthesizes the key for
// the recipient lock.
func (t *Tracker) onTransactionUpdated(hash string, update *paywall.Transaction) {
	upd := update.Clone()
	if upd.Lock != "" {
		upd.Lock = paywall.NormalizeAddress(upd.Lock)
	}
	if upd.To != "" {
		upd.To = paywall.NormalizeAddress(upd.To)
	}

	tx, ok := t.transactions[hash]
	if !ok {
		tx = &paywall.Transaction{
			Hash:        hash,
			BlockNumber: paywall.MaxBlockNumber,
			Status:      paywall.TxStatusSubmitted,
		}
		t.transactions[hash] = tx
	}
	mergeTransaction(tx, upd)
	t.metrics.merges.Inc()

	recipient := tx.RecipientLock()
	if tx.Type == paywall.TxTypeKeyPurchase && recipient != "" && t.account != "" {
		if tx.IsMined() {
			// the chain has the real key now, ask for it
			t.fetchKey(recipient, t.account)
		} else {
			t.placeTemporaryKey(recipient)
		}
	}
	t.emit()
}

// onTransactionNew synthesizes the transaction record at submission time,
// persists it to the history endpoint (best-effort) and merges it like any
// other update
func (t *Tracker) onTransactionNew(e chain.TransactionNew) {
	to := paywall.NormalizeAddress(e.To)
	newTx := &paywall.Transaction{
		Hash: e.Hash,
		From: e.From,
		// in the direct purchase path the beneficiary is the sender
		For:         e.From,
		To:          to,
		Lock:        to,
		Input:       e.Input,
		Type:        e.Type,
		Status:      e.Status,
		BlockNumber: paywall.MaxBlockNumber,
		Network:     t.network,
	}

	if e.Type == paywall.TxTypeKeyPurchase && e.Status != paywall.TxStatusMined {
		t.placeTemporaryKey(to)
	}

	t.storeTransaction(newTx)
	t.transactions[e.Hash] = newTx
	t.metrics.merges.Inc()

	// start confirmation polling on the read side
	t.fetchTransaction(e.Hash, nil)
	t.emit()
}

// onWalletError performs the submitted-transaction rollback on purchase
// failure. The error carries no transaction identifier, so every submitted
// transaction goes: conservative, but the re-fetch restores anything that
// actually made it out.
func (t *Tracker) onWalletError(err error) {
	if !errors.Is(err, chain.ErrFailedToPurchaseKey) {
		t.emitError(err)
		return
	}
	t.emitError(errors.New("purchase failed"))
	for hash, tx := range t.transactions {
		if tx.Status == paywall.TxStatusSubmitted {
			delete(t.transactions, hash)
		}
	}
	t.metrics.rollbacks.Inc()
	t.fetchData()
	t.emit()
}

func (t *Tracker) onReadError(err error) {
	t.metrics.readErrors.Inc()
	t.emitError(err)
}

// placeTemporaryKey stores an optimistic key for the recipient lock while a
// purchase is in flight, so consumers see the pending membership
func (t *Tracker) placeTemporaryKey(lockAddress string) {
	duration := int64(0)
	if lock, ok := t.locks[lockAddress]; ok {
		duration = lock.ExpirationDuration
	}
	t.keys[lockAddress] = &paywall.Key{
		Lock:       lockAddress,
		Owner:      t.account,
		Expiration: time.Now().Unix() + duration,
	}
}

// mergeLock shallow-overwrites non-zero fields of upd (last-write-wins per
// field, no vector clocks)
func mergeLock(into, upd *paywall.Lock) {
	if upd.Name != "" {
		into.Name = upd.Name
	}
	if upd.KeyPrice != "" {
		into.KeyPrice = upd.KeyPrice
	}
	if upd.ExpirationDuration != 0 {
		into.ExpirationDuration = upd.ExpirationDuration
	}
	if upd.CurrencyContractAddress != "" {
		into.CurrencyContractAddress = upd.CurrencyContractAddress
	}
	if upd.MaxNumberOfKeys != 0 {
		into.MaxNumberOfKeys = upd.MaxNumberOfKeys
	}
	if upd.OutstandingKeys != 0 {
		into.OutstandingKeys = upd.OutstandingKeys
	}
	if upd.AsOf != 0 {
		into.AsOf = upd.AsOf
	}
	if upd.Network != 0 {
		into.Network = upd.Network
	}
}

// mergeTransaction shallow-overwrites non-zero fields of upd. Confirmations
// ride along with a status update so that 'mined with 0 confirmations' is
// representable.
func mergeTransaction(into, upd *paywall.Transaction) {
	if upd.From != "" {
		into.From = upd.From
	}
	if upd.For != "" {
		into.For = upd.For
	}
	if upd.To != "" {
		into.To = upd.To
	}
	if upd.Lock != "" {
		into.Lock = upd.Lock
	}
	if upd.Input != "" {
		into.Input = upd.Input
	}
	if upd.Type != "" {
		into.Type = upd.Type
	}
	if upd.Status != "" {
		into.Status = upd.Status
		into.Confirmations = upd.Confirmations
	} else if upd.Confirmations != 0 {
		into.Confirmations = upd.Confirmations
	}
	if upd.BlockNumber != 0 {
		into.BlockNumber = upd.BlockNumber
	}
	if upd.Network != 0 {
		into.Network = upd.Network
	}
}
