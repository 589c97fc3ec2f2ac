package tracker

import (
	"github.com/lockhaven/paywalld/chain"
	"github.com/lockhaven/paywalld/history"
	"github.com/lockhaven/paywalld/paywall"
)

// reset wipes account-scoped state back to sentinels and triggers a full
// re-fetch. Fired on account change, network change and construction.
func (t *Tracker) reset() {
	t.keys = paywall.DefaultKeys(t.lockAddresses, t.account)
	t.transactions = make(map[string]*paywall.Transaction)
	t.tokenBalances = make(map[string]string)
	t.stopExpiryTimers()
	t.keyBatch.Reset()
	t.metrics.resets.Inc()

	if t.account != "" {
		t.fetchBalance(t.account)
	}
	t.fetchData()
	t.emit()
}

// fetchData re-reads lock and key state for every configured lock, in
// parallel, plus the transaction history. With no active account there is
// nothing to ask the chain: collapse to sentinels and emit.
func (t *Tracker) fetchData() {
	// the sentinel invariant also covers locks added to the config later
	for _, addr := range t.lockAddresses {
		if _, ok := t.keys[addr]; !ok {
			t.keys[addr] = paywall.DefaultKey(addr, t.account)
		}
	}

	if t.account == "" {
		t.keys = paywall.DefaultKeys(t.lockAddresses, t.account)
		t.transactions = make(map[string]*paywall.Transaction)
		t.balance = "0"
		t.emit()
		return
	}

	for _, addr := range t.lockAddresses {
		t.fetchLock(addr)
		t.fetchKey(addr, t.account)
	}
	t.retrieveHistory(t.account, t.network)
}

// Detached fetch helpers. Results are fed back through the queue as if they
// were live chain-read events, so the merge logic is shared between live and
// fetched data. Out-of-order completion is expected and tolerated.

func (t *Tracker) fetchLock(address string) {
	go func() {
		lock, err := t.reader.GetLock(t.Ctx(), address)
		if err != nil {
			t.Push(Input{Read: chain.ReadError{Err: err}})
			return
		}
		t.Push(Input{Read: chain.LockUpdated{Address: address, Update: lock}})
	}()
}

func (t *Tracker) fetchKey(lockAddress, owner string) {
	go func() {
		key, err := t.reader.GetKeyByLockForOwner(t.Ctx(), lockAddress, owner)
		if err != nil {
			t.Push(Input{Read: chain.ReadError{Err: err}})
			return
		}
		t.Push(Input{Read: chain.KeyUpdated{Key: key}})
	}()
}

func (t *Tracker) fetchTransaction(hash string, defaults *paywall.Transaction) {
	go func() {
		tx, err := t.reader.GetTransaction(t.Ctx(), hash, defaults)
		if err != nil {
			t.Push(Input{Read: chain.ReadError{Err: err}})
			return
		}
		t.Push(Input{Read: chain.TransactionUpdated{Hash: hash, Update: tx}})
	}()
}

func (t *Tracker) fetchBalance(address string) {
	go func() {
		balance, err := t.reader.GetAddressBalance(t.Ctx(), address)
		if err != nil {
			t.Push(Input{Read: chain.ReadError{Err: err}})
			return
		}
		t.Push(Input{Read: chain.AccountUpdated{Address: address, Balance: balance}})
	}()
}

func (t *Tracker) fetchTokenBalance(tokenContract, owner string) {
	go func() {
		balance, err := t.reader.GetTokenBalance(t.Ctx(), tokenContract, owner)
		if err != nil {
			t.Push(Input{Read: chain.ReadError{Err: err}})
			return
		}
		t.Push(Input{Cmd: CommandTokenBalance, TokenContract: tokenContract, TokenBalance: balance})
	}()
}

// retrieveHistory backfills transactions from the remote history endpoint,
// filtered to the configured locks and the active account. Each result is
// routed through the chain reader so backfilled transactions take the exact
// same merge path as live ones.
func (t *Tracker) retrieveHistory(account string, network int) {
	if t.hist == nil {
		return
	}
	go func() {
		stored, err := t.hist.GetTransactionsFor(t.Ctx(), account, t.lockAddresses)
		if err != nil {
			t.Push(Input{Read: chain.ReadError{Err: err}})
			return
		}
		for _, st := range stored {
			if st.Chain != network {
				continue
			}
			var defaults *paywall.Transaction
			if st.Data != "" {
				// only a transaction with input data can be safely used as
				// defaults: the type is parsed out of it
				defaults = &paywall.Transaction{
					Hash:    st.TransactionHash,
					Network: st.Chain,
					To:      st.Recipient,
					Input:   st.Data,
					From:    st.Sender,
					For:     st.For,
				}
			}
			t.fetchTransaction(st.TransactionHash, defaults)
		}
	}()
}

// storeTransaction write-through caches a freshly submitted transaction in
// the history endpoint. Explicitly best-effort: failures are logged and
// swallowed, never surfaced.
func (t *Tracker) storeTransaction(tx *paywall.Transaction) {
	if t.hist == nil || t.account == "" {
		return
	}
	payload := history.StoredTransaction{
		TransactionHash: tx.Hash,
		Sender:          t.account,
		For:             t.account,
		Recipient:       tx.RecipientLock(),
		Data:            tx.Input,
		Chain:           t.network,
	}
	go func() {
		if err := t.hist.StoreTransaction(t.Ctx(), payload); err != nil {
			t.Environment.Log().Warnf("unable to save key purchase transaction: %v", err)
		}
	}()
}
