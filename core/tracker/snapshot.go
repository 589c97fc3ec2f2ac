package tracker

import (
	"time"

	"golang.org/x/exp/maps"

	"github.com/lockhaven/paywalld/paywall"
)

// expiryReEmitDelay puts the re-emission safely past the expiration second
const expiryReEmitDelay = 1 * time.Second

// emit derives statuses, joins keys to locks and ships the resulting snapshot
// to the consumer. Every state-changing handler ends in emit, so consumers
// always see a complete, internally consistent view.
func (t *Tracker) emit() {
	nowis := time.Now()
	snap := &paywall.Snapshot{
		Account:       t.account,
		Network:       t.network,
		Balance:       t.balance,
		TokenBalances: maps.Clone(t.tokenBalances),
		Locks:         paywall.LinkKeysToLocks(t.locks, t.keys, t.transactions, t.cfg.RequiredConfirmations, nowis),
		Keys:          make(map[string]*paywall.Key, len(t.keys)),
		Transactions:  make(map[string]*paywall.Transaction, len(t.transactions)),
	}
	for addr, k := range t.keys {
		snap.Keys[addr] = paywall.LinkTransactionsToKey(k, t.transactions, t.cfg.RequiredConfirmations, nowis)
	}
	for hash, tx := range t.transactions {
		snap.Transactions[hash] = tx.Clone()
	}

	t.lastSnapshotMutex.Lock()
	t.lastSnapshot = snap
	t.lastSnapshotMutex.Unlock()

	t.metrics.emissions.Inc()
	t.Tracef(TraceTag, "emit: account=%s network=%d keys=%d txs=%d",
		snap.Account, snap.Network, len(snap.Keys), len(snap.Transactions))
	if t.emitChanges != nil {
		t.emitChanges(snap.Clone())
	}
}

// armExpiryTimer schedules a one-shot re-emission shortly after the key
// expires, so the derived status flips to expired without any chain event.
// A newer key for the same lock supersedes the pending timer.
func (t *Tracker) armExpiryTimer(key *paywall.Key) {
	if timer, ok := t.expiryTimers[key.Lock]; ok {
		timer.Stop()
		delete(t.expiryTimers, key.Lock)
	}
	if key.IsDefault() {
		return
	}
	untilExpiry := time.Until(time.Unix(key.Expiration, 0))
	if untilExpiry < 0 {
		// already expired: the derived status is final, nothing to re-emit
		return
	}
	t.expiryTimers[key.Lock] = time.AfterFunc(untilExpiry+expiryReEmitDelay, func() {
		t.Push(Input{Cmd: CommandEmit})
	})
}

func (t *Tracker) stopExpiryTimers() {
	for addr, timer := range t.expiryTimers {
		timer.Stop()
		delete(t.expiryTimers, addr)
	}
}
