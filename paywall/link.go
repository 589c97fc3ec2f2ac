package paywall

import (
	"sort"
	"time"
)

// transactionIsForKey filters transactions down to the ones granting this key:
// the recipient lock must match and the beneficiary (the 'for' account, or the
// sender when no beneficiary is recorded) must be the key owner
func transactionIsForKey(tx *Transaction, key *Key) bool {
	if NormalizeAddress(tx.RecipientLock()) != key.Lock {
		return false
	}
	beneficiary := tx.For
	if beneficiary == "" {
		beneficiary = tx.From
	}
	return NormalizeAddress(beneficiary) == NormalizeAddress(key.Owner)
}

// LinkTransactionsToKey attaches the relevant transactions to a copy of the
// key, most recent first (unmined sort as newest), and derives status and
// confirmations. The input key is not mutated.
func LinkTransactionsToKey(key *Key, transactions map[string]*Transaction, requiredConfirmations int, nowis time.Time) *Key {
	relevant := make([]*Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if transactionIsForKey(tx, key) {
			relevant = append(relevant, tx.Clone())
		}
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].BlockNumber > relevant[j].BlockNumber
	})

	ret := key.Clone()
	ret.Transactions = relevant
	ret.Status = ResolveStatus(ret, relevant, requiredConfirmations, nowis)
	ret.Confirmations = 0
	if len(relevant) > 0 {
		ret.Confirmations = relevant[0].Confirmations
	}
	return ret
}

// LinkKeysToLocks joins keys to locks by lock address and attaches the linked
// key to a copy of each lock, so consumers never perform their own join
func LinkKeysToLocks(locks map[string]*Lock, keys map[string]*Key, transactions map[string]*Transaction, requiredConfirmations int, nowis time.Time) map[string]*Lock {
	ret := make(map[string]*Lock, len(locks))
	for address, lock := range locks {
		full := lock.Clone()
		if key, ok := keys[address]; ok {
			full.Key = LinkTransactionsToKey(key, transactions, requiredConfirmations, nowis)
		}
		ret[address] = full
	}
	return ret
}
