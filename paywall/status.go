package paywall

import "time"

// ResolveStatus derives the membership status of a key from its associated
// transactions (most recent first) and the confirmation threshold. Pure and
// deterministic: identical inputs always yield the identical status, which is
// what lets the rest of the system avoid storing derived state.
func ResolveStatus(key *Key, transactions []*Transaction, requiredConfirmations int, nowis time.Time) Status {
	if len(transactions) == 0 {
		if key.IsValid(nowis) {
			return StatusValid
		}
		return StatusNone
	}

	newest := transactions[0]
	if newest.IsMined() {
		switch {
		case newest.Confirmations < requiredConfirmations:
			return StatusConfirming
		case !key.IsValid(nowis):
			return StatusExpired
		default:
			return StatusValid
		}
	}

	switch newest.Status {
	case TxStatusSubmitted:
		return StatusSubmitted
	case TxStatusPending:
		return StatusPending
	case TxStatusFailed:
		return StatusFailed
	}
	return StatusNone
}
