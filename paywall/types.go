package paywall

import (
	"math"
	"time"
)

// Status is the membership status of a key, in increasing order of
// confidence. 'expired' and 'failed' are absorbing.
type Status string

const (
	StatusNone       = Status("none")
	StatusSubmitted  = Status("submitted")
	StatusPending    = Status("pending")
	StatusConfirming = Status("confirming")
	StatusValid      = Status("valid")
	StatusExpired    = Status("expired")
	StatusFailed     = Status("failed")
)

type TxStatus string

const (
	TxStatusSubmitted = TxStatus("submitted")
	TxStatusPending   = TxStatus("pending")
	TxStatusMined     = TxStatus("mined")
	TxStatusFailed    = TxStatus("failed")
)

type TxType string

const (
	TxTypeLockCreation   = TxType("LOCK_CREATION")
	TxTypeKeyPurchase    = TxType("KEY_PURCHASE")
	TxTypeWithdrawal     = TxType("WITHDRAWAL")
	TxTypeUpdateKeyPrice = TxType("UPDATE_KEY_PRICE")
)

// MaxBlockNumber is the block number assigned to transactions not yet mined,
// so that "most recent first" ordering treats them as the newest
const MaxBlockNumber = uint64(math.MaxUint64)

// UnlimitedKeys marks a lock without a capacity limit
const UnlimitedKeys = int64(-1)

type (
	Transaction struct {
		Hash          string   `json:"hash"`
		From          string   `json:"from,omitempty"`
		For           string   `json:"for,omitempty"`
		To            string   `json:"to,omitempty"`
		Lock          string   `json:"lock,omitempty"`
		Input         string   `json:"input,omitempty"`
		Type          TxType   `json:"type,omitempty"`
		Status        TxStatus `json:"status"`
		Confirmations int      `json:"confirmations"`
		BlockNumber   uint64   `json:"blockNumber"`
		Network       int      `json:"network,omitempty"`
	}

	// Key is one membership instance of one owner against one lock.
	// Status, Confirmations and Transactions are derived on linking, never
	// stored by the synchronizer.
	Key struct {
		Lock          string         `json:"lock"`
		Owner         string         `json:"owner,omitempty"`
		Expiration    int64          `json:"expiration"`
		Status        Status         `json:"status,omitempty"`
		Confirmations int            `json:"confirmations,omitempty"`
		Transactions  []*Transaction `json:"transactions,omitempty"`
	}

	Lock struct {
		Address                 string `json:"address"`
		Name                    string `json:"name,omitempty"`
		KeyPrice                string `json:"keyPrice,omitempty"`
		ExpirationDuration      int64  `json:"expirationDuration,omitempty"`
		CurrencyContractAddress string `json:"currencyContractAddress,omitempty"`
		MaxNumberOfKeys         int64  `json:"maxNumberOfKeys,omitempty"`
		OutstandingKeys         int64  `json:"outstandingKeys,omitempty"`
		AsOf                    uint64 `json:"asOf,omitempty"`
		Network                 int    `json:"network,omitempty"`
		Key                     *Key   `json:"key,omitempty"`
	}

	// Snapshot is the merged consistent view emitted to consumers. It is a
	// deep copy, consumers never receive references into live state.
	Snapshot struct {
		Account       string                  `json:"account,omitempty"`
		Network       int                     `json:"network"`
		Balance       string                  `json:"balance"`
		TokenBalances map[string]string       `json:"tokenBalances,omitempty"`
		Locks         map[string]*Lock        `json:"locks"`
		Keys          map[string]*Key         `json:"keys"`
		Transactions  map[string]*Transaction `json:"transactions"`
	}
)

// RecipientLock is the lock a transaction grants a key on, preferring the
// explicit lock reference over the 'to' address
func (t *Transaction) RecipientLock() string {
	if t.Lock != "" {
		return t.Lock
	}
	return t.To
}

func (t *Transaction) IsMined() bool {
	return t.Status == TxStatusMined
}

func (t *Transaction) Clone() *Transaction {
	ret := *t
	return &ret
}

// IsDefault reports whether the key is a sentinel placeholder: a
// non-positive expiration means no real key has been observed yet
func (k *Key) IsDefault() bool {
	return k.Expiration <= 0
}

func (k *Key) IsValid(nowis time.Time) bool {
	return k.Expiration > nowis.Unix()
}

func (k *Key) Clone() *Key {
	ret := *k
	if k.Transactions != nil {
		ret.Transactions = make([]*Transaction, len(k.Transactions))
		for i, tx := range k.Transactions {
			ret.Transactions[i] = tx.Clone()
		}
	}
	return &ret
}

func (l *Lock) Clone() *Lock {
	ret := *l
	if l.Key != nil {
		ret.Key = l.Key.Clone()
	}
	return &ret
}

// IsSoldOut reports whether the lock cannot accommodate count more keys
func (l *Lock) IsSoldOut(count int64) bool {
	if l.MaxNumberOfKeys == UnlimitedKeys {
		return false
	}
	return l.OutstandingKeys+count > l.MaxNumberOfKeys
}

// DefaultKey makes the sentinel key standing in for lockAddress before real
// data arrives or after the account is cleared
func DefaultKey(lockAddress, account string) *Key {
	return &Key{
		Lock:       lockAddress,
		Owner:      account,
		Expiration: -1,
	}
}

// DefaultKeys makes sentinel keys for every configured lock. The invariant
// "a key exists for every configured lock at all times" starts here.
func DefaultKeys(lockAddresses []string, account string) map[string]*Key {
	ret := make(map[string]*Key, len(lockAddresses))
	for _, addr := range lockAddresses {
		ret[addr] = DefaultKey(addr, account)
	}
	return ret
}

func (s *Snapshot) Clone() *Snapshot {
	ret := &Snapshot{
		Account:       s.Account,
		Network:       s.Network,
		Balance:       s.Balance,
		TokenBalances: make(map[string]string, len(s.TokenBalances)),
		Locks:         make(map[string]*Lock, len(s.Locks)),
		Keys:          make(map[string]*Key, len(s.Keys)),
		Transactions:  make(map[string]*Transaction, len(s.Transactions)),
	}
	for k, v := range s.TokenBalances {
		ret.TokenBalances[k] = v
	}
	for k, v := range s.Locks {
		ret.Locks[k] = v.Clone()
	}
	for k, v := range s.Keys {
		ret.Keys[k] = v.Clone()
	}
	for k, v := range s.Transactions {
		ret.Transactions[k] = v.Clone()
	}
	return ret
}
