package paywall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const confirmationsRequired = 12

func TestResolveStatus(t *testing.T) {
	nowis := time.Now()
	valid := &Key{Lock: "0xlock", Owner: "0xme", Expiration: nowis.Add(time.Hour).Unix()}
	expired := &Key{Lock: "0xlock", Owner: "0xme", Expiration: nowis.Add(-time.Hour).Unix()}
	sentinel := DefaultKey("0xlock", "0xme")

	t.Run("no transactions", func(t *testing.T) {
		require.EqualValues(t, StatusValid, ResolveStatus(valid, nil, confirmationsRequired, nowis))
		require.EqualValues(t, StatusNone, ResolveStatus(expired, nil, confirmationsRequired, nowis))
		require.EqualValues(t, StatusNone, ResolveStatus(sentinel, nil, confirmationsRequired, nowis))
	})
	t.Run("mined under threshold", func(t *testing.T) {
		txs := []*Transaction{{Hash: "0x1", Status: TxStatusMined, Confirmations: confirmationsRequired - 1}}
		require.EqualValues(t, StatusConfirming, ResolveStatus(valid, txs, confirmationsRequired, nowis))
	})
	t.Run("mined at threshold", func(t *testing.T) {
		txs := []*Transaction{{Hash: "0x1", Status: TxStatusMined, Confirmations: confirmationsRequired}}
		require.EqualValues(t, StatusValid, ResolveStatus(valid, txs, confirmationsRequired, nowis))
		require.EqualValues(t, StatusExpired, ResolveStatus(expired, txs, confirmationsRequired, nowis))
	})
	t.Run("unmined statuses", func(t *testing.T) {
		for txStatus, expect := range map[TxStatus]Status{
			TxStatusSubmitted: StatusSubmitted,
			TxStatusPending:   StatusPending,
			TxStatusFailed:    StatusFailed,
		} {
			txs := []*Transaction{{Hash: "0x1", Status: txStatus, BlockNumber: MaxBlockNumber}}
			require.EqualValues(t, expect, ResolveStatus(valid, txs, confirmationsRequired, nowis))
		}
	})
	t.Run("deterministic", func(t *testing.T) {
		txs := []*Transaction{{Hash: "0x1", Status: TxStatusMined, Confirmations: 3}}
		first := ResolveStatus(valid, txs, confirmationsRequired, nowis)
		for i := 0; i < 10; i++ {
			require.EqualValues(t, first, ResolveStatus(valid, txs, confirmationsRequired, nowis))
		}
	})
}

func TestLinkTransactionsToKey(t *testing.T) {
	nowis := time.Now()
	key := &Key{Lock: "0xlock", Owner: "0xme", Expiration: nowis.Add(time.Hour).Unix()}
	txs := map[string]*Transaction{
		"0xold": {Hash: "0xold", Lock: "0xlock", For: "0xme", Status: TxStatusMined, BlockNumber: 100, Confirmations: 40},
		"0xnew": {Hash: "0xnew", Lock: "0xlock", For: "0xme", Status: TxStatusMined, BlockNumber: 200, Confirmations: 20},
		// unmined sorts as newest
		"0xsub": {Hash: "0xsub", To: "0xLOCK", From: "0xME", Status: TxStatusSubmitted, BlockNumber: MaxBlockNumber},
		// other lock, other beneficiary: filtered out
		"0xother": {Hash: "0xother", Lock: "0xelse", For: "0xme", Status: TxStatusMined, BlockNumber: 300},
		"0xalien": {Hash: "0xalien", Lock: "0xlock", For: "0xyou", Status: TxStatusMined, BlockNumber: 300},
	}

	linked := LinkTransactionsToKey(key, txs, confirmationsRequired, nowis)
	require.Equal(t, 3, len(linked.Transactions))
	require.EqualValues(t, "0xsub", linked.Transactions[0].Hash)
	require.EqualValues(t, "0xnew", linked.Transactions[1].Hash)
	require.EqualValues(t, "0xold", linked.Transactions[2].Hash)
	require.EqualValues(t, StatusSubmitted, linked.Status)
	require.EqualValues(t, 0, linked.Confirmations)

	// input key untouched
	require.Nil(t, key.Transactions)
	require.EqualValues(t, Status(""), key.Status)

	t.Run("confirmations come from the newest", func(t *testing.T) {
		delete(txs, "0xsub")
		linked = LinkTransactionsToKey(key, txs, confirmationsRequired, nowis)
		require.EqualValues(t, "0xnew", linked.Transactions[0].Hash)
		require.EqualValues(t, 20, linked.Confirmations)
		require.EqualValues(t, StatusValid, linked.Status)
	})
}

func TestLinkKeysToLocks(t *testing.T) {
	nowis := time.Now()
	locks := map[string]*Lock{
		"0xa": {Address: "0xa", Name: "a"},
		"0xb": {Address: "0xb", Name: "b"},
	}
	keys := map[string]*Key{
		"0xa": {Lock: "0xa", Owner: "0xme", Expiration: nowis.Add(time.Hour).Unix()},
	}
	full := LinkKeysToLocks(locks, keys, nil, confirmationsRequired, nowis)
	require.Equal(t, 2, len(full))
	require.NotNil(t, full["0xa"].Key)
	require.EqualValues(t, StatusValid, full["0xa"].Key.Status)
	require.Nil(t, full["0xb"].Key)
	// copies, not references
	require.NotSame(t, locks["0xa"], full["0xa"])
}

func TestResolvePageStatus(t *testing.T) {
	nowis := time.Now()
	lockAddresses := []string{"0xa", "0xb"}

	t.Run("no locks configured", func(t *testing.T) {
		require.EqualValues(t, PageNone, ResolvePageStatus(nil, nil, nowis))
	})
	t.Run("sentinels only", func(t *testing.T) {
		keys := DefaultKeys(lockAddresses, "")
		require.EqualValues(t, PageNone, ResolvePageStatus(keys, lockAddresses, nowis))
	})
	t.Run("one valid key unlocks before all answered", func(t *testing.T) {
		keys := DefaultKeys(lockAddresses, "")
		keys["0xa"] = &Key{Lock: "0xa", Expiration: nowis.Add(time.Hour).Unix()}
		require.EqualValues(t, PageUnlocked, ResolvePageStatus(keys, lockAddresses, nowis))
		require.EqualValues(t, []string{"0xa"}, UnlockedLocks(keys, nowis))
	})
	t.Run("all answered, none valid", func(t *testing.T) {
		keys := map[string]*Key{
			"0xa": {Lock: "0xa", Expiration: nowis.Add(-time.Hour).Unix()},
			"0xb": {Lock: "0xb", Expiration: nowis.Add(-time.Minute).Unix()},
		}
		require.True(t, GotAllKeysFromChain(keys, lockAddresses))
		require.EqualValues(t, PageLocked, ResolvePageStatus(keys, lockAddresses, nowis))
	})
	t.Run("partial answers stay none", func(t *testing.T) {
		keys := map[string]*Key{
			"0xa": {Lock: "0xa", Expiration: nowis.Add(-time.Hour).Unix()},
			"0xb": DefaultKey("0xb", ""),
		}
		require.False(t, GotAllKeysFromChain(keys, lockAddresses))
		require.EqualValues(t, PageNone, ResolvePageStatus(keys, lockAddresses, nowis))
	})
}

func TestNormalizeAddress(t *testing.T) {
	require.EqualValues(t, "0xabcdef", NormalizeAddress("0xAbCdEf"))
	m := NormalizeAddressKeys(map[string]int{"0xA": 1, "0xb": 2})
	require.Equal(t, map[string]int{"0xa": 1, "0xb": 2}, m)
}
