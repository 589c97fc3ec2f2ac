package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/lockhaven/paywalld/chain"
	"github.com/lockhaven/paywalld/global"
	"github.com/lockhaven/paywalld/paywall"
)

const (
	lock1 = "0xlock1"
	lock2 = "0xlock2"
	owner = "0xme"
)

type fakeReader struct {
	events chan chain.ReadEvent

	mutex    sync.Mutex
	locks    map[string]*paywall.Lock
	keys     map[string]*paywall.Key
	txs      map[string]*paywall.Transaction
	balance  string
	lockGets atomic.Int32
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		events:  make(chan chain.ReadEvent, 10),
		locks:   make(map[string]*paywall.Lock),
		keys:    make(map[string]*paywall.Key),
		txs:     make(map[string]*paywall.Transaction),
		balance: "1000",
	}
}

func (r *fakeReader) GetLock(_ context.Context, address string) (*paywall.Lock, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.lockGets.Inc()
	lock, ok := r.locks[address]
	if !ok {
		return nil, fmt.Errorf("no lock %s", address)
	}
	return lock.Clone(), nil
}

func (r *fakeReader) GetKeyByLockForOwner(_ context.Context, lock, owner string) (*paywall.Key, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if key, ok := r.keys[lock]; ok {
		return key.Clone(), nil
	}
	return paywall.DefaultKey(lock, owner), nil
}

func (r *fakeReader) GetTransaction(_ context.Context, hash string, defaults *paywall.Transaction) (*paywall.Transaction, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if tx, ok := r.txs[hash]; ok {
		return tx.Clone(), nil
	}
	if defaults != nil {
		ret := defaults.Clone()
		ret.Hash = hash
		return ret, nil
	}
	return &paywall.Transaction{Hash: hash, Status: paywall.TxStatusSubmitted}, nil
}

func (r *fakeReader) GetAddressBalance(_ context.Context, _ string) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.balance, nil
}

func (r *fakeReader) GetTokenBalance(_ context.Context, _, _ string) (string, error) {
	return "777", nil
}

func (r *fakeReader) Events() <-chan chain.ReadEvent {
	return r.events
}

func (r *fakeReader) setLock(lock *paywall.Lock) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.locks[lock.Address] = lock
}

func (r *fakeReader) setTx(tx *paywall.Transaction) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.txs[tx.Hash] = tx
}

func (r *fakeReader) setBalance(balance string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.balance = balance
}

type fakeWriter struct {
	events    chan chain.WriteEvent
	purchases chan chain.PurchaseParams
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		events:    make(chan chain.WriteEvent, 10),
		purchases: make(chan chain.PurchaseParams, 10),
	}
}

func (w *fakeWriter) GetAccount(_ context.Context) error { return nil }

func (w *fakeWriter) PurchaseKey(_ context.Context, par chain.PurchaseParams) error {
	w.purchases <- par
	return nil
}

func (w *fakeWriter) Ready() bool { return false }

func (w *fakeWriter) Events() <-chan chain.WriteEvent { return w.events }

type testBench struct {
	*Tracker
	env       *global.Global
	reader    *fakeReader
	writer    *fakeWriter
	snapshots chan *paywall.Snapshot
	errors    chan error
	allKeys   chan map[string]*paywall.Key
	lockAddrs []string
}

func startBench(t *testing.T, lockAddrs ...string) *testBench {
	return startBenchWithInterval(t, time.Minute, lockAddrs...)
}

func startBenchWithInterval(t *testing.T, pollInterval time.Duration, lockAddrs ...string) *testBench {
	if len(lockAddrs) == 0 {
		lockAddrs = []string{lock1}
	}
	cfg := &paywall.Config{
		Locks:          make(map[string]paywall.LockConfig),
		DefaultNetwork: 1,
		PollInterval:   pollInterval,
	}
	for _, addr := range lockAddrs {
		cfg.Locks[addr] = paywall.LockConfig{}
	}
	cfg.Normalize()

	ret := &testBench{
		env:       global.NewDefault(),
		reader:    newFakeReader(),
		writer:    newFakeWriter(),
		snapshots: make(chan *paywall.Snapshot, 100),
		errors:    make(chan error, 100),
		allKeys:   make(chan map[string]*paywall.Key, 10),
		lockAddrs: lockAddrs,
	}
	ret.Tracker = New(ret.env, Params{
		Config:      cfg,
		Reader:      ret.reader,
		Writer:      ret.writer,
		EmitChanges: func(snap *paywall.Snapshot) { ret.snapshots <- snap },
		EmitError:   func(err error) { ret.errors <- err },
		OnAllKeys:   func(batch map[string]*paywall.Key) { ret.allKeys <- batch },
	})
	ret.Tracker.Start()

	t.Cleanup(func() {
		ret.env.Stop()
		ret.env.MustWaitAllWorkProcessesStop(5 * time.Second)
	})
	return ret
}

func (b *testBench) drain() {
	for {
		select {
		case <-b.snapshots:
		default:
			return
		}
	}
}

// waitFor consumes snapshots until cond holds, asserting on every snapshot
// that each configured lock has a key
func (b *testBench) waitFor(t *testing.T, cond func(snap *paywall.Snapshot) bool) *paywall.Snapshot {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-b.snapshots:
			for _, addr := range b.lockAddrs {
				require.NotNil(t, snap.Keys[addr], "no key for configured lock %s", addr)
			}
			if cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timeout waiting for snapshot")
			return nil
		}
	}
}

func TestInitialSnapshotIsSentinel(t *testing.T) {
	b := startBench(t, lock1, lock2)
	snap := b.waitFor(t, func(*paywall.Snapshot) bool { return true })
	require.EqualValues(t, "", snap.Account)
	require.EqualValues(t, 1, snap.Network)
	require.EqualValues(t, "0", snap.Balance)
	require.True(t, snap.Keys[lock1].IsDefault())
	require.True(t, snap.Keys[lock2].IsDefault())
	require.EqualValues(t, paywall.PageNone,
		paywall.ResolvePageStatus(snap.Keys, b.lockAddrs, time.Now()))
}

func TestAccountChange(t *testing.T) {
	b := startBench(t)
	b.reader.setLock(&paywall.Lock{Address: lock1, Name: "the lock", KeyPrice: "0.01"})

	b.writer.events <- chain.AccountChanged{Address: "0xME"}
	snap := b.waitFor(t, func(snap *paywall.Snapshot) bool {
		return snap.Account == owner && snap.Locks[lock1].Name == "the lock" && snap.Balance == "1000"
	})
	require.EqualValues(t, owner, snap.Keys[lock1].Owner)

	t.Run("same account is a no-op", func(t *testing.T) {
		fetches := b.reader.lockGets.Load()
		b.writer.events <- chain.AccountChanged{Address: "0xMe"}
		b.Push(Input{Cmd: CommandEmit})
		snap = b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Account == owner })
		time.Sleep(100 * time.Millisecond)
		require.EqualValues(t, fetches, b.reader.lockGets.Load())
	})

	t.Run("clearing the account collapses to sentinels", func(t *testing.T) {
		b.writer.events <- chain.AccountChanged{Address: ""}
		snap = b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Account == "" })
		require.True(t, snap.Keys[lock1].IsDefault())
		require.EqualValues(t, "0", snap.Balance)
		require.Equal(t, 0, len(snap.Transactions))
	})
}

func TestNetworkChangeResets(t *testing.T) {
	b := startBench(t)
	b.writer.events <- chain.AccountChanged{Address: owner}
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Account == owner })

	b.reader.events <- chain.TransactionUpdated{Hash: "0xaaa", Update: &paywall.Transaction{
		Lock: lock1, For: owner, Status: paywall.TxStatusMined,
	}}
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Transactions["0xaaa"] != nil })

	b.writer.events <- chain.NetworkChanged{NetworkID: 100}
	snap := b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Network == 100 })
	require.Nil(t, snap.Transactions["0xaaa"])
	require.EqualValues(t, owner, snap.Account)
}

func TestLastWriteWins(t *testing.T) {
	b := startBench(t)

	// the later-applied update wins, block heights notwithstanding
	b.reader.events <- chain.LockUpdated{Address: lock1, Update: &paywall.Lock{KeyPrice: "1.0", AsOf: 100}}
	b.reader.events <- chain.LockUpdated{Address: lock1, Update: &paywall.Lock{KeyPrice: "2.0", AsOf: 50}}
	snap := b.waitFor(t, func(snap *paywall.Snapshot) bool {
		lock := snap.Locks[lock1]
		return lock != nil && lock.KeyPrice == "2.0"
	})
	require.EqualValues(t, 50, snap.Locks[lock1].AsOf)
}

func TestTemporaryKeyWhilePurchaseInFlight(t *testing.T) {
	b := startBench(t)
	b.writer.events <- chain.AccountChanged{Address: owner}
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Account == owner })

	b.writer.events <- chain.TransactionNew{
		Hash:   "0xbuy",
		From:   owner,
		To:     lock1,
		Type:   paywall.TxTypeKeyPurchase,
		Status: paywall.TxStatusSubmitted,
	}
	snap := b.waitFor(t, func(snap *paywall.Snapshot) bool {
		key := snap.Locks[lock1].Key
		return key != nil && key.Status == paywall.StatusSubmitted
	})
	require.False(t, snap.Keys[lock1].IsDefault())
	require.EqualValues(t, "0xbuy", snap.Keys[lock1].Transactions[0].Hash)
}

func TestPurchaseFailureRollback(t *testing.T) {
	b := startBench(t)
	b.writer.events <- chain.AccountChanged{Address: owner}
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Account == owner })

	// the confirmation poll will report this one as mined
	b.reader.setTx(&paywall.Transaction{
		Hash: "0xmined", Lock: lock1, For: owner,
		Type: paywall.TxTypeKeyPurchase, Status: paywall.TxStatusMined, BlockNumber: 500, Confirmations: 20,
	})

	for _, hash := range []string{"0xsub1", "0xsub2", "0xmined"} {
		b.writer.events <- chain.TransactionNew{
			Hash: hash, From: owner, To: lock1,
			Type: paywall.TxTypeKeyPurchase, Status: paywall.TxStatusSubmitted,
		}
	}
	b.waitFor(t, func(snap *paywall.Snapshot) bool {
		mined := snap.Transactions["0xmined"]
		return len(snap.Transactions) == 3 && mined != nil && mined.IsMined()
	})
	// let the detached confirmation fetches of the submitted ones drain
	time.Sleep(200 * time.Millisecond)

	b.writer.events <- chain.WalletError{Err: chain.ErrFailedToPurchaseKey}
	snap := b.waitFor(t, func(snap *paywall.Snapshot) bool {
		return snap.Transactions["0xsub1"] == nil && snap.Transactions["0xsub2"] == nil
	})
	require.NotNil(t, snap.Transactions["0xmined"])

	select {
	case err := <-b.errors:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("no error surfaced on purchase failure")
	}
}

func TestNonPurchaseWalletErrorKeepsState(t *testing.T) {
	b := startBench(t)
	b.writer.events <- chain.AccountChanged{Address: owner}
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Account == owner })

	b.writer.events <- chain.TransactionNew{
		Hash: "0xaaa", From: owner, To: lock1,
		Type: paywall.TxTypeKeyPurchase, Status: paywall.TxStatusSubmitted,
	}
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Transactions["0xaaa"] != nil })

	b.writer.events <- chain.WalletError{Err: fmt.Errorf("user rejected signature")}
	select {
	case err := <-b.errors:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("no error surfaced")
	}
	b.Push(Input{Cmd: CommandEmit})
	snap := b.waitFor(t, func(snap *paywall.Snapshot) bool { return true })
	require.NotNil(t, snap.Transactions["0xaaa"])
}

func TestExpiryReEmission(t *testing.T) {
	b := startBench(t)
	b.writer.events <- chain.AccountChanged{Address: owner}
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Account == owner })

	b.reader.events <- chain.KeyUpdated{Key: &paywall.Key{
		Lock:       lock1,
		Owner:      owner,
		Expiration: time.Now().Add(1 * time.Second).Unix(),
	}}
	b.waitFor(t, func(snap *paywall.Snapshot) bool {
		return snap.Keys[lock1].Status == paywall.StatusValid
	})

	// no further events: the timer alone must flip the derived status
	b.waitFor(t, func(snap *paywall.Snapshot) bool {
		return snap.Keys[lock1].Status != paywall.StatusValid
	})
}

func TestNoReEmissionForExpiredKey(t *testing.T) {
	b := startBench(t)
	b.writer.events <- chain.AccountChanged{Address: owner}
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Account == owner })
	// let the reset-triggered fetches settle before injecting the key
	time.Sleep(200 * time.Millisecond)
	b.drain()

	b.reader.events <- chain.KeyUpdated{Key: &paywall.Key{
		Lock:       lock1,
		Owner:      owner,
		Expiration: time.Now().Add(-time.Hour).Unix(),
	}}
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return !snap.Keys[lock1].IsDefault() })
	b.drain()

	// an already expired key arms no timer: silence from here on
	time.Sleep(expiryReEmitDelay + 500*time.Millisecond)
	select {
	case <-b.snapshots:
		t.Fatal("spurious re-emission for an already expired key")
	default:
	}
}

func TestAllKeysSignal(t *testing.T) {
	b := startBench(t, lock1, lock2)
	b.writer.events <- chain.AccountChanged{Address: owner}

	select {
	case batch := <-b.allKeys:
		require.Equal(t, 2, len(batch))
		require.NotNil(t, batch[lock1])
		require.NotNil(t, batch[lock2])
	case <-time.After(5 * time.Second):
		t.Fatal("all-keys signal never fired")
	}

	// disarmed until the next reset
	b.reader.events <- chain.KeyUpdated{Key: &paywall.Key{
		Lock:       lock1,
		Owner:      owner,
		Expiration: time.Now().Add(time.Hour).Unix(),
	}}
	b.waitFor(t, func(snap *paywall.Snapshot) bool {
		return snap.Keys[lock1].Status == paywall.StatusValid
	})
	select {
	case <-b.allKeys:
		t.Fatal("all-keys signal fired twice without a reset")
	default:
	}
}

func TestBalancePolling(t *testing.T) {
	b := startBenchWithInterval(t, 20*time.Millisecond)
	b.writer.events <- chain.AccountChanged{Address: owner}
	b.waitFor(t, func(snap *paywall.Snapshot) bool {
		return snap.Account == owner && snap.Balance == "1000"
	})

	// no chain event: only the poller can pick this up
	b.reader.setBalance("2000")
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Balance == "2000" })
}

func TestTokenBalance(t *testing.T) {
	b := startBench(t)
	b.writer.events <- chain.AccountChanged{Address: owner}
	b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Account == owner })

	b.reader.events <- chain.LockUpdated{Address: lock1, Update: &paywall.Lock{
		KeyPrice:                "5",
		CurrencyContractAddress: "0xtoken",
	}}
	snap := b.waitFor(t, func(snap *paywall.Snapshot) bool {
		return snap.TokenBalances["0xtoken"] != ""
	})
	require.EqualValues(t, "777", snap.TokenBalances["0xtoken"])
}

func TestPurchaseKeyRouting(t *testing.T) {
	b := startBench(t)

	t.Run("without an account the purchase is dropped", func(t *testing.T) {
		b.PurchaseKey(lock1, "0.01", "")
		select {
		case <-b.writer.purchases:
			t.Fatal("purchase dispatched without an account")
		case <-time.After(200 * time.Millisecond):
		}
	})

	t.Run("owner is the active account", func(t *testing.T) {
		b.writer.events <- chain.AccountChanged{Address: owner}
		b.waitFor(t, func(snap *paywall.Snapshot) bool { return snap.Account == owner })

		b.PurchaseKey("0xLOCK1", "0.01", "0xtoken")
		select {
		case par := <-b.writer.purchases:
			require.EqualValues(t, lock1, par.LockAddress)
			require.EqualValues(t, owner, par.Owner)
			require.EqualValues(t, "0.01", par.AmountToSend)
			require.EqualValues(t, "0xtoken", par.ERC20Address)
		case <-time.After(3 * time.Second):
			t.Fatal("purchase not dispatched")
		}
	})
}
