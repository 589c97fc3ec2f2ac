// Package tracker implements the state synchronizer: a single-consumer work
// process owning the authoritative snapshot of {account, network, balance,
// keys, locks, transactions} for a fixed set of configured locks. Events from
// the chain-write and chain-read services, history backfill results and
// internal commands all pass through one queue, so every merge runs to
// completion before the next event is looked at.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/lockhaven/paywalld/chain"
	"github.com/lockhaven/paywalld/core/keybatch"
	"github.com/lockhaven/paywalld/global"
	"github.com/lockhaven/paywalld/history"
	"github.com/lockhaven/paywalld/paywall"
	"github.com/lockhaven/paywalld/util/poll"
	"github.com/lockhaven/paywalld/util/queue"
)

type (
	Environment interface {
		global.PaywallGlobal
	}

	Command byte

	// Input is the tagged union consumed by the tracker. Exactly one of
	// Read/Write is set, or Cmd is not CommandNone.
	Input struct {
		Read  chain.ReadEvent
		Write chain.WriteEvent
		Cmd   Command

		// command arguments
		TokenContract string
		TokenBalance  string
		Purchase      chain.PurchaseParams
	}

	Tracker struct {
		*queue.Queue[Input]
		Environment

		cfg    *paywall.Config
		reader chain.Reader
		writer chain.Writer
		hist   *history.Client

		emitChanges func(*paywall.Snapshot)
		emitError   func(error)
		onAllKeys   func(batch map[string]*paywall.Key)

		lockAddresses []string

		// authoritative state, touched only inside Consume
		account       string
		network       int
		balance       string
		tokenBalances map[string]string
		keys          map[string]*paywall.Key
		locks         map[string]*paywall.Lock
		transactions  map[string]*paywall.Transaction
		expiryTimers  map[string]*time.Timer
		keyBatch      *keybatch.Accumulator

		// last emitted snapshot, readable from any goroutine
		lastSnapshotMutex sync.RWMutex
		lastSnapshot      *paywall.Snapshot

		metrics trackerMetrics
	}

	Params struct {
		Config      *paywall.Config
		Reader      chain.Reader
		Writer      chain.Writer
		History     *history.Client // nil disables backfill and the write-through cache
		EmitChanges func(*paywall.Snapshot)
		EmitError   func(error)
		OnAllKeys   func(batch map[string]*paywall.Key) // optional
	}
)

const (
	CommandNone = Command(iota)
	// CommandEmit re-emits the snapshot (expiry timer fired)
	CommandEmit
	// CommandAllKeys signals that every configured lock has answered
	CommandAllKeys
	// CommandTokenBalance merges a detached token balance fetch result
	CommandTokenBalance
	// CommandPurchase dispatches a key purchase through the wallet
	CommandPurchase
)

const (
	Name           = "tracker"
	TraceTag       = Name
	chanBufferSize = 10
)

func New(env Environment, par Params) *Tracker {
	ret := &Tracker{
		Queue:         queue.NewQueueWithBufferSize[Input](Name, chanBufferSize, env.Log()),
		Environment:   env,
		cfg:           par.Config,
		reader:        par.Reader,
		writer:        par.Writer,
		hist:          par.History,
		emitChanges:   par.EmitChanges,
		emitError:     par.EmitError,
		onAllKeys:     par.OnAllKeys,
		lockAddresses: par.Config.LockAddresses(),
		network:       par.Config.DefaultNetwork,
		balance:       "0",
		tokenBalances: make(map[string]string),
		locks:         make(map[string]*paywall.Lock),
		transactions:  make(map[string]*paywall.Transaction),
		expiryTimers:  make(map[string]*time.Timer),
	}
	// the sentinel-key invariant holds from time zero
	ret.keys = paywall.DefaultKeys(ret.lockAddresses, ret.account)
	ret.keyBatch = keybatch.New(ret.lockAddresses, func(batch map[string]*paywall.Key) {
		ret.Push(Input{Cmd: CommandAllKeys})
	})
	ret.registerMetrics()
	return ret
}

func (t *Tracker) Start() {
	t.MarkWorkProcessStarted(Name)
	t.AddOnClosed(func() {
		t.stopExpiryTimers()
		t.MarkWorkProcessStopped(Name)
	})
	t.Queue.Start(t, t.Ctx())

	t.pumpEvents()
	t.startAccountPolling()
	t.startBalancePolling()

	// retrieve the configured locks and emit the initial (sentinel) snapshot
	t.fetchData()
	t.emit()
}

// pumpEvents forwards both service event streams into the single queue
func (t *Tracker) pumpEvents() {
	go func() {
		for {
			select {
			case <-t.Ctx().Done():
				return
			case ev, ok := <-t.reader.Events():
				if !ok {
					return
				}
				t.Push(Input{Read: ev})
			}
		}
	}()
	go func() {
		for {
			select {
			case <-t.Ctx().Done():
				return
			case ev, ok := <-t.writer.Events():
				if !ok {
					return
				}
				t.Push(Input{Write: ev})
			}
		}
	}()
}

// startAccountPolling re-probes the wallet for the active account on a fixed
// interval, to catch silent wallet-side switches which fire no event
func (t *Tracker) startAccountPolling() {
	t.RepeatInBackground(Name+".accountPoll", t.cfg.PollInterval, func() bool {
		if !t.writer.Ready() {
			return true
		}
		if err := t.writer.GetAccount(t.Ctx()); err != nil {
			t.Tracef(TraceTag, "account poll: %v", err)
		}
		return true
	}, true)
}

type polledBalance struct {
	account string
	balance string
}

// startBalancePolling re-reads the active account balance on the poll
// interval and routes changes through the queue as ordinary read events.
// The stale-address guard in the handler absorbs account switches racing
// the probe.
func (t *Tracker) startBalancePolling() {
	go poll.Repeat(t.Ctx(),
		func(ctx context.Context) (polledBalance, error) {
			snap := t.Snapshot()
			if snap == nil || snap.Account == "" {
				return polledBalance{}, nil
			}
			balance, err := t.reader.GetAddressBalance(ctx, snap.Account)
			if err != nil {
				return polledBalance{}, err
			}
			return polledBalance{account: snap.Account, balance: balance}, nil
		},
		func(before, after polledBalance) bool { return before != after },
		func(after polledBalance) {
			if after.account == "" {
				return
			}
			t.Push(Input{Read: chain.AccountUpdated{Address: after.account, Balance: after.balance}})
		},
		t.cfg.PollInterval,
		func(err error) { t.Tracef(TraceTag, "balance poll: %v", err) },
	)
}

func (t *Tracker) Consume(inp Input) {
	switch {
	case inp.Read != nil:
		t.consumeReadEvent(inp.Read)
	case inp.Write != nil:
		t.consumeWriteEvent(inp.Write)
	default:
		t.consumeCommand(inp)
	}
}

func (t *Tracker) consumeReadEvent(ev chain.ReadEvent) {
	t.metrics.readEvents.Inc()
	switch e := ev.(type) {
	case chain.AccountUpdated:
		t.onAccountUpdated(e.Address, e.Balance)
	case chain.KeyUpdated:
		t.onKeyUpdated(e.Key)
	case chain.LockUpdated:
		t.onLockUpdated(e.Address, e.Update)
	case chain.TransactionUpdated:
		t.onTransactionUpdated(e.Hash, e.Update)
	case chain.ReadError:
		t.onReadError(e.Err)
	}
}

func (t *Tracker) consumeWriteEvent(ev chain.WriteEvent) {
	t.metrics.writeEvents.Inc()
	switch e := ev.(type) {
	case chain.AccountChanged:
		t.onAccountChanged(e.Address)
	case chain.NetworkChanged:
		t.onNetworkChanged(e.NetworkID)
	case chain.TransactionPending:
		t.Tracef(TraceTag, "wallet confirmation pending for %s", string(e.Type))
	case chain.TransactionNew:
		t.onTransactionNew(e)
	case chain.WalletError:
		t.onWalletError(e.Err)
	}
}

func (t *Tracker) consumeCommand(inp Input) {
	switch inp.Cmd {
	case CommandEmit:
		t.emit()
	case CommandAllKeys:
		if t.onAllKeys != nil {
			batch := make(map[string]*paywall.Key, len(t.keys))
			for addr, k := range t.keys {
				batch[addr] = k.Clone()
			}
			t.onAllKeys(batch)
		}
	case CommandTokenBalance:
		t.tokenBalances[inp.TokenContract] = inp.TokenBalance
		t.emit()
	case CommandPurchase:
		t.purchaseCmd(inp.Purchase)
	}
}

// PurchaseKey requests a key purchase through the wallet for the active
// account. Asynchronous: the outcome comes back as TransactionNew or
// WalletError events.
func (t *Tracker) PurchaseKey(lockAddress, amountToSend, erc20Address string) {
	t.Push(Input{
		Cmd: CommandPurchase,
		Purchase: chain.PurchaseParams{
			LockAddress:  paywall.NormalizeAddress(lockAddress),
			AmountToSend: amountToSend,
			ERC20Address: erc20Address,
		},
	})
}

func (t *Tracker) purchaseCmd(par chain.PurchaseParams) {
	if t.account == "" {
		// can't buy anything without a wallet account
		return
	}
	par.Owner = t.account
	go func() {
		if err := t.writer.PurchaseKey(t.Ctx(), par); err != nil {
			t.Push(Input{Write: chain.WalletError{Err: err}})
		}
	}()
}

// Snapshot returns the last emitted snapshot. Safe from any goroutine.
func (t *Tracker) Snapshot() *paywall.Snapshot {
	t.lastSnapshotMutex.RLock()
	defer t.lastSnapshotMutex.RUnlock()

	return t.lastSnapshot
}
