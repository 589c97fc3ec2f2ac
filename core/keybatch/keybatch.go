// Package keybatch collects per-lock key lookup results until every
// configured lock has answered, then emits the whole batch once.
package keybatch

import (
	"sync"

	"github.com/lockhaven/paywalld/paywall"
)

type Accumulator struct {
	mutex sync.Mutex
	slots map[string]*paywall.Key // nil value = not answered yet
	armed bool
	onAll func(batch map[string]*paywall.Key)
}

// New creates an armed accumulator with one empty slot per lock address
func New(lockAddresses []string, onAll func(batch map[string]*paywall.Key)) *Accumulator {
	ret := &Accumulator{
		slots: make(map[string]*paywall.Key, len(lockAddresses)),
		armed: true,
		onAll: onAll,
	}
	for _, addr := range lockAddresses {
		ret.slots[paywall.NormalizeAddress(addr)] = nil
	}
	return ret
}

// AddKey fills the slot for the key's lock. The first time all slots are
// filled after arming, the callback fires with the batch, exactly once.
// Keys for unconfigured locks are ignored.
func (a *Accumulator) AddKey(key *paywall.Key) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	addr := paywall.NormalizeAddress(key.Lock)
	if _, configured := a.slots[addr]; !configured {
		return
	}
	a.slots[addr] = key

	if !a.armed {
		return
	}
	for _, k := range a.slots {
		if k == nil {
			return
		}
	}
	a.armed = false

	batch := make(map[string]*paywall.Key, len(a.slots))
	for lockAddr, k := range a.slots {
		batch[lockAddr] = k
	}
	a.onAll(batch)
}

// Reset clears all slots and re-arms the accumulator, e.g. on account change
func (a *Accumulator) Reset() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for addr := range a.slots {
		a.slots[addr] = nil
	}
	a.armed = true
}
