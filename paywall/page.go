package paywall

import "time"

// PageStatus is what the host page derives from the key set. A boolean won't
// do: until every configured lock has answered with a real key, the page is
// neither locked nor unlocked.
type PageStatus string

const (
	PageLocked   = PageStatus("locked")
	PageUnlocked = PageStatus("unlocked")
	PageNone     = PageStatus("none")
)

// GotAllKeysFromChain reports whether every configured lock has a real
// (non-sentinel) key answer
func GotAllKeysFromChain(keys map[string]*Key, lockAddresses []string) bool {
	if len(lockAddresses) == 0 {
		return false
	}
	for _, addr := range lockAddresses {
		key, ok := keys[addr]
		if !ok || key.IsDefault() {
			return false
		}
	}
	return true
}

// ResolvePageStatus derives the page lock state. A single unexpired key
// unlocks immediately, even before all locks have answered.
func ResolvePageStatus(keys map[string]*Key, lockAddresses []string, nowis time.Time) PageStatus {
	if len(lockAddresses) == 0 {
		return PageNone
	}
	for _, key := range keys {
		if key.IsValid(nowis) {
			return PageUnlocked
		}
	}
	if !GotAllKeysFromChain(keys, lockAddresses) {
		return PageNone
	}
	return PageLocked
}

// UnlockedLocks lists the lock addresses with an unexpired key
func UnlockedLocks(keys map[string]*Key, nowis time.Time) []string {
	ret := make([]string, 0)
	for _, key := range keys {
		if key.IsValid(nowis) {
			ret = append(ret, key.Lock)
		}
	}
	return ret
}
