// Package cache keeps the last emitted snapshot on disk, keyed by network
// and account. New bridge subscribers get the cached snapshot immediately,
// before live chain data arrives. Strictly best-effort: every failure is
// logged and swallowed, a cold cache only means a slower first paint.
package cache

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/lockhaven/paywalld/paywall"
)

type SnapshotCache struct {
	db  *badger.DB
	log *zap.SugaredLogger
}

func MustOpen(dir string, log *zap.SugaredLogger) *SnapshotCache {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("can't open snapshot cache at '%s': %v", dir, err)
	}
	return &SnapshotCache{db: db, log: log.Named("[cache]")}
}

func snapshotKey(network int, account string) []byte {
	return []byte(fmt.Sprintf("snapshot.%d.%s", network, account))
}

// Store persists the snapshot under its (network, account) key
func (c *SnapshotCache) Store(snap *paywall.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		c.log.Warnf("marshal snapshot: %v", err)
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.Network, snap.Account), data)
	})
	if err != nil {
		c.log.Warnf("store snapshot: %v", err)
	}
}

// Load returns the cached snapshot for (network, account), or nil when the
// cache has nothing usable
func (c *SnapshotCache) Load(network int, account string) *paywall.Snapshot {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(network, account))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		c.log.Warnf("load snapshot: %v", err)
		return nil
	}
	var snap paywall.Snapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		c.log.Warnf("unmarshal snapshot: %v", err)
		return nil
	}
	return &snap
}

func (c *SnapshotCache) Close() {
	if err := c.db.Close(); err != nil {
		c.log.Warnf("close: %v", err)
	}
}
