// Package ristretto implements the progress tracker's breach-dedup cache on
// dgraph-io/ristretto. A breach key lives for one snapshot interval, so a
// persisting breach re-raises its alert on the next cycle.
package ristretto

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Dedup is a TTL set of recently alerted breach keys.
type Dedup struct {
	c *ristretto.Cache[string, struct{}]
}

// NewDedup creates a dedup cache. maxCostBytes bounds the total key space.
func NewDedup(maxCostBytes int64) (*Dedup, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Dedup{c: c}, nil
}

// FirstSeen marks key for ttl and reports whether this was its first
// appearance within the window. Ristretto admits writes asynchronously, so a
// racing duplicate within the same instant may slip through; the tracker
// tolerates that because snapshots for one entity never run concurrently.
func (d *Dedup) FirstSeen(key string, ttl time.Duration) bool {
	if _, found := d.c.Get(key); found {
		return false
	}
	d.c.SetWithTTL(key, struct{}{}, int64(len(key)), ttl)
	d.c.Wait()
	return true
}

// Forget drops a breach key so the next occurrence alerts immediately.
// Used when a tracked entity is resolved or untracked.
func (d *Dedup) Forget(key string) {
	d.c.Del(key)
}

// Close shuts down the cache and releases resources.
func (d *Dedup) Close() {
	d.c.Close()
}
