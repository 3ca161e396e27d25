// Package cache provides ledger.Cache implementations.
//
// LRU keeps entries in process memory; the redis subpackage shares them
// between processes.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/AshkanYarmoradi/go-ledger"
)

// DefaultSize is the number of aggregates an LRU holds by default.
const DefaultSize = 1024

// LRU is a bounded in-process aggregate cache with a TTL per entry.
type LRU struct {
	entries *expirable.LRU[string, ledger.CacheEntry]
}

var _ ledger.Cache = (*LRU)(nil)

// NewLRU creates a cache holding at most size entries for ttl each.
// Non-positive values select DefaultSize and ledger.DefaultCacheTTL.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = ledger.DefaultCacheTTL
	}
	return &LRU{entries: expirable.NewLRU[string, ledger.CacheEntry](size, nil, ttl)}
}

// Get returns a copy of the entry for key.
func (c *LRU) Get(_ context.Context, key string) (ledger.CacheEntry, bool, error) {
	e, ok := c.entries.Get(key)
	if !ok {
		return ledger.CacheEntry{}, false, nil
	}
	return clone(e), true, nil
}

// Set stores a copy of entry. An older version never replaces a newer one.
func (c *LRU) Set(_ context.Context, key string, entry ledger.CacheEntry) error {
	if cur, ok := c.entries.Peek(key); ok && cur.Version > entry.Version {
		return nil
	}
	c.entries.Add(key, clone(entry))
	return nil
}

func (c *LRU) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Len returns the number of live entries.
func (c *LRU) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *LRU) Purge() {
	c.entries.Purge()
}

func clone(e ledger.CacheEntry) ledger.CacheEntry {
	e.State = append([]byte(nil), e.State...)
	return e
}
