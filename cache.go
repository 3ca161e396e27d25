package ledger

import (
	"context"
	"time"
)

// CacheEntry is a serialized aggregate at a version. Entries are copies;
// hydrating from one always builds a fresh instance.
type CacheEntry struct {
	Version int64  `msgpack:"v"`
	State   []byte `msgpack:"s"`
}

// Cache is a bounded store of hydrated aggregates keyed by "<type>:<id>".
//
// A cache entry is a hydration checkpoint, not the truth: the repository
// still reads events after the cached version, so an entry that is behind
// storage costs a few extra reads and never yields stale state.
type Cache interface {
	Get(ctx context.Context, key string) (CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry CacheEntry) error
	Delete(ctx context.Context, key string) error
}

// CacheKey returns the cache key for one aggregate.
func CacheKey(aggregateType, aggregateID string) string {
	return aggregateType + ":" + aggregateID
}

// DefaultCacheTTL is how long cache implementations keep an entry by default.
const DefaultCacheTTL = 5 * time.Minute
