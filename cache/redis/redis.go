// Package redis implements ledger.Cache on Redis so that several processes
// share hydrated aggregates. Entries are msgpack encoded and expire after a TTL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/AshkanYarmoradi/go-ledger"
)

const defaultKeyPrefix = "ledger:aggregate:"

// Cache is a Redis backed ledger.Cache.
type Cache struct {
	client    goredis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ ledger.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithKeyPrefix sets the prefix prepended to every key.
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) {
		c.keyPrefix = prefix
	}
}

// WithTTL sets how long entries live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New creates a cache on client.
func New(client goredis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       ledger.DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, opts ...Option) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ledger/cache/redis: failed to connect to %s: %w", addr, err)
	}
	return New(client, opts...), nil
}

func (c *Cache) key(k string) string {
	return c.keyPrefix + k
}

// Get returns the entry for key. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, key string) (ledger.CacheEntry, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return ledger.CacheEntry{}, false, nil
	}
	if err != nil {
		return ledger.CacheEntry{}, false, fmt.Errorf("ledger/cache/redis: failed to get %q: %w", key, err)
	}

	var entry ledger.CacheEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return ledger.CacheEntry{}, false, fmt.Errorf("ledger/cache/redis: failed to decode %q: %w", key, err)
	}
	return entry, true, nil
}

// Set stores entry with the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, entry ledger.CacheEntry) error {
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger/cache/redis: failed to encode %q: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("ledger/cache/redis: failed to set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("ledger/cache/redis: failed to delete %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
