// Package redis provides Redis-backed adapters: a shared ResultCache, a
// RunStore, and a DistributedLocker for multi-replica deployments.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/skein/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Cache implements ports.ResultCache using Redis.
type Cache struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// CacheOption configures the Cache.
type CacheOption func(*Cache)

// WithCacheTTL sets an expiration for cache entries.
// Zero (the default) keeps entries until explicitly cleared.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithCachePrefix sets the key prefix for cache entries.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// NewCache creates a new Redis cache from an existing client.
func NewCache(client *backend.Client, opts ...CacheOption) *Cache {
	cache := &Cache{
		client: client,
		prefix: "skein:cache:",
		ttl:    0,
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

func (c *Cache) key(fingerprint string) string {
	return c.prefix + fingerprint
}

// Get retrieves the entry for a fingerprint.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*domain.CacheEntry, error) {
	val, err := c.client.Get(ctx, c.key(fingerprint)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrCacheEntryNotFound
		}
		return nil, fmt.Errorf("redis error reading cache entry: %w", err)
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	return &entry, nil
}

// Put inserts an entry using SET NX so concurrent writers cannot overwrite
// each other. When the key already exists, the stored result is compared:
// identical results are a no-op, differing ones report drift and keep the
// original.
func (c *Cache) Put(ctx context.Context, entry *domain.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	inserted, err := c.client.SetNX(ctx, c.key(entry.Fingerprint), data, c.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis error writing cache entry: %w", err)
	}
	if inserted {
		return nil
	}

	existing, err := c.Get(ctx, entry.Fingerprint)
	if err != nil {
		// Entry expired between SetNX and Get; retry the insert once.
		if err == domain.ErrCacheEntryNotFound {
			return c.Put(ctx, entry)
		}
		return err
	}

	if existing.Result.Equal(entry.Result) {
		return nil
	}
	return domain.ErrCacheDrift
}

// Clear removes every entry under the cache prefix.
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis error clearing cache: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis error scanning cache keys: %w", err)
	}
	return nil
}
