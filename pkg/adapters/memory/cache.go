// Package memory provides in-memory adapters: the default ResultCache and
// a RunStore for tests and single-process pipelines.
package memory

import (
	"context"
	"sync"

	"github.com/aretw0/skein/pkg/domain"
)

// Cache implements ports.ResultCache in memory.
// Entries are retained for the process lifetime until explicitly cleared.
// Safe for concurrent use.
type Cache struct {
	entries map[string]*domain.CacheEntry
	mu      sync.RWMutex
}

// NewCache creates a new in-memory cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*domain.CacheEntry),
	}
}

// Get retrieves the entry for a fingerprint.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*domain.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, domain.ErrCacheEntryNotFound
	}

	// Copy on read so callers can't mutate the stored entry by pointer.
	return entry.Clone(), nil
}

// Put inserts an entry. Existing entries are never overwritten: an
// identical re-insert is a no-op, a differing one reports drift.
func (c *Cache) Put(ctx context.Context, entry *domain.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[entry.Fingerprint]
	if ok {
		if existing.Result.Equal(entry.Result) {
			return nil
		}
		return domain.ErrCacheDrift
	}

	c.entries[entry.Fingerprint] = entry.Clone()
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*domain.CacheEntry)
	return nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
