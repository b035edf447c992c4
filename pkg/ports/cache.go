package ports

import (
	"context"

	"github.com/aretw0/skein/pkg/domain"
)

// ResultCache is the content-addressable store mapping a deterministic
// fingerprint to a previously computed Result.
type ResultCache interface {
	// Get retrieves the entry for a fingerprint.
	// Returns domain.ErrCacheEntryNotFound on a miss.
	Get(ctx context.Context, fingerprint string) (*domain.CacheEntry, error)

	// Put inserts an entry. Entries are immutable after insertion: a Put
	// for an existing fingerprint with an identical result is a no-op, a
	// Put with a differing result keeps the original and returns
	// domain.ErrCacheDrift for the caller to log.
	Put(ctx context.Context, entry *domain.CacheEntry) error

	// Clear removes every entry. Eviction is always an explicit external
	// action; the engine never clears the cache on its own.
	Clear(ctx context.Context) error
}
