package domain

import "time"

// CacheEntryVersion tags entries written by this release of the engine.
// It is stored alongside the result, not mixed into the fingerprint.
const CacheEntryVersion = "1"

// CacheEntry maps a fingerprint to a previously computed Result.
// Entries are content-addressed and immutable after insertion: an
// overwrite attempt with a differing result is a flagged anomaly
// (ErrCacheDrift), not a normal path.
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Result      *Result   `json:"result"`
	CreatedAt   time.Time `json:"created_at"`
	Version     string    `json:"version"`
}

// NewCacheEntry creates an entry for a freshly computed result.
func NewCacheEntry(fingerprint string, result *Result) *CacheEntry {
	return &CacheEntry{
		Fingerprint: fingerprint,
		Result:      result,
		CreatedAt:   time.Now().UTC(),
		Version:     CacheEntryVersion,
	}
}

// Clone returns a deep copy so callers cannot mutate stored entries.
func (e *CacheEntry) Clone() *CacheEntry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Result = e.Result.Clone()
	return &cp
}
