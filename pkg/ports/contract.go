package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/skein/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCacheContract runs a suite of tests verifying that a ResultCache
// implementation adheres to the interface contract.
func RunCacheContract(t *testing.T, cache ResultCache) {
	ctx := context.Background()
	fp := "contract-fp-" + time.Now().Format("20060102150405.000")

	result := &domain.Result{
		Payload: map[string]any{"summary": "hello"},
		Raw:     `{"summary": "hello"}`,
		Valid:   true,
	}

	t.Run("Miss", func(t *testing.T) {
		_, err := cache.Get(ctx, "absent-"+fp)
		assert.ErrorIs(t, err, domain.ErrCacheEntryNotFound)
	})

	t.Run("Put and Get", func(t *testing.T) {
		err := cache.Put(ctx, domain.NewCacheEntry(fp, result))
		require.NoError(t, err)

		entry, err := cache.Get(ctx, fp)
		require.NoError(t, err)
		assert.Equal(t, fp, entry.Fingerprint)
		assert.True(t, result.Equal(entry.Result))
	})

	t.Run("Idempotent Put", func(t *testing.T) {
		err := cache.Put(ctx, domain.NewCacheEntry(fp, result.Clone()))
		assert.NoError(t, err, "re-inserting an identical result must be a no-op")
	})

	t.Run("Drift", func(t *testing.T) {
		other := &domain.Result{
			Payload: map[string]any{"summary": "something else"},
			Raw:     `{"summary": "something else"}`,
			Valid:   true,
		}
		err := cache.Put(ctx, domain.NewCacheEntry(fp, other))
		assert.ErrorIs(t, err, domain.ErrCacheDrift)

		// The original entry wins.
		entry, err := cache.Get(ctx, fp)
		require.NoError(t, err)
		assert.True(t, result.Equal(entry.Result), "drift must not overwrite the original entry")
	})

	t.Run("Immutable Reads", func(t *testing.T) {
		entry, err := cache.Get(ctx, fp)
		require.NoError(t, err)
		entry.Result.Payload["summary"] = "mutated"

		again, err := cache.Get(ctx, fp)
		require.NoError(t, err)
		assert.Equal(t, "hello", again.Result.Payload["summary"], "mutating a read must not affect the stored entry")
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, cache.Clear(ctx))
		_, err := cache.Get(ctx, fp)
		assert.ErrorIs(t, err, domain.ErrCacheEntryNotFound)
	})
}

// RunStoreContract runs a suite of tests verifying that a RunStore
// implementation adheres to the interface contract.
func RunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405.000")
	doc := []byte(`{"format_version": 1, "run_id": "` + runID + `"}`)

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runID, doc))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, doc, loaded)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1, id2 := runID+"-1", runID+"-2"
		require.NoError(t, store.Save(ctx, id1, doc))
		require.NoError(t, store.Save(ctx, id2, doc))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runID, doc))
		require.NoError(t, store.Delete(ctx, runID))

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})
}
