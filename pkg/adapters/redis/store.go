package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/skein/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.RunStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// StoreOption configures the Store.
type StoreOption func(*Store)

// WithStoreTTL sets the expiration for persisted runs.
func WithStoreTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithStorePrefix sets the key prefix for persisted runs.
func WithStorePrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// NewStore creates a new Redis run store from an existing client.
func NewStore(client *backend.Client, opts ...StoreOption) *Store {
	store := &Store{
		client: client,
		prefix: "skein:run:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the run document.
// The document and a ZSET index entry are written in one pipeline.
func (s *Store) Save(ctx context.Context, runID string, doc []byte) error {
	pipe := s.client.Pipeline()

	pipe.Set(ctx, s.key(runID), doc, s.ttl)

	// Index score = expiry time, so List can lazily drop expired members.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01, effectively never
	}

	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: runID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run to redis: %w", err)
	}

	return nil
}

// Load retrieves the run document.
func (s *Store) Load(ctx context.Context, runID string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("redis error loading run: %w", err)
	}
	return val, nil
}

// Delete removes the run document and its index entry.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis error deleting run: %w", err)
	}
	return nil
}

// List returns all persisted run IDs, lazily pruning expired index entries.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	// Prune members whose TTL has passed.
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "0", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("redis error pruning run index: %w", err)
	}

	runs, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error listing runs: %w", err)
	}
	return runs, nil
}
