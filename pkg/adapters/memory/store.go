package memory

import (
	"context"
	"sync"

	"github.com/aretw0/skein/pkg/domain"
)

// Store implements ports.RunStore in memory.
// Safe for concurrent use.
type Store struct {
	docs map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory run store.
func NewStore() *Store {
	return &Store{
		docs: make(map[string][]byte),
	}
}

// Save persists the document in memory.
func (s *Store) Save(ctx context.Context, runID string, doc []byte) error {
	cp := make([]byte, len(doc))
	copy(cp, doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[runID] = cp
	return nil
}

// Load retrieves the document from memory.
func (s *Store) Load(ctx context.Context, runID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}

	cp := make([]byte, len(doc))
	copy(cp, doc)
	return cp, nil
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, runID)
	return nil
}

// List returns the IDs of persisted runs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, 0, len(s.docs))
	for id := range s.docs {
		runs = append(runs, id)
	}
	return runs, nil
}
