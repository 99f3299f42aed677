// Package checkpoint persists completed run state keyed by an opaque run
// identifier. It is an optional durability add-on: the pipeline is correct
// without any store attached.
package checkpoint

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no checkpoint exists for a run ID
var ErrNotFound = errors.New("checkpoint: run not found")

// Store saves and retrieves serialized run state
type Store interface {
	Save(ctx context.Context, runID string, state []byte) error
	Load(ctx context.Context, runID string) ([]byte, error)
	Delete(ctx context.Context, runID string) error
}

// MemoryStore is an in-process Store. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]byte)}
}

// Save stores a copy of the state under the run ID
func (s *MemoryStore) Save(ctx context.Context, runID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(state))
	copy(stored, state)
	s.runs[runID] = stored
	return nil
}

// Load returns the stored state or ErrNotFound
func (s *MemoryStore) Load(ctx context.Context, runID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	result := make([]byte, len(state))
	copy(result, state)
	return result, nil
}

// Delete removes the checkpoint for a run ID, if present
func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}
