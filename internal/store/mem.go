// ABOUTME: In-memory implementation of the Store interface
// ABOUTME: Used by tests and ephemeral trackers; supports error injection

package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store. It deep-copies snapshots on both Load and
// Save so callers cannot alias its internal state. LoadErr and SaveErr allow
// tests to simulate persistence failures.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*Record

	LoadErr error
	SaveErr error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: map[string]*Record{}}
}

// Load returns a deep copy of the current snapshot.
func (s *MemStore) Load(ctx context.Context) (map[string]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return CloneAll(s.records), nil
}

// Save replaces the snapshot with a deep copy of the given records.
func (s *MemStore) Save(ctx context.Context, records map[string]*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.records = CloneAll(records)
	return nil
}

// Close is a no-op.
func (s *MemStore) Close() error {
	return nil
}
