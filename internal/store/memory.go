package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the reference in process memory.
type MemoryStore struct {
	mu  sync.RWMutex
	ref *Reference
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the reference with a copy of ref.
func (s *MemoryStore) Save(_ context.Context, ref *Reference) error {
	if err := checkReference(ref); err != nil {
		return err
	}
	stored := &Reference{Descriptor: ref.Descriptor.Clone(), EnrolledAt: ref.EnrolledAt}

	s.mu.Lock()
	s.ref = stored
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the reference.
func (s *MemoryStore) Load(_ context.Context) (*Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ref == nil {
		return nil, ErrNotFound
	}
	return &Reference{Descriptor: s.ref.Descriptor.Clone(), EnrolledAt: s.ref.EnrolledAt}, nil
}
