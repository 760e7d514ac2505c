package credential

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials in a map for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	hashes map[string]string
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hashes: make(map[string]string)}
}

func (s *MemoryStore) Lookup(_ context.Context, identity string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.hashes[identity]
	if !ok {
		return "", ErrNotFound
	}
	return hash, nil
}

func (s *MemoryStore) Insert(_ context.Context, identity, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hashes[identity]; ok {
		return ErrIdentityExists
	}
	s.hashes[identity] = hash
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.hashes), nil
}
