package credstore

import (
	"sync"

	"github.com/benmeehan/meterctl/internal/models"
)

// MemoryStore keeps the credential pair in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	pair models.TokenPair
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored pair. Missing credentials are empty strings.
func (s *MemoryStore) Get() (models.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, nil
}

// Set replaces the stored pair.
func (s *MemoryStore) Set(pair models.TokenPair) error {
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()
	return nil
}

// Clear removes both credentials.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.pair = models.TokenPair{}
	s.mu.Unlock()
	return nil
}
