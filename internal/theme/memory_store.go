package theme

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore is a process-local Store. The first writer of a key wins.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, normalizedUTC string, targetYear int) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[memKey(normalizedUTC, targetYear)]
	return v, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, normalizedUTC string, targetYear int, theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(normalizedUTC, targetYear)
	if _, ok := s.m[k]; !ok {
		s.m[k] = theme
	}
	return nil
}

func memKey(norm string, year int) string { return norm + "|" + strconv.Itoa(year) }
