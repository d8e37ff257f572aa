package admission

import (
	"context"
	"sync"
	"time"
)

// Window is the state of one fixed-window counter.
type Window struct {
	Count   int
	ResetAt time.Time
}

// CounterStore charges fixed-window counters.
//
// Hit must behave atomically per key: when the key's window is active and
// already holds limit hits it returns allowed=false without incrementing;
// otherwise it starts a new window with a count of one (expired or absent
// key) or increments the active one, and returns allowed=true. The returned
// Window always reflects the stored state after the call.
type CounterStore interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, bool, error)
}

// MemoryStore is a process-local CounterStore. Expired keys are evicted
// once the map grows beyond MaxKeys.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*Window
	maxKeys int
}

// NewMemoryStore returns an empty store. maxKeys <= 0 defaults to 10000.
func NewMemoryStore(maxKeys int) *MemoryStore {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryStore{windows: make(map[string]*Window), maxKeys: maxKeys}
}

// Hit implements CounterStore.
func (s *MemoryStore) Hit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.windows) > s.maxKeys {
		for k, w := range s.windows {
			if now.After(w.ResetAt) {
				delete(s.windows, k)
			}
		}
	}

	w, ok := s.windows[key]
	if ok && !now.After(w.ResetAt) {
		if w.Count >= limit {
			return *w, false, nil
		}
		w.Count++
		return *w, true, nil
	}
	w = &Window{Count: 1, ResetAt: now.Add(window)}
	s.windows[key] = w
	return *w, true, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
