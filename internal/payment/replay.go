package payment

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// MemoryReplayStore keeps consumed ids in process memory. Once it holds
// more than max ids the oldest evict ids are dropped.
type MemoryReplayStore struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	max   int
	evict int
}

// NewMemoryReplayStore returns a store with the 1000/500 limits.
func NewMemoryReplayStore() *MemoryReplayStore {
	return &MemoryReplayStore{seen: make(map[string]struct{}), max: 1000, evict: 500}
}

func (s *MemoryReplayStore) Seen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok, nil
}

func (s *MemoryReplayStore) MarkConsumed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return ErrAlreadyConsumed
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.max {
		for _, old := range s.order[:s.evict] {
			delete(s.seen, old)
		}
		s.order = append([]string(nil), s.order[s.evict:]...)
	}
	return nil
}

// Len returns the number of remembered ids.
func (s *MemoryReplayStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// RedisReplayStore shares consumed ids across instances. Keys expire after
// the retention period.
type RedisReplayStore struct {
	rdb       goredis.Cmdable
	prefix    string
	retention time.Duration
}

// NewRedisReplayStore returns a store using keys "<prefix><session id>".
func NewRedisReplayStore(rdb goredis.Cmdable, prefix string, retention time.Duration) *RedisReplayStore {
	if prefix == "" {
		prefix = "replay:"
	}
	return &RedisReplayStore{rdb: rdb, prefix: prefix, retention: retention}
}

func (s *RedisReplayStore) Seen(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.prefix+id).Result()
	return n > 0, err
}

func (s *RedisReplayStore) MarkConsumed(ctx context.Context, id string) error {
	ok, err := s.rdb.SetNX(ctx, s.prefix+id, time.Now().UTC().Format(time.RFC3339), s.retention).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyConsumed
	}
	return nil
}
