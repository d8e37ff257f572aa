package payment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestMemoryReplayStore_DuplicateAndEviction(t *testing.T) {
	s := NewMemoryReplayStore()
	ctx := context.Background()

	if err := s.MarkConsumed(ctx, "cs_0"); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := s.MarkConsumed(ctx, "cs_0"); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("want ErrAlreadyConsumed, got %v", err)
	}

	for i := 1; i <= 1000; i++ {
		if err := s.MarkConsumed(ctx, fmt.Sprintf("cs_%d", i)); err != nil {
			t.Fatalf("mark %d: %v", i, err)
		}
	}
	// 1001 ids pushed the set over its bound; the oldest 500 are gone.
	if n := s.Len(); n != 501 {
		t.Fatalf("want 501 ids after eviction, got %d", n)
	}
	if seen, _ := s.Seen(ctx, "cs_0"); seen {
		t.Fatalf("oldest id should be evicted")
	}
	if seen, _ := s.Seen(ctx, "cs_499"); seen {
		t.Fatalf("cs_499 should be evicted")
	}
	if seen, _ := s.Seen(ctx, "cs_500"); !seen {
		t.Fatalf("cs_500 should survive")
	}
}

func TestRedisReplayStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	prefix := fmt.Sprintf("test:replay:%d:", time.Now().UnixNano())
	s := NewRedisReplayStore(rdb, prefix, time.Minute)

	if seen, err := s.Seen(ctx, "cs_1"); err != nil || seen {
		t.Fatalf("fresh id: seen=%v err=%v", seen, err)
	}
	if err := s.MarkConsumed(ctx, "cs_1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.MarkConsumed(ctx, "cs_1"); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("want ErrAlreadyConsumed, got %v", err)
	}
	if ttl := rdb.TTL(ctx, prefix+"cs_1").Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}
