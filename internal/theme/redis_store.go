package theme

import (
	"context"
	"errors"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore shares themes across instances. Put uses SETNX so the first
// writer wins; entries do not expire.
type RedisStore struct {
	rdb    goredis.Cmdable
	prefix string
}

// NewRedisStore returns a store using keys "<prefix><instant>:<year>".
func NewRedisStore(rdb goredis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "theme:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(norm string, year int) string {
	return s.prefix + norm + ":" + strconv.Itoa(year)
}

func (s *RedisStore) Get(ctx context.Context, normalizedUTC string, targetYear int) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(normalizedUTC, targetYear)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Put(ctx context.Context, normalizedUTC string, targetYear int, theme string) error {
	return s.rdb.SetNX(ctx, s.key(normalizedUTC, targetYear), theme, 0).Err()
}
