package admission

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// hitScript checks and charges a counter in one round trip.
// Returns {count, pttl_ms, allowed}.
var hitScript = goredis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if cur >= limit then
  return {cur, redis.call('PTTL', KEYS[1]), 0}
end
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if n == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {n, ttl, 1}
`)

// RedisStore is a CounterStore shared by every instance that points at the
// same Redis. Windows are enforced with key expiry.
type RedisStore struct {
	rdb    goredis.Cmdable
	prefix string
}

// NewRedisStore returns a store that namespaces its keys with prefix.
func NewRedisStore(rdb goredis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "admission:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Hit implements CounterStore.
func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, bool, error) {
	res, err := hitScript.Run(ctx, s.rdb, []string{s.prefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, true, fmt.Errorf("admission: redis hit %q: %w", key, err)
	}
	if len(res) != 3 {
		return Window{}, true, fmt.Errorf("admission: unexpected script reply %v", res)
	}
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = 0
	}
	return Window{Count: int(res[0]), ResetAt: now.Add(ttl)}, res[2] == 1, nil
}
