package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// hitScript applies the fixed-window rules atomically on the Redis side:
// create-or-reset on an absent key, deny without incrementing at the cap.
// Returns {allowed, count, ttl_ms}.
var hitScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  redis.call("SET", KEYS[1], 1, "PX", ARGV[2])
  return {1, 1, tonumber(ARGV[2])}
end
current = tonumber(current)
if current >= tonumber(ARGV[1]) then
  return {0, current, redis.call("PTTL", KEYS[1])}
end
current = redis.call("INCR", KEYS[1])
return {1, current, redis.call("PTTL", KEYS[1])}
`)

// RedisStore shares counters across instances. Window expiry rides on key
// TTL, so a key absent from Redis is an expired window.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a store over the given client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Hit runs the counting script for key.
func (s *RedisStore) Hit(ctx context.Context, key string, cfg Config) (Decision, error) {
	result, err := hitScript.Run(ctx, s.client, []string{redisKeyPrefix + key},
		cfg.MaxRequests, cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis hit: %w", err)
	}
	if len(result) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", result)
	}
	allowed := result[0] == 1
	count := int(result[1])
	reset := time.Now().Add(time.Duration(result[2]) * time.Millisecond)
	remaining := cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Remaining: remaining, Reset: reset}, nil
}
