package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// takeScript performs the whole refill-and-take cycle in one atomic step
// so concurrent requests against the same bucket cannot overcount.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local rpm = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last = tonumber(state[2])

if tokens == nil or last == nil then
  redis.call('HSET', key, 'tokens', burst - 1, 'last_refill', now)
  redis.call('EXPIRE', key, ttl)
  return {1, burst - 1}
end

local elapsed = now - last
if elapsed < 0 then
  elapsed = 0
end

local current = tokens + math.floor(elapsed * rpm / 60)
if current > burst then
  current = burst
end

if current > 0 then
  redis.call('HSET', key, 'tokens', current - 1, 'last_refill', now)
  redis.call('EXPIRE', key, ttl)
  return {1, current - 1}
end

return {0, 0}
`)

// RedisStore keeps buckets in Redis so replicas share rate limit state.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed bucket store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// WithClock overrides the store's notion of now. Intended for tests.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Bucket, error) {
	vals, err := s.client.HMGet(ctx, redisKeyPrefix+key, "tokens", "last_refill").Result()
	if err != nil {
		return Bucket{}, fmt.Errorf("reading bucket: %w", err)
	}
	if vals[0] == nil || vals[1] == nil {
		return Bucket{}, &ErrKeyNotFound{Key: key}
	}

	var tokens, lastRefill int64
	if _, err := fmt.Sscanf(vals[0].(string), "%d", &tokens); err != nil {
		return Bucket{}, fmt.Errorf("decoding bucket tokens: %w", err)
	}
	if _, err := fmt.Sscanf(vals[1].(string), "%d", &lastRefill); err != nil {
		return Bucket{}, fmt.Errorf("decoding bucket refill time: %w", err)
	}

	return Bucket{Tokens: tokens, LastRefill: time.Unix(lastRefill, 0)}, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, b Bucket, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, redisKeyPrefix+key, "tokens", b.Tokens, "last_refill", b.LastRefill.Unix())
	pipe.Expire(ctx, redisKeyPrefix+key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing bucket: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("deleting bucket: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Take atomically refills the bucket and consumes one token. The limiter
// prefers this path over Get/Set when the store provides it.
func (s *RedisStore) Take(ctx context.Context, key string, rpm, burst int64, ttl time.Duration) (bool, int64, error) {
	res, err := takeScript.Run(ctx, s.client, []string{redisKeyPrefix + key},
		rpm, burst, s.now().Unix(), int64(ttl.Seconds()),
	).Result()
	if err != nil {
		return false, 0, fmt.Errorf("running bucket script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, errors.New("unexpected bucket script result")
	}
	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	return allowed == 1, remaining, nil
}
