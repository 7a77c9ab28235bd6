package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkorchagin/authgate/internal/ratelimit/store"
)

// The Redis store provides the atomic take path; the limiter must produce
// the same decisions as over the generic store.
func TestTokenBucketOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	clock := newFakeClock()
	s := store.NewRedisStore(client).WithClock(clock.Now)
	l := NewTokenBucketLimiter(s, 60, 5, 10*time.Minute, WithClock(clock.Now))
	defer l.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should pass", i+1)
	}

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	clock.Advance(time.Minute)

	res, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestTokenBucketOverRedisBackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s := store.NewRedisStore(client)
	l := NewTokenBucketLimiter(s, 60, 5, 10*time.Minute)
	defer l.Close()

	mr.Close()

	// Errors surface to the caller; the middleware decides to fail open.
	_, err := l.Allow(context.Background(), "client")
	assert.Error(t, err)
}
