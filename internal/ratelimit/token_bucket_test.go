package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkorchagin/authgate/internal/ratelimit/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, rpm, burst int) (*TokenBucketLimiter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s := store.NewMemoryStore(0)
	l := NewTokenBucketLimiter(s, rpm, burst, 10*time.Minute, WithClock(clock.Now))
	t.Cleanup(func() { _ = l.Close() })
	return l, clock
}

func TestTokenBucketFirstRequestInitializes(t *testing.T) {
	l, _ := newTestLimiter(t, 60, 5)

	res, err := l.Allow(context.Background(), "client")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
	assert.Equal(t, 4, res.Remaining)
}

func TestTokenBucketBurstThenDeny(t *testing.T) {
	l, clock := newTestLimiter(t, 60, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should pass", i+1)
	}

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Second, res.RetryAfter)

	// A minute later the bucket has fully refilled.
	clock.Advance(time.Minute)
	res, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestTokenBucketPartialRefill(t *testing.T) {
	l, clock := newTestLimiter(t, 60, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Allow(ctx, "client")
		require.NoError(t, err)
	}

	// One token per second at 60 rpm; two seconds buys two tokens.
	clock.Advance(2 * time.Second)

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestTokenBucketSubSecondElapsedAddsNothing(t *testing.T) {
	l, clock := newTestLimiter(t, 60, 1)
	ctx := context.Background()

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	// Integer arithmetic: 0 elapsed seconds means 0 new tokens.
	clock.Advance(900 * time.Millisecond)

	res, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestTokenBucketDenyDoesNotMutate(t *testing.T) {
	l, clock := newTestLimiter(t, 30, 1)
	ctx := context.Background()

	_, err := l.Allow(ctx, "client")
	require.NoError(t, err)

	// At 30 rpm a token takes 2 seconds. Denied requests at t+1s must not
	// reset the refill clock, so the token still arrives at t+2s.
	clock.Advance(time.Second)
	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	clock.Advance(time.Second)
	res, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketRefillCapsAtBurst(t *testing.T) {
	l, clock := newTestLimiter(t, 600, 3)
	ctx := context.Background()

	_, err := l.Allow(ctx, "client")
	require.NoError(t, err)

	clock.Advance(time.Hour)

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, 60, 1)
	ctx := context.Background()

	res, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestTokenBucketReset(t *testing.T) {
	l, _ := newTestLimiter(t, 60, 1)
	ctx := context.Background()

	_, err := l.Allow(ctx, "client")
	require.NoError(t, err)

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "client"))

	res, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

// The generic store path is read-modify-write without locking across the
// store round trip, so concurrent callers may overcount. The overshoot is
// bounded by the number of concurrent requests.
func TestTokenBucketConcurrentOvercountBounded(t *testing.T) {
	l, _ := newTestLimiter(t, 60, 10)
	ctx := context.Background()

	const workers = 20
	const perWorker = 5

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				res, err := l.Allow(ctx, "shared")
				if err == nil && res.Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	got := allowed.Load()
	assert.GreaterOrEqual(t, got, int64(10))
	assert.LessOrEqual(t, got, int64(10+workers))
}

func TestNoopLimiter(t *testing.T) {
	l := NewNoopLimiter()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		res, err := l.Allow(ctx, "any")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	assert.NoError(t, l.Reset(ctx, "any"))
	assert.NoError(t, l.Close())
}
