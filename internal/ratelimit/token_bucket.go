package ratelimit

import (
	"context"
	"time"

	"github.com/mkorchagin/authgate/internal/observability"
	"github.com/mkorchagin/authgate/internal/ratelimit/store"
)

// atomicTaker is an optional store capability. Stores that can refill and
// consume in one atomic operation avoid the read-modify-write race of the
// generic path.
type atomicTaker interface {
	Take(ctx context.Context, key string, rpm, burst int64, ttl time.Duration) (bool, int64, error)
}

// TokenBucketLimiter implements Limiter over a bucket store.
//
// On the generic store path the read-modify-write cycle is not atomic, so
// concurrent requests for the same key can each observe the same token and
// both pass. The worst case overcount is bounded by the number of
// concurrent requests, which is acceptable for traffic shaping.
type TokenBucketLimiter struct {
	store             store.Store
	requestsPerMinute int64
	burst             int64
	idleTTL           time.Duration
	logger            observability.Logger
	now               func() time.Time
}

// TokenBucketOption is a functional option for the limiter.
type TokenBucketOption func(*TokenBucketLimiter)

// WithClock overrides the limiter's notion of now. Intended for tests.
func WithClock(now func() time.Time) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.now = now
	}
}

// WithLimiterLogger sets the logger.
func WithLimiterLogger(logger observability.Logger) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.logger = logger
	}
}

// NewTokenBucketLimiter creates a token bucket limiter. Buckets idle
// longer than idleTTL are dropped by the store.
func NewTokenBucketLimiter(s store.Store, requestsPerMinute, burst int, idleTTL time.Duration, opts ...TokenBucketOption) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		store:             s,
		requestsPerMinute: int64(requestsPerMinute),
		burst:             int64(burst),
		idleTTL:           idleTTL,
		logger:            observability.NopLogger(),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	if taker, ok := l.store.(atomicTaker); ok {
		return l.allowAtomic(ctx, taker, key)
	}
	return l.allowGeneric(ctx, key)
}

func (l *TokenBucketLimiter) allowAtomic(ctx context.Context, taker atomicTaker, key string) (*Result, error) {
	allowed, remaining, err := taker.Take(ctx, key, l.requestsPerMinute, l.burst, l.idleTTL)
	if err != nil {
		return nil, err
	}
	return l.result(allowed, remaining), nil
}

func (l *TokenBucketLimiter) allowGeneric(ctx context.Context, key string) (*Result, error) {
	now := l.now()

	b, err := l.store.Get(ctx, key)
	if err != nil {
		if !store.IsKeyNotFound(err) {
			return nil, err
		}
		// First request for this key claims one token from a full bucket.
		b = store.Bucket{Tokens: l.burst - 1, LastRefill: now}
		if err := l.store.Set(ctx, key, b, l.idleTTL); err != nil {
			return nil, err
		}
		return l.result(true, b.Tokens), nil
	}

	elapsed := now.Unix() - b.LastRefill.Unix()
	if elapsed < 0 {
		elapsed = 0
	}

	current := b.Tokens + elapsed*l.requestsPerMinute/60
	if current > l.burst {
		current = l.burst
	}

	if current <= 0 {
		// Denied requests leave the bucket untouched so the refill
		// clock keeps running from the last allowed request.
		return l.result(false, 0), nil
	}

	b = store.Bucket{Tokens: current - 1, LastRefill: now}
	if err := l.store.Set(ctx, key, b, l.idleTTL); err != nil {
		return nil, err
	}
	return l.result(true, b.Tokens), nil
}

func (l *TokenBucketLimiter) result(allowed bool, remaining int64) *Result {
	r := &Result{
		Allowed:   allowed,
		Limit:     int(l.burst),
		Remaining: int(remaining),
	}
	if !allowed {
		r.RetryAfter = l.retryAfter()
	}
	if allowed {
		limiterMetrics().allowedTotal.Inc()
	} else {
		limiterMetrics().deniedTotal.Inc()
	}
	return r
}

// retryAfter is the time needed to accrue a single token.
func (l *TokenBucketLimiter) retryAfter() time.Duration {
	if l.requestsPerMinute <= 0 {
		return time.Minute
	}
	secs := 60 / l.requestsPerMinute
	if 60%l.requestsPerMinute != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}

// Close implements Limiter.
func (l *TokenBucketLimiter) Close() error {
	return l.store.Close()
}
