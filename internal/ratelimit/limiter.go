// Package ratelimit provides per-client token bucket rate limiting.
//
// Refill arithmetic is integer based: a bucket with capacity burst gains
// floor(elapsedSeconds * requestsPerMinute / 60) tokens since its last
// refill, and every allowed request consumes exactly one token.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// Allow consumes one token for the key if available.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset clears the bucket for the key.
	Reset(ctx context.Context, key string) error

	// Close releases limiter resources.
	Close() error
}

// Result is the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Limit is the bucket capacity.
	Limit int

	// Remaining is the number of tokens left after this check.
	Remaining int

	// RetryAfter is how long to wait before a token becomes available.
	// Zero when the request was allowed.
	RetryAfter time.Duration
}

// NoopLimiter allows every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that never denies.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(context.Context, string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(context.Context, string) error {
	return nil
}

// Close implements Limiter.
func (l *NoopLimiter) Close() error {
	return nil
}
