// Package store provides storage backends for rate limit buckets.
package store

import (
	"context"
	"time"
)

// Bucket is the persisted state of a single token bucket.
type Bucket struct {
	// Tokens is the number of tokens left after the last allowed request.
	Tokens int64

	// LastRefill is when tokens were last added to the bucket.
	LastRefill time.Time
}

// Store defines the interface for bucket storage.
type Store interface {
	// Get retrieves the bucket for the given key. Returns a
	// *ErrKeyNotFound error if no bucket exists.
	Get(ctx context.Context, key string) (Bucket, error)

	// Set stores the bucket with an idle expiration. The TTL restarts on
	// every write, so only buckets idle longer than ttl are dropped.
	Set(ctx context.Context, key string, b Bucket, ttl time.Duration) error

	// Delete removes the bucket.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// ErrKeyNotFound is returned when a bucket does not exist.
type ErrKeyNotFound struct {
	Key string
}

func (e *ErrKeyNotFound) Error() string {
	return "bucket not found: " + e.Key
}

// IsKeyNotFound reports whether the error is a missing-bucket error.
func IsKeyNotFound(err error) bool {
	_, ok := err.(*ErrKeyNotFound)
	return ok
}
