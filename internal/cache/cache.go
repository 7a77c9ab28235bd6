// Package cache provides the ephemeral store used for the token blacklist.
// It offers Redis and in-memory backends behind a common interface; callers
// treat the cache as best effort and must not hard-fail when it is down.
package cache

import (
	"context"
	"errors"
	"time"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheDisabled indicates that caching is disabled.
	ErrCacheDisabled = errors.New("cache disabled")

	// ErrCircuitOpen indicates the backend is failing and calls are being
	// short-circuited.
	ErrCircuitOpen = errors.New("cache circuit open")
)

// Cache is the ephemeral key-value store interface.
type Cache interface {
	// Get retrieves a value. Returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A TTL of 0 means the entry
	// never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Close closes the backend connection.
	Close() error
}

// disabledCache rejects every operation with ErrCacheDisabled.
type disabledCache struct{}

// NewDisabled returns a cache that always reports ErrCacheDisabled.
func NewDisabled() Cache {
	return &disabledCache{}
}

func (c *disabledCache) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheDisabled
}

func (c *disabledCache) Set(context.Context, string, []byte, time.Duration) error {
	return ErrCacheDisabled
}

func (c *disabledCache) Delete(context.Context, string) error {
	return ErrCacheDisabled
}

func (c *disabledCache) Exists(context.Context, string) (bool, error) {
	return false, ErrCacheDisabled
}

func (c *disabledCache) Close() error {
	return nil
}
