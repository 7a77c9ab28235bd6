package cache

import (
	"context"
	"time"

	"github.com/mkorchagin/authgate/internal/observability"
)

// DefaultBlacklistPrefix is the key prefix for revoked tokens.
const DefaultBlacklistPrefix = "blacklist:"

var revokedMarker = []byte("revoked")

// Blacklist records revoked tokens in the ephemeral store. Entries carry
// the remaining validity of the token as TTL, so they disappear once the
// token could no longer pass signature validation anyway.
type Blacklist struct {
	cache  Cache
	prefix string
	logger observability.Logger
}

// BlacklistOption is a functional option for configuring the blacklist.
type BlacklistOption func(*Blacklist)

// WithBlacklistPrefix overrides the key prefix.
func WithBlacklistPrefix(prefix string) BlacklistOption {
	return func(b *Blacklist) {
		b.prefix = prefix
	}
}

// WithBlacklistLogger sets the logger.
func WithBlacklistLogger(logger observability.Logger) BlacklistOption {
	return func(b *Blacklist) {
		b.logger = logger
	}
}

// NewBlacklist creates a token blacklist over the given cache.
func NewBlacklist(c Cache, opts ...BlacklistOption) *Blacklist {
	b := &Blacklist{
		cache:  c,
		prefix: DefaultBlacklistPrefix,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add marks the token as revoked for the given TTL. A non-positive TTL
// means the token has already expired and nothing needs to be recorded.
func (b *Blacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.cache.Set(ctx, b.prefix+token, revokedMarker, ttl)
}

// Contains reports whether the token has been revoked. Backend errors are
// returned so the caller can choose its failure mode.
func (b *Blacklist) Contains(ctx context.Context, token string) (bool, error) {
	exists, err := b.cache.Exists(ctx, b.prefix+token)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Remove deletes a blacklist entry. Used mostly by tests and tooling.
func (b *Blacklist) Remove(ctx context.Context, token string) error {
	return b.cache.Delete(ctx, b.prefix+token)
}
