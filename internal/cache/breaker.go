package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mkorchagin/authgate/internal/observability"
)

// breakerCache wraps a Cache with a circuit breaker so a failing backend
// stops absorbing request latency. Misses count as success; only backend
// errors trip the breaker.
type breakerCache struct {
	inner   Cache
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// BreakerOption is a functional option for configuring the breaker.
type BreakerOption func(*gobreaker.Settings)

// WithBreakerTimeout sets how long the breaker stays open before probing.
func WithBreakerTimeout(timeout time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.Timeout = timeout
	}
}

// NewWithBreaker wraps the given cache with a circuit breaker.
func NewWithBreaker(inner Cache, logger observability.Logger, opts ...BreakerOption) Cache {
	if logger == nil {
		logger = observability.NopLogger()
	}

	settings := gobreaker.Settings{
		Name:    "cache",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics().breakerState.Set(1)
			} else {
				metrics().breakerState.Set(0)
			}
			logger.Warn("cache breaker state changed",
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}

	return &breakerCache{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (c *breakerCache) execute(op func() (any, error)) (any, error) {
	res, err := c.breaker.Execute(op)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return res, err
}

func (c *breakerCache) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := c.execute(func() (any, error) {
		return c.inner.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	val, _ := res.([]byte)
	return val, nil
}

func (c *breakerCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.execute(func() (any, error) {
		return nil, c.inner.Set(ctx, key, value, ttl)
	})
	return err
}

func (c *breakerCache) Delete(ctx context.Context, key string) error {
	_, err := c.execute(func() (any, error) {
		return nil, c.inner.Delete(ctx, key)
	})
	return err
}

func (c *breakerCache) Exists(ctx context.Context, key string) (bool, error) {
	res, err := c.execute(func() (any, error) {
		return c.inner.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	exists, _ := res.(bool)
	return exists, nil
}

func (c *breakerCache) Close() error {
	return c.inner.Close()
}
