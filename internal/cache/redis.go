package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkorchagin/authgate/internal/config"
	"github.com/mkorchagin/authgate/internal/observability"
)

// redisCache implements Cache over a Redis client.
type redisCache struct {
	logger observability.Logger
	client redis.UniversalClient
}

// NewRedisClient connects to Redis and verifies the connection with a
// ping. The client is shared by the cache and the rate limit store.
func NewRedisClient(cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout.Duration(),
		ReadTimeout:  cfg.ReadTimeout.Duration(),
		WriteTimeout: cfg.WriteTimeout.Duration(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return client, nil
}

// NewRedis connects to Redis and returns a cache over the connection.
func NewRedis(cfg config.RedisConfig, logger observability.Logger) (Cache, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis cache initialized",
		observability.String("addr", cfg.Addr),
		observability.Int("db", cfg.DB),
	)

	return &redisCache{logger: logger, client: client}, nil
}

// NewRedisWithClient wraps an existing client. Used by tests with miniredis.
func NewRedisWithClient(client redis.UniversalClient, logger observability.Logger) Cache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &redisCache{logger: logger, client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics().missesTotal.Inc()
			return nil, ErrCacheMiss
		}
		metrics().errorsTotal.WithLabelValues("get").Inc()
		c.logger.Error("redis get failed",
			observability.String("key", key),
			observability.Error(err),
		)
		return nil, err
	}
	metrics().hitsTotal.Inc()
	return val, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		metrics().errorsTotal.WithLabelValues("set").Inc()
		c.logger.Error("redis set failed",
			observability.String("key", key),
			observability.Error(err),
		)
		return err
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		metrics().errorsTotal.WithLabelValues("delete").Inc()
		c.logger.Error("redis delete failed",
			observability.String("key", key),
			observability.Error(err),
		)
		return err
	}
	return nil
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		metrics().errorsTotal.WithLabelValues("exists").Inc()
		c.logger.Error("redis exists failed",
			observability.String("key", key),
			observability.Error(err),
		)
		return false, err
	}
	return n > 0, nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
