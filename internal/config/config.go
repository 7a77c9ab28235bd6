// Package config provides configuration management for the auth gateway.
// Configuration is loaded from a YAML file with ${ENV_VAR} expansion; the
// upstream list supports hot reload through a file watcher.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all configuration settings for the auth gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Blacklist BlacklistConfig `yaml:"blacklist"`
	Session   SessionConfig   `yaml:"session"`
	Upstreams UpstreamsConfig `yaml:"upstreams"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`

	// Server-wide inflight limiter, independent of the per-client buckets.
	GlobalRateEnabled bool `yaml:"globalRateEnabled"`
	GlobalRPS         int  `yaml:"globalRPS"`
	GlobalBurst       int  `yaml:"globalBurst"`
}

// DatabaseConfig holds relational store settings.
type DatabaseConfig struct {
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"maxOpenConns"`
	MaxIdleConns    int      `yaml:"maxIdleConns"`
	ConnMaxLifetime Duration `yaml:"connMaxLifetime"`

	// QueryTimeout bounds every store call issued by the gateway.
	QueryTimeout Duration `yaml:"queryTimeout"`
}

// RedisConfig holds ephemeral store settings.
type RedisConfig struct {
	Addr         string   `yaml:"addr"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	PoolSize     int      `yaml:"poolSize"`
	DialTimeout  Duration `yaml:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
}

// JWTConfig holds token signing settings. Lifetimes are in seconds.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int64  `yaml:"accessTokenTTL"`
	RefreshTokenTTL int64  `yaml:"refreshTokenTTL"`
}

// AccessTTL returns the access-token lifetime as a duration.
func (c JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

// RefreshTTL returns the refresh-token lifetime as a duration.
func (c JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Second
}

// RateLimitConfig holds per-client token bucket settings.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled"`
	RequestsPerMinute int      `yaml:"requestsPerMinute"`
	BurstSize         int      `yaml:"burstSize"`
	IdleTTL           Duration `yaml:"idleTTL"`
}

// BlacklistConfig holds revocation cache settings.
type BlacklistConfig struct {
	KeyPrefix string `yaml:"keyPrefix"`
}

// SessionConfig holds refresh-token store settings.
type SessionConfig struct {
	SweepInterval Duration `yaml:"sweepInterval"`
}

// UpstreamsConfig holds the upstream list and selection strategy.
type UpstreamsConfig struct {
	Strategy string           `yaml:"strategy"`
	Targets  []UpstreamConfig `yaml:"targets"`
}

// UpstreamConfig describes a single upstream peer.
type UpstreamConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Weight  int    `yaml:"weight"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Upstream selection strategies.
const (
	StrategyRoundRobin = "round_robin"
	StrategyRandom     = "random"
)

// Default returns a Config with default values. The JWT secret and database
// DSN have no defaults and must come from the config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			GlobalRPS:       1000,
			GlobalBurst:     2000,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(30 * time.Minute),
			QueryTimeout:    Duration(5 * time.Second),
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
		},
		JWT: JWTConfig{
			AccessTokenTTL:  900,
			RefreshTokenTTL: 604800,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			BurstSize:         10,
			IdleTTL:           Duration(10 * time.Minute),
		},
		Blacklist: BlacklistConfig{
			KeyPrefix: "blacklist:",
		},
		Session: SessionConfig{
			SweepInterval: Duration(time.Hour),
		},
		Upstreams: UpstreamsConfig{
			Strategy: StrategyRoundRobin,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn cannot be empty")
	}
	if c.Database.MaxOpenConns < c.Database.MaxIdleConns {
		return errors.New("database maxOpenConns must be >= maxIdleConns")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis addr cannot be empty")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret cannot be empty")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return errors.New("jwt accessTokenTTL must be positive")
	}
	if c.JWT.RefreshTokenTTL <= 0 {
		return errors.New("jwt refreshTokenTTL must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("rateLimit requestsPerMinute must be positive")
		}
		if c.RateLimit.BurstSize <= 0 {
			return errors.New("rateLimit burstSize must be positive")
		}
	}
	if err := c.Upstreams.validate(); err != nil {
		return err
	}
	return nil
}

func (u *UpstreamsConfig) validate() error {
	switch u.Strategy {
	case StrategyRoundRobin, StrategyRandom, "":
	default:
		return fmt.Errorf("unknown upstream strategy %q", u.Strategy)
	}
	if len(u.Targets) == 0 {
		return errors.New("at least one upstream must be configured")
	}
	for _, t := range u.Targets {
		if t.Address == "" {
			return fmt.Errorf("upstream %q address cannot be empty", t.Name)
		}
		if t.Port <= 0 || t.Port > 65535 {
			return fmt.Errorf("upstream %q port must be between 1 and 65535", t.Name)
		}
	}
	return nil
}
