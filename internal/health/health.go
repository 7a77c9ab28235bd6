// Package health provides liveness and readiness checks over the
// gateway's backing stores.
package health

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates a non-critical dependency is down.
	StatusDegraded Status = "degraded"
)

// CheckFunc probes a single dependency.
type CheckFunc func(ctx context.Context) error

// check is a registered dependency probe.
type check struct {
	fn       CheckFunc
	critical bool
}

// Check is an individual probe result.
type Check struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse is the readiness payload.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Checker aggregates dependency probes for the health endpoints.
type Checker struct {
	version   string
	startTime time.Time
	checks    map[string]check
	mu        sync.RWMutex
}

// NewChecker creates a checker.
func NewChecker(version string) *Checker {
	return &Checker{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]check),
	}
}

// RegisterCheck registers a critical dependency probe. Failure makes the
// service not ready.
func (c *Checker) RegisterCheck(name string, fn CheckFunc) {
	c.register(name, fn, true)
}

// RegisterOptionalCheck registers a probe whose failure only degrades
// readiness. Used for the best-effort ephemeral store.
func (c *Checker) RegisterOptionalCheck(name string, fn CheckFunc) {
	c.register(name, fn, false)
}

func (c *Checker) register(name string, fn CheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check{fn: fn, critical: critical}
}

// Health returns the liveness status. It reports healthy as long as the
// process is serving.
func (c *Checker) Health() HealthResponse {
	return HealthResponse{
		Status:    StatusHealthy,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Readiness runs every registered probe and aggregates the results.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	c.mu.RLock()
	checks := make(map[string]check, len(c.checks))
	for name, ch := range c.checks {
		checks[name] = ch
	}
	c.mu.RUnlock()

	status := StatusHealthy
	results := make(map[string]Check, len(checks))
	for name, ch := range checks {
		if err := ch.fn(ctx); err != nil {
			results[name] = Check{Status: StatusUnhealthy, Message: err.Error()}
			if ch.critical {
				status = StatusUnhealthy
			} else if status == StatusHealthy {
				status = StatusDegraded
			}
			continue
		}
		results[name] = Check{Status: StatusHealthy}
	}

	return ReadinessResponse{
		Status:    status,
		Checks:    results,
		Timestamp: time.Now(),
	}
}

// DatabasePing probes the relational store.
func DatabasePing(db *sql.DB) CheckFunc {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// RedisPing probes the ephemeral store.
func RedisPing(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
