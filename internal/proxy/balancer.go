package proxy

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/mkorchagin/authgate/internal/config"
)

// Upstream is a single proxy target.
type Upstream struct {
	Name   string
	URL    *url.URL
	Weight int
}

// Balancer selects an upstream for each proxied request. SetUpstreams may
// be called concurrently with Pick.
type Balancer interface {
	Pick() *Upstream
	SetUpstreams(upstreams []*Upstream)
}

// NewBalancer creates a balancer for the configured strategy.
func NewBalancer(strategy string, upstreams []*Upstream) (Balancer, error) {
	switch strategy {
	case config.StrategyRoundRobin, "":
		return NewRoundRobinBalancer(upstreams), nil
	case config.StrategyRandom:
		return NewRandomBalancer(upstreams), nil
	default:
		return nil, fmt.Errorf("unknown balancing strategy: %s", strategy)
	}
}

// UpstreamsFromConfig converts configured targets into balancer upstreams.
func UpstreamsFromConfig(cfg config.UpstreamsConfig) ([]*Upstream, error) {
	upstreams := make([]*Upstream, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		u, err := url.Parse(fmt.Sprintf("http://%s:%d", t.Address, t.Port))
		if err != nil {
			return nil, fmt.Errorf("invalid upstream %s: %w", t.Name, err)
		}
		weight := t.Weight
		if weight <= 0 {
			weight = 1
		}
		upstreams = append(upstreams, &Upstream{Name: t.Name, URL: u, Weight: weight})
	}
	return upstreams, nil
}

// RoundRobinBalancer cycles through upstreams in order. A single counter
// shared by all callers keeps the rotation fair under concurrency.
type RoundRobinBalancer struct {
	upstreams []*Upstream
	current   atomic.Uint64
	mu        sync.RWMutex
}

// NewRoundRobinBalancer creates a round-robin balancer.
func NewRoundRobinBalancer(upstreams []*Upstream) *RoundRobinBalancer {
	return &RoundRobinBalancer{
		upstreams: upstreams,
	}
}

// Pick returns the next upstream in rotation, or nil when none are
// configured.
func (b *RoundRobinBalancer) Pick() *Upstream {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.upstreams) == 0 {
		return nil
	}

	idx := b.current.Add(1) - 1
	return b.upstreams[idx%uint64(len(b.upstreams))]
}

// SetUpstreams replaces the upstream list.
func (b *RoundRobinBalancer) SetUpstreams(upstreams []*Upstream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upstreams = upstreams
}

// RandomBalancer selects upstreams at random, proportionally to their
// weights.
type RandomBalancer struct {
	upstreams   []*Upstream
	totalWeight int
	mu          sync.RWMutex
}

// NewRandomBalancer creates a weighted random balancer.
func NewRandomBalancer(upstreams []*Upstream) *RandomBalancer {
	b := &RandomBalancer{
		upstreams: upstreams,
	}
	b.calculateTotalWeight()
	return b
}

func (b *RandomBalancer) calculateTotalWeight() {
	b.totalWeight = 0
	for _, u := range b.upstreams {
		b.totalWeight += u.Weight
	}
}

// Pick returns a random upstream, or nil when none are configured.
func (b *RandomBalancer) Pick() *Upstream {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.upstreams) == 0 || b.totalWeight == 0 {
		return nil
	}

	r := secureRandomInt(b.totalWeight)
	for _, u := range b.upstreams {
		r -= u.Weight
		if r < 0 {
			return u
		}
	}
	return b.upstreams[len(b.upstreams)-1]
}

// SetUpstreams replaces the upstream list.
func (b *RandomBalancer) SetUpstreams(upstreams []*Upstream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upstreams = upstreams
	b.calculateTotalWeight()
}

// secureRandomInt returns a cryptographically secure random int in [0, n).
func secureRandomInt(n int) int {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int(binary.LittleEndian.Uint64(b[:]) % uint64(n)) //nolint:gosec // bounds checked
}
