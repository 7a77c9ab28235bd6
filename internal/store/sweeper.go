package store

import (
	"context"
	"sync"
	"time"

	"github.com/mkorchagin/authgate/internal/observability"
)

// Sweeper periodically removes expired refresh-token sessions.
type Sweeper struct {
	tokens    *TokenStore
	interval  time.Duration
	logger    observability.Logger
	stopCh    chan struct{}
	stoppedCh chan struct{}
	mu        sync.Mutex
	running   bool
}

// SweeperOption is a functional option for configuring the sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the logger for the sweeper.
func WithSweeperLogger(logger observability.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(tokens *TokenStore, interval time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		tokens:    tokens,
		interval:  interval,
		logger:    observability.NopLogger(),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. It returns immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop halts the sweep loop and waits for it to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.stoppedCh
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.tokens.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", observability.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("swept expired sessions", observability.Int64("removed", n))
	}
}
