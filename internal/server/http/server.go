// Package http provides the HTTP surface of the auth gateway: the session
// endpoints, health and metrics, and the authenticated proxy path.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkorchagin/authgate/internal/config"
	"github.com/mkorchagin/authgate/internal/observability"
	"github.com/mkorchagin/authgate/internal/ratelimit"
	"github.com/mkorchagin/authgate/internal/server/http/middleware"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// PublicPaths are served without a bearer token.
var PublicPaths = []string{
	"/auth/register",
	"/auth/login",
	"/auth/refresh",
	"/health",
	"/ready",
	"/metrics",
}

// Server is the gateway's HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers
	logger     observability.Logger
	cfg        config.ServerConfig
	mu         sync.Mutex
	running    bool
}

// Options carries the collaborators wired into the middleware chain.
type Options struct {
	// Authorizer gates every non-public request.
	Authorizer middleware.Authorizer

	// Limiter is the per-client token bucket. Nil disables it.
	Limiter ratelimit.Limiter

	// Proxy serves everything that is not a gateway endpoint. Nil means
	// unmatched paths return 404.
	Proxy http.Handler

	Logger observability.Logger
}

// NewServer builds the engine with the full middleware chain and routes.
func NewServer(cfg config.ServerConfig, handlers *Handlers, opts Options) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	engine := gin.New()
	// The identity header is stripped before anything keys off it; only
	// the auth middleware may set it.
	engine.Use(func(c *gin.Context) {
		c.Request.Header.Del(middleware.AuthUserHeader)
		c.Next()
	})
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logging(logger),
	)

	if cfg.GlobalRateEnabled {
		engine.Use(middleware.GlobalRateLimit(cfg.GlobalRPS, cfg.GlobalBurst))
	}

	// Gateway endpoints are limited per client IP; proxied requests are
	// limited per authenticated user, so the limit follows the account
	// across addresses. The middleware for the latter sits after Auth.
	var ipLimit, userLimit gin.HandlerFunc
	if opts.Limiter != nil {
		keyFunc := ratelimit.ClientKeyFunc(middleware.AuthUserHeader, middleware.RequestIDHeader)
		ipLimit = middleware.RateLimit(opts.Limiter, ratelimit.IPKeyFunc, logger)
		userLimit = middleware.RateLimit(opts.Limiter, keyFunc, logger)
	}

	auth := engine.Group("/auth")
	if ipLimit != nil {
		auth.Use(ipLimit)
	}
	{
		auth.POST("/register", handlers.Register)
		auth.POST("/login", handlers.Login)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
		auth.POST("/logout-all", handlers.LogoutAll)
	}

	engine.GET("/health", handlers.Health)
	engine.GET("/ready", handlers.Ready)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Everything else is proxied behind bearer authorization.
	chain := []gin.HandlerFunc{middleware.Auth(opts.Authorizer, PublicPaths, logger)}
	if userLimit != nil {
		chain = append(chain, userLimit)
	}
	if opts.Proxy != nil {
		chain = append(chain, gin.WrapH(opts.Proxy))
	} else {
		chain = append(chain, func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		})
	}
	engine.NoRoute(chain...)

	return &Server{
		engine:   engine,
		handlers: handlers,
		logger:   logger,
		cfg:      cfg,
	}
}

// Engine returns the underlying gin engine. Used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start runs the server until it fails or Stop is called.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout.Duration(),
		WriteTimeout: s.cfg.WriteTimeout.Duration(),
		IdleTimeout:  s.cfg.IdleTimeout.Duration(),
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
