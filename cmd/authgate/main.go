// Package main is the entry point for the auth gateway.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/mkorchagin/authgate/internal/cache"
	"github.com/mkorchagin/authgate/internal/config"
	"github.com/mkorchagin/authgate/internal/gateway"
	"github.com/mkorchagin/authgate/internal/health"
	"github.com/mkorchagin/authgate/internal/observability"
	"github.com/mkorchagin/authgate/internal/proxy"
	"github.com/mkorchagin/authgate/internal/ratelimit"
	ratestore "github.com/mkorchagin/authgate/internal/ratelimit/store"
	httpserver "github.com/mkorchagin/authgate/internal/server/http"
	"github.com/mkorchagin/authgate/internal/store"
	"github.com/mkorchagin/authgate/internal/token"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting authgate",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	app, err := initApplication(cfg, logger)
	if err != nil {
		logger.Error("initialization failed", observability.Error(err))
		os.Exit(1)
	}

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AUTHGATE_CONFIG_PATH", "configs/authgate.yaml"),
		"Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("authgate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(cfg config.LoggingConfig) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// application holds all application components.
type application struct {
	server  *httpserver.Server
	sweeper *store.Sweeper
	proxy   *proxy.ReverseProxy
	limiter ratelimit.Limiter
	db      *sql.DB
	redis   redis.UniversalClient
	config  *config.Config
}

// initApplication wires all application components together.
func initApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	if err := store.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database migration: %w", err)
	}
	logger.Info("database ready")

	users := store.NewUserStore(db)
	tokens := store.NewTokenStore(db)

	// Redis is optional. Without it the blacklist degrades to in-process
	// memory and the rate limiter loses cross-instance state.
	var redisClient redis.UniversalClient
	blacklistCache := cache.NewMemory()
	if cfg.Redis.Addr != "" {
		redisClient, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory fallback",
				observability.Error(err),
			)
			redisClient = nil
		} else {
			blacklistCache = cache.NewWithBreaker(
				cache.NewRedisWithClient(redisClient, logger), logger)
			logger.Info("redis ready", observability.String("addr", cfg.Redis.Addr))
		}
	}

	blacklist := cache.NewBlacklist(blacklistCache,
		cache.WithBlacklistPrefix(cfg.Blacklist.KeyPrefix),
		cache.WithBlacklistLogger(logger),
	)

	issuer := token.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTTL(), cfg.JWT.RefreshTTL())

	gw := gateway.New(users, tokens, blacklist, issuer,
		gateway.WithLogger(logger),
		gateway.WithStoreTimeout(cfg.Database.QueryTimeout.Duration()),
	)

	limiter := buildLimiter(cfg.RateLimit, redisClient, logger)

	upstreams, err := proxy.UpstreamsFromConfig(cfg.Upstreams)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("upstream configuration: %w", err)
	}
	balancer, err := proxy.NewBalancer(cfg.Upstreams.Strategy, upstreams)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("upstream configuration: %w", err)
	}
	reverseProxy := proxy.NewReverseProxy(balancer, proxy.WithProxyLogger(logger))

	checker := health.NewChecker(version)
	checker.RegisterCheck("postgres", health.DatabasePing(db))
	if redisClient != nil {
		checker.RegisterOptionalCheck("redis", health.RedisPing(redisClient))
	}

	handlers := httpserver.NewHandlers(gw, checker, logger)
	server := httpserver.NewServer(cfg.Server, handlers, httpserver.Options{
		Authorizer: gw,
		Limiter:    limiter,
		Proxy:      reverseProxy,
		Logger:     logger,
	})

	sweeper := store.NewSweeper(tokens, cfg.Session.SweepInterval.Duration(),
		store.WithSweeperLogger(logger))

	return &application{
		server:  server,
		sweeper: sweeper,
		proxy:   reverseProxy,
		limiter: limiter,
		db:      db,
		redis:   redisClient,
		config:  cfg,
	}, nil
}

// buildLimiter creates the per-client rate limiter. Redis-backed buckets
// are shared across instances; the memory store is the fallback.
func buildLimiter(cfg config.RateLimitConfig, redisClient redis.UniversalClient, logger observability.Logger) ratelimit.Limiter {
	if !cfg.Enabled {
		return nil
	}

	var s ratestore.Store
	if redisClient != nil {
		s = ratestore.NewRedisStore(redisClient)
	} else {
		s = ratestore.NewMemoryStore(cfg.IdleTTL.Duration())
	}

	return ratelimit.NewTokenBucketLimiter(s,
		cfg.RequestsPerMinute, cfg.BurstSize, cfg.IdleTTL.Duration(),
		ratelimit.WithLimiterLogger(logger),
	)
}

// run starts the components and blocks until a shutdown signal arrives.
func run(app *application, configPath string, logger observability.Logger) {
	ctx := context.Background()

	app.sweeper.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.server.Start(ctx)
	}()

	watcher := startConfigWatcher(app, configPath, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	shutdown(app, watcher, logger)
}

// startConfigWatcher starts the watcher that hot-reloads the upstream
// list. Other settings require a restart.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		logger.Info("configuration changed, reloading upstreams")
		if reloadErr := app.proxy.UpdateUpstreams(newCfg.Upstreams); reloadErr != nil {
			logger.Error("failed to reload upstreams", observability.Error(reloadErr))
		}
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}
	return watcher
}

// shutdown stops components in reverse start order.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(),
		app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Stop(ctx); err != nil {
		logger.Error("server shutdown failed", observability.Error(err))
	}

	app.sweeper.Stop()

	if app.limiter != nil {
		_ = app.limiter.Close()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if err := app.db.Close(); err != nil {
		logger.Error("database close failed", observability.Error(err))
	}

	logger.Info("shutdown complete")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
