package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/datagrid/internal/auth"
	"github.com/JonMunkholm/datagrid/internal/cache"
	"github.com/JonMunkholm/datagrid/internal/config"
	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/JonMunkholm/datagrid/internal/logging"
	"github.com/JonMunkholm/datagrid/internal/metrics"
	"github.com/JonMunkholm/datagrid/internal/store/memory"
	"github.com/JonMunkholm/datagrid/internal/store/postgres"
	"github.com/JonMunkholm/datagrid/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Database.Driver,
		"redis_enabled", cfg.Redis.Enabled,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	limiter := core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithImportLimiter(limiter),
		core.WithImportLimits(cfg.Import.MaxRows, cfg.Import.Timeout),
		core.WithOpenGridCreation(cfg.Access.OpenGridCreation),
	}

	if cfg.Redis.Enabled {
		columnCache := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cache.WithTTL(cfg.Redis.SchemaTTL))
		defer columnCache.Close()
		if err := columnCache.Ping(ctx); err != nil {
			// The cache is an optimization; reads fall through to the store.
			slog.Warn("redis unavailable, continuing without column cache", "addr", cfg.Redis.Addr, "error", err)
		}
		opts = append(opts, core.WithColumnCache(columnCache))
	}

	var serverOpts []web.Option
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		m := metrics.New(reg)
		metrics.RegisterImportLimiter(reg, limiter)
		opts = append(opts, core.WithRecorder(m))
		serverOpts = append(serverOpts, web.WithMetrics(m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	service := core.NewService(store, opts...)

	resolver := auth.NewResolver(cfg.Auth.JWTSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAdminRole(cfg.Auth.AdminRole),
		auth.WithAPIKeys(cfg.Auth.APIKeys),
	)

	server := web.NewServer(cfg, service, resolver, serverOpts...)

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if stats := limiter.Stats(); stats.Active > 0 {
			slog.Info("waiting for imports to complete", "active", stats.Active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("server stopped")
}

// openStore connects the configured store. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database URL: %w", err)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	store := postgres.New(pool)
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		slog.Info("database schema applied")
	}
	return store, pool.Close, nil
}
