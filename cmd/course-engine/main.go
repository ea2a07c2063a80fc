package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/course-engine/internal/api"
	"github.com/terra-clan/course-engine/internal/assistant"
	"github.com/terra-clan/course-engine/internal/auth"
	"github.com/terra-clan/course-engine/internal/certificate"
	"github.com/terra-clan/course-engine/internal/cleanup"
	"github.com/terra-clan/course-engine/internal/config"
	"github.com/terra-clan/course-engine/internal/content"
	"github.com/terra-clan/course-engine/internal/health"
	"github.com/terra-clan/course-engine/internal/httpx"
	"github.com/terra-clan/course-engine/internal/progress"
	"github.com/terra-clan/course-engine/internal/storage"
	"github.com/terra-clan/course-engine/internal/theme"
	"github.com/terra-clan/course-engine/internal/workflow"
	"github.com/terra-clan/course-engine/migrations"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("starting course-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"content", cfg.Content.Source,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	repo, err := openStorage(initCtx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	slog.Info("storage ready", "driver", cfg.Storage.Driver)

	checks := health.NewRegistry(2 * time.Second)
	checks.Register("storage", health.CheckerFunc(repo.Ping))

	// Content source, optionally behind the Redis cache
	source, err := openSource(cfg.Content)
	if err != nil {
		slog.Error("failed to create content source", "error", err)
		os.Exit(1)
	}

	var (
		cache       api.CacheInvalidator
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = content.NewRedisClient(initCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("redis unavailable, catalog cache disabled", "error", err)
		} else {
			cached := content.NewCachedSource(source, redisClient, cfg.Content.Source, cfg.Redis.CatalogTTL)
			checks.Register("redis", cached)
			source = cached
			cache = cached
		}
	}

	catalog := content.NewCatalog(source)
	if err := catalog.Reload(initCtx); err != nil {
		slog.Warn("starting without catalog, course routes answer 503 until reload")
	}
	checks.Register("catalog", health.CheckerFunc(catalog.Ping))

	themeCfg, err := theme.Load(cfg.Theme.File)
	if err != nil {
		slog.Warn("invalid theme file, using defaults", "file", cfg.Theme.File, "error", err)
	}

	var completer assistant.Completer
	if cfg.Assistant.APIKey != "" {
		completer = assistant.NewClient(assistant.ClientConfig{
			APIKey:  cfg.Assistant.APIKey,
			BaseURL: cfg.Assistant.BaseURL,
			Model:   cfg.Assistant.Model,
			Timeout: cfg.Assistant.Timeout,
		})
	} else {
		slog.Warn("OPENAI_API_KEY not set, assistant disabled")
	}
	helper := assistant.New(completer, assistant.Options{
		Temperature: cfg.Assistant.Temperature,
		MaxTokens:   cfg.Assistant.MaxTokens,
		MaxHistory:  cfg.Assistant.MaxHistory,
	})

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	sessions := workflow.NewRegistry()

	// Idle quiz sessions are swept as requests come in
	cleaner := cleanup.NewCleaner(sessions, cfg.Sessions.SweepInterval, cfg.Sessions.IdleTTL)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, api.Deps{
		Catalog:      catalog,
		Cache:        cache,
		Progress:     progress.NewService(repo, progress.WithStartRetry(cfg.Progress.StartAttempts, cfg.Progress.StartBaseDelay)),
		Store:        repo,
		Sessions:     sessions,
		Cleaner:      cleaner,
		Certificates: certificate.NewEmitter(themeCfg),
		Assistant:    helper,
		Theme:        themeCfg,
		Health:       checks,
		Auth:         auth.NewMiddleware(verifier, repo),
	})
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if pending := sessions.AllPending(); len(pending) > 0 {
		slog.Warn("completions lost on shutdown", "count", len(pending))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if err := repo.Close(); err != nil {
		slog.Error("storage close error", "error", err)
	}

	slog.Info("course-engine stopped")
}

// openStorage migrates and connects the configured backend
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Repository, error) {
	switch cfg.Driver {
	case config.StoragePostgres:
		var migrationsFS fs.FS = migrations.FS
		if cfg.MigrationsDir != "" {
			if _, err := os.Stat(cfg.MigrationsDir); err == nil {
				migrationsFS = os.DirFS(cfg.MigrationsDir)
			}
		}
		slog.Info("running database migrations", "dir", cfg.MigrationsDir)
		if err := storage.MigrateFromDSN(ctx, cfg.DSN, migrationsFS); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return storage.NewPostgresStore(ctx, storage.PostgresConfig{
			DSN:          cfg.DSN,
			MaxOpenConns: int32(cfg.MaxOpenConns),
			MaxIdleConns: int32(cfg.MaxIdleConns),
		})
	case config.StorageSQLite:
		return storage.NewSQLiteRepository(ctx, cfg.SQLitePath)
	case config.StorageMemory:
		slog.Warn("using in-memory storage, progress is lost on restart")
		return storage.NewMemoryRepository(), nil
	}
	return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
}

// openSource builds the configured content source
func openSource(cfg config.ContentConfig) (content.Source, error) {
	switch cfg.Source {
	case config.ContentStatic:
		return content.NewStaticSourceDir(cfg.StaticDir), nil
	case config.ContentTabular:
		schema, err := content.LoadSchema(cfg.Tabular.SchemaFile)
		if err != nil {
			return nil, err
		}
		if !schema.HasQuiz() {
			slog.Warn("tabular schema has no quiz columns, lessons cannot be completed; set SEATABLE_SCHEMA_FILE",
				"schema_file", cfg.Tabular.SchemaFile)
		}
		if cfg.Tabular.PaidCostID != "" {
			schema.PaidAccessIDs = append(schema.PaidAccessIDs, cfg.Tabular.PaidCostID)
		}
		return content.NewTabularSource(cfg.Tabular.BaseURL, cfg.Tabular.BaseID, cfg.Tabular.APIToken,
			content.WithSchema(schema),
			content.WithTabularTimeout(cfg.Tabular.Timeout),
			content.WithTabularBackoff(httpx.Backoff{
				MaxAttempts: cfg.Tabular.MaxAttempts,
				BaseDelay:   500 * time.Millisecond,
				MaxDelay:    5 * time.Second,
				Jitter:      true,
			}),
		), nil
	}
	return nil, fmt.Errorf("unknown content source: %q", cfg.Source)
}
