// Package main is the entrypoint for the VidForge API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vidforge/vidforge/internal/api"
	"github.com/vidforge/vidforge/internal/api/handler"
	mw "github.com/vidforge/vidforge/internal/api/middleware"
	"github.com/vidforge/vidforge/internal/api/response"
	"github.com/vidforge/vidforge/internal/cache"
	"github.com/vidforge/vidforge/internal/config"
	"github.com/vidforge/vidforge/internal/engine"
	"github.com/vidforge/vidforge/internal/jobs"
	"github.com/vidforge/vidforge/internal/modelark"
	"github.com/vidforge/vidforge/internal/store"
)

const shutdownTimeout = 30 * time.Second

var configPath = flag.String("config", "", "path to YAML config file")

func main() {
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "ark_base_url", cfg.Ark.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and generation API client
	pgStore := store.NewPostgresStore(pool)

	ark := modelark.NewHTTPClient(cfg.Ark.BaseURL, cfg.Ark.APIKey, cfg.Ark.Timeout)
	if err := ark.Ping(ctx); err != nil {
		// The remote API being down must not block startup; the engine
		// retries on every tick.
		slog.Warn("generation API unreachable at startup", "error", err)
	}

	// 6. Start the reconciliation engine
	downloader := engine.NewDownloader(pgStore, cfg.Engine.ArtifactDir,
		cfg.Engine.MaxConcurrentDownloads, cfg.Engine.DownloadTimeout)
	eng := engine.New(pgStore, ark, redisCache, downloader, cfg.Engine.PollInterval)
	eng.Start()
	defer eng.Stop()
	slog.Info("reconciliation engine started", "poll_interval", cfg.Engine.PollInterval.String())

	// 7. Build router with dependencies
	svc := jobs.NewService(pgStore, redisCache, ark, eng, cfg.Ark.ModelID)

	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		ListJobsHandler:     handler.NewListJobsHandler(svc),
		CreateJobHandler:    handler.NewCreateJobHandler(svc),
		GetJobHandler:       handler.NewGetJobHandler(svc),
		JobStatusHandler:    handler.NewJobStatusHandler(svc),
		DeleteJobHandler:    handler.NewDeleteJobHandler(svc),
		ReconcileJobHandler: handler.NewReconcileJobHandler(svc),
		JobArtifactHandler:  handler.NewJobArtifactHandler(svc),
		EngineStatusHandler: handler.NewEngineStatusHandler(svc),

		GetSettingsHandler: handler.NewGetSettingsHandler(pgStore),
		PutSettingsHandler: handler.NewPutSettingsHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
