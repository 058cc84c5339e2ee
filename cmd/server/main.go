// Package main is the entrypoint for the lesionscan API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/lesionscan/internal/analysis"
	"github.com/kiranshivaraju/lesionscan/internal/api"
	"github.com/kiranshivaraju/lesionscan/internal/api/handler"
	mw "github.com/kiranshivaraju/lesionscan/internal/api/middleware"
	"github.com/kiranshivaraju/lesionscan/internal/cache"
	"github.com/kiranshivaraju/lesionscan/internal/classify"
	"github.com/kiranshivaraju/lesionscan/internal/config"
	"github.com/kiranshivaraju/lesionscan/internal/imaging"
	"github.com/kiranshivaraju/lesionscan/internal/metrics"
	"github.com/kiranshivaraju/lesionscan/internal/store"
	"github.com/kiranshivaraju/lesionscan/internal/upload"
	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel,
	})))
	slog.Info("config loaded", "env", cfg.Server.Env, "store", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open job store (runs migrations for postgres)
	jobStore, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. Open status cache; Redis is optional
	statusCache, closeCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	// 4. Prepare upload directory
	uploads, err := upload.NewStorage(cfg.Upload.Dir, cfg.Upload.MaxBytes)
	if err != nil {
		return fmt.Errorf("prepare upload dir: %w", err)
	}
	slog.Info("upload storage ready", "dir", uploads.Dir(), "max_bytes", uploads.MaxBytes())

	// 5. Build classifier chain
	classifier, err := classify.NewClassifier(ctx, cfg.Classifier)
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}
	slog.Info("classifier initialized", "classifier", classifier.Name(), "ready", classifier.Ready())

	// 6. Wire analysis service
	m := metrics.New()
	svc := analysis.NewService(analysis.Deps{
		Store:        jobStore,
		Cache:        statusCache,
		Images:       uploads,
		Preprocessor: imaging.NewPreprocessor(cfg.Image.TargetSize, cfg.Image.Quality),
		Classifier:   classifier,
		Recommender:  classify.NewRecommender(cfg.Classifier.HighRiskConditions, cfg.Classifier.MediumRiskConditions),
		Metrics:      m,
		JobTimeout:   cfg.Jobs.Timeout,
	})

	// 7. Build router with dependencies
	debug := cfg.Server.IsDevelopment()
	deps := api.Dependencies{
		RateLimit:   mw.NewRateLimit(statusCache, cfg.Server.RateLimitPerMinute),
		Debug:       debug,
		CORSOrigins: cfg.Server.CORSOrigins,
		UploadDir:   uploads.Dir(),
		Metrics:     m.Handler(),

		HealthHandler:  handler.NewHealthHandler(cfg.Server.Env, healthChecks(jobStore, statusCache, classifier)),
		AnalyzeHandler: handler.NewAnalyzeHandler(svc, uploads, debug),
		StatusHandler:  handler.NewStatusHandler(svc, debug),
		ResultsHandler: handler.NewResultsHandler(svc, debug),
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

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	// Jobs still advancing would be left in processing if the store closed first.
	if err := svc.Wait(shutdownCtx); err != nil {
		slog.Warn("jobs still in flight at shutdown", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openStore returns the configured job store and a func releasing it.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	if cfg.Driver == "memory" {
		slog.Warn("using in-memory job store, jobs are lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.URL, cfg.MigrationsDir); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	return store.NewPostgresStore(pool), pool.Close, nil
}

// openCache connects to Redis when configured and falls back to a no-op cache.
func openCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, func(), error) {
	if cfg.URL == "" {
		slog.Info("redis not configured, status cache and rate limiting disabled")
		return cache.Noop{}, func() {}, nil
	}

	redisCache, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	return redisCache, func() { redisCache.Close() }, nil
}

func healthChecks(s store.Store, c cache.Cache, cl models.Classifier) map[string]handler.Check {
	return map[string]handler.Check{
		"database": s.Ping,
		"cache":    c.Ping,
		"classifier": func(context.Context) error {
			if !cl.Ready() {
				return classify.ErrModelNotReady
			}
			return nil
		},
	}
}
