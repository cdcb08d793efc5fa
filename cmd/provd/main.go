// provd server — provides the detection HTTP API, runs the collection
// scheduler, and delivers webhook notifications.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/provenance-labs/provd/pkg/api"
	"github.com/provenance-labs/provd/pkg/audit"
	"github.com/provenance-labs/provd/pkg/cleanup"
	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/consensus"
	"github.com/provenance-labs/provd/pkg/database"
	"github.com/provenance-labs/provd/pkg/detector"
	"github.com/provenance-labs/provd/pkg/intel"
	"github.com/provenance-labs/provd/pkg/ratelimit"
	"github.com/provenance-labs/provd/pkg/scheduler"
	"github.com/provenance-labs/provd/pkg/services"
	"github.com/provenance-labs/provd/pkg/store"
	"github.com/provenance-labs/provd/pkg/version"
	"github.com/provenance-labs/provd/pkg/webhook"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting provd",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Rate-limit backend: Redis when configured, otherwise per-process
	// in-memory counters.
	var backend ratelimit.Backend
	var cacheProbe interface{ Ping(ctx context.Context) error }
	if cfg.CacheURL != "" {
		cache, err := ratelimit.NewRedisBackend(ctx, cfg.CacheURL)
		if err != nil {
			slog.Error("Failed to connect to cache", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				slog.Error("Error closing cache client", "error", err)
			}
		}()
		backend = cache
		cacheProbe = cache
		slog.Info("Connected to Redis cache")
	} else {
		backend = ratelimit.NewMemoryBackend()
		slog.Info("Using in-memory rate-limit counters")
	}
	guard := ratelimit.NewGuard(cfg, backend)

	// 4. Core services
	auditSvc := audit.NewService(dbClient.DB(), cfg.Audit)
	analysisStore := store.NewAnalysisStore(dbClient.DB(), cfg.Store)

	hooks, err := webhook.NewDispatcher(cfg, auditSvc)
	if err != nil {
		slog.Error("Failed to initialize webhook dispatcher", "error", err)
		os.Exit(1)
	}

	engine := consensus.NewEngine(detector.New(cfg.Limits), cfg.Consensus)
	detection := services.NewDetectionService(engine, analysisStore, auditSvc, hooks, cfg.Limits)
	collector := intel.NewCollector(cfg, detection.ScoreText, analysisStore, hooks)

	sched, err := scheduler.New(cfg,
		func(ctx context.Context, job config.JobConfig) (int, error) {
			_, requests, err := collector.Run(ctx, job)
			return requests, err
		},
		collector.EstimateJob,
		auditSvc)
	if err != nil {
		slog.Error("Failed to initialize scheduler", "error", err)
		os.Exit(1)
	}
	slog.Info("Services initialized")

	// 5. Background loops
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	go hooks.Run(runCtx)
	sched.Start(runCtx)

	retention := cleanup.NewService(cfg.Retention, analysisStore, auditSvc)
	retention.Start(runCtx)

	// 6. HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, dbClient, detection, analysisStore, auditSvc,
		guard, sched, collector, cacheProbe)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("provd started successfully",
		"scheduled_jobs", len(cfg.Scheduler.Jobs),
		"webhook_targets", len(cfg.Webhook.URLs))

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: stop intake first, then wait for in-flight
	// collection runs, then flush what the webhook queue still holds.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	schedDone := make(chan struct{})
	go func() {
		sched.Stop()
		close(schedDone)
	}()
	select {
	case <-schedDone:
		slog.Info("Scheduler stopped gracefully")
	case <-time.After(cfg.Server.ShutdownTimeout):
		slog.Warn("Scheduler shutdown timeout exceeded, in-flight runs abandoned")
	}

	retention.Stop()
	cancelRun()

	// One final drain; anything still pending survives in the queue file.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Webhook.Timeout)
	hooks.Drain(drainCtx)
	drainCancel()
	if n := hooks.Pending(); n > 0 {
		slog.Info("Webhook deliveries left queued for next start", "pending", n)
	}

	slog.Info("Shutdown complete")
}
