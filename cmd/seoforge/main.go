// SEOForge server — provides the HTTP API, manages queue workers, and runs
// the keyword research pipeline.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/seoforge/seoforge/pkg/api"
	"github.com/seoforge/seoforge/pkg/config"
	"github.com/seoforge/seoforge/pkg/embedding"
	"github.com/seoforge/seoforge/pkg/events"
	"github.com/seoforge/seoforge/pkg/llm"
	"github.com/seoforge/seoforge/pkg/pipeline"
	"github.com/seoforge/seoforge/pkg/provider"
	"github.com/seoforge/seoforge/pkg/queue"
	"github.com/seoforge/seoforge/pkg/services"
	"github.com/seoforge/seoforge/pkg/store"
	"github.com/seoforge/seoforge/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	var handler slog.Handler
	if getEnv("LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// newStore selects the backend from STORE_BACKEND: "postgres" or "memory"
// (default). The memory backend is for local development and demos.
func newStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	if getEnv("STORE_BACKEND", "memory") != "postgres" {
		logger.Info("using in-memory store")
		return store.NewMemoryStore(), nil
	}
	pgCfg, err := store.LoadPostgresConfigFromEnv()
	if err != nil {
		return nil, err
	}
	logger.Info("connecting to PostgreSQL", "host", pgCfg.Host, "database", pgCfg.Database)
	return store.NewPostgresStore(ctx, pgCfg)
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	logger := setupLogger()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := resolvePodID()

	logger.Info("Starting SEOForge",
		"version", version.Full(),
		"http_port", httpPort,
		"pod_id", podID,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(*configDir)
	if err != nil {
		logger.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Persistence
	st, err := newStore(ctx, logger)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Error closing store", "error", err)
		}
	}()

	files, err := store.NewLocalFileStore(getEnv("EXPORT_DIR", "./exports"))
	if err != nil {
		logger.Error("Failed to initialize export directory", "error", err)
		os.Exit(1)
	}

	// 3. One-time startup orphan recovery
	if err := queue.RecoverStartupOrphans(ctx, st, cfg.Queue.OrphanThreshold, logger); err != nil {
		logger.Error("Failed to recover startup orphans", "error", err)
		// Non-fatal — the background scan retries
	}

	// 4. Providers
	registry := provider.NewRegistry(cfg.Providers, logger)
	monitor := provider.NewMonitor(registry, cfg.Providers.HealthCheckInterval, logger)
	monitor.Start(ctx)
	defer monitor.Stop()

	var llmClient llm.Client
	var embedProvider embedding.Provider
	if cfg.Providers.MockOnly {
		logger.Info("Mock-only mode: LLM and embedding calls are synthesized")
		llmClient = llm.NewMockClient()
		embedProvider = &embedding.MockProvider{}
	} else {
		llmClient = llm.NewHTTPClient(cfg.Providers.LLM, logger)
		embedProvider = embedding.NewHTTPProvider(cfg.Providers.Embedding, logger)
	}

	embedCfg := cfg.Providers.Embedding
	embeddings, err := embedding.NewCache(embedProvider, st.Embeddings(),
		embedCfg.CacheCapacity, embedCfg.BatchSize, logger)
	if err != nil {
		logger.Error("Failed to initialize embedding cache", "error", err)
		os.Exit(1)
	}

	// 5. Events and pipeline
	bus := events.NewBus()
	defer bus.Close()

	orchestrator := pipeline.NewOrchestrator(st, files, llmClient, registry,
		embeddings, bus, cfg.Pipeline, logger)

	// 6. Worker pool (before the HTTP server so claims begin immediately)
	workerPool := queue.NewWorkerPool(podID, st, cfg.Queue, orchestrator, logger)
	if err := workerPool.Start(ctx); err != nil {
		logger.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 7. HTTP server
	runService := services.NewRunService(st, cfg.DefaultSettings.Settings, workerPool, logger)
	httpServer := api.NewServer(runService, workerPool, monitor, bus, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(":" + httpPort); err != nil {
			errCh <- err
		}
	}()

	logger.Info("SEOForge started",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: drain workers, then the HTTP server.
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded — unfinished runs will be orphan-recovered")
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
}
