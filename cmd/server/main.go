package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logsvc/internal/anomaly"
	"logsvc/internal/auth"
	"logsvc/internal/embedding"
	"logsvc/internal/httpapi"
	"logsvc/internal/ingest"
	"logsvc/internal/query"
	"logsvc/internal/retention"
	"logsvc/internal/search"
	"logsvc/internal/store"
	"logsvc/pkg/config"
	"logsvc/pkg/database"
	"logsvc/pkg/logger"
	"logsvc/pkg/metrics"
	"logsvc/pkg/ratelimit"
	"logsvc/pkg/telemetry"
)

const (
	embeddingInterval = 30 * time.Second
	retentionInterval = time.Hour
	shutdownTimeout   = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logCfg := logger.Config{Level: cfg.LogLevel, Format: "json", Output: "stdout"}
	if cfg.LogFile != "" {
		logCfg.Output = "file"
		logCfg.FilePath = cfg.LogFile
	}
	logger.Init(logCfg)

	logger.Log.Info("starting logsvc", "http_port", cfg.HTTPPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: "logsvc",
		Version:     "dev",
		Environment: "production",
		SampleRate:  1.0,
	})
	if err != nil {
		logger.Log.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("tracing shutdown error", "error", err)
		}
	}()

	db, err := database.NewPostgresDB(ctx, cfg)
	if err != nil {
		logger.Log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db.Pool(), store.Migrations, store.MigrationsDir); err != nil {
		logger.Log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	st := store.New(db)

	embedClient := embedding.NewClient(cfg.ArtemisURL, cfg.ArtemisAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	pipeline := embedding.New(st, embedClient, cfg.EmbeddingModel, cfg.EmbeddingDailyCap, embeddingInterval)
	pipeline.Start()
	defer pipeline.Stop()

	cleanup := retention.New(st, cfg.LogRetentionDays, retentionInterval)
	cleanup.Start()
	defer cleanup.Stop()

	limiter := ratelimit.New(&ratelimit.Config{
		Requests: cfg.RateLimitRequests,
		Window:   cfg.RateLimitWindow(),
	})
	defer limiter.Close()

	router := httpapi.NewRouter(httpapi.Deps{
		Ingest:          ingest.New(st),
		Query:           query.New(st),
		Search:          search.New(st, embedClient),
		Anomaly:         anomaly.New(st),
		Auth:            auth.New(st, cfg.MasterAPIKey),
		Pipeline:        pipeline,
		Retention:       cleanup,
		Limiter:         limiter,
		Metrics:         metrics.Get(),
		MaxRequestBytes: cfg.MaxRequestBytes,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("server shutdown error", "error", err)
	}

	logger.Log.Info("server stopped")
}
