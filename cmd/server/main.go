package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"LeadPulse/internal/api"
	"LeadPulse/internal/config"
	"LeadPulse/internal/db"
	"LeadPulse/internal/metrics"
	"LeadPulse/internal/scheduler"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("schema setup failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Scheduler:      scheduler.New(store, logger),
		DefaultOffsets: cfg.FollowupOffsets,
		Log:            logger,
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /outreach", apiHandler.CreateOutreach)
	apiMux.HandleFunc("POST /outreach/import", apiHandler.ImportOutreach)

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiMux,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
