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
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"LeadPulse/internal/compose"
	"LeadPulse/internal/config"
	"LeadPulse/internal/credentials"
	"LeadPulse/internal/db"
	"LeadPulse/internal/metrics"
	"LeadPulse/internal/provider"
	"LeadPulse/internal/reply"
	"LeadPulse/internal/worker"
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
	// Providers
	// ------------------------------------------------
	credStore, err := credentials.NewFileStore(cfg.CredentialsFile)
	if err != nil {
		logger.Fatal("credential store init failed", zap.Error(err))
	}

	// Refresh flows live outside this service; expired credentials surface as
	// delivery failures until the file is updated.
	creds := credentials.NewManager(credStore, nil)

	registry := provider.NewRegistry(
		provider.NewSMTP("gmail", cfg.GmailSMTPHost, cfg.GmailSMTPPort, creds),
		provider.NewSMTP("outlook", cfg.OutlookSMTPHost, cfg.OutlookSMTPPort, creds),
		cfg.OrgDomain,
	)

	// ------------------------------------------------
	// Composer + Reply Detection
	// ------------------------------------------------
	composer, err := compose.NewTemplateComposer()
	if err != nil {
		logger.Fatal("composer init failed", zap.Error(err))
	}

	// Mailbox search needs provider API access this binary does not carry;
	// with detection disabled follow-ups run to completion.
	var checker reply.Checker = reply.Disabled{}

	// ------------------------------------------------
	// Timing Policy
	// ------------------------------------------------
	var policy worker.SendPolicy
	if cfg.IsProduction() {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.Fatal("invalid timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
		}
		policy = worker.DailyWindowPolicy{Hour: cfg.SendHour, Location: loc}
	} else {
		policy = worker.ElapsedOffsetPolicy{Window: cfg.ElapsedWindow}
	}

	// ------------------------------------------------
	// Rate Limiter
	// ------------------------------------------------
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)

	// ------------------------------------------------
	// Delivery Worker
	// ------------------------------------------------
	w := worker.New(store, registry, checker, composer, policy, limiter, logger, worker.Config{
		Interval:        cfg.PollInterval,
		SendTimeout:     cfg.SendTimeout,
		StaleClaimAfter: cfg.StaleClaimAfter,
		Workers:         cfg.WorkerCount,
	})

	w.Run(ctx)

	// ------------------------------------------------
	// Shutdown
	// ------------------------------------------------
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("worker shutdown complete")
}
