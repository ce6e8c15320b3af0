package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
	"github.com/platinummonkey/fieldaudit/pkg/bootstrap"
	"github.com/platinummonkey/fieldaudit/pkg/config"
	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

var (
	runOnce  = flag.Bool("run-once", false, "Run one sweep and exit")
	schedule = flag.String("schedule", "", "Cron schedule overriding FIELDAUDIT_RETENTION_SCHEDULE")
	days     = flag.Int("days", 0, "Days to keep, overriding FIELDAUDIT_RETENTION_DAYS")
	timeout  = flag.Duration("timeout", 10*time.Minute, "Upper bound for a single sweep")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *schedule != "" {
		cfg.Retention.Schedule = *schedule
	}
	if *days != 0 {
		cfg.Retention.DefaultDays = *days
	}

	level := cfg.Observability.Level()
	logger := bootstrap.NewDiagnosticLogger(level)
	obsLogger := observability.NewLogger(level, os.Stderr)

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName + "-sweeper",
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, obsLogger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}
	defer observability.ShutdownOTel(context.Background(), otelProviders, obsLogger)

	var purgeMetrics *observability.OTelMetrics
	if otelProviders != nil {
		purgeMetrics, err = observability.NewOTelMetrics()
		if err != nil {
			logger.WithError(err).Fatal("Failed to create OpenTelemetry metrics")
		}
	}

	storage, err := bootstrap.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open audit storage")
	}
	defer storage.Close()

	redisClient, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// The cache is only used here so a purge invalidates the server's shared L2 entries
	service := audit.NewService(storage.Store, audit.ServiceConfig{
		Cache: bootstrap.NewStatsCache(cfg.Cache, redisClient, nil, obsLogger),
	})
	recorder := audit.NewRecorder(storage.Store, bootstrap.RecorderConfig(cfg.Audit), logger, nil)

	job := &sweeper{
		service:  service,
		recorder: recorder,
		days:     cfg.Retention.DefaultDays,
		timeout:  *timeout,
		log:      logger,
		metrics:  purgeMetrics,
	}

	if *runOnce {
		if _, err := job.run(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.Retention.Schedule, func() {
		defer observability.RecoverPanic(obsLogger, "retention sweep")
		job.run(context.Background())
	})
	if err != nil {
		logger.WithError(err).WithField("schedule", cfg.Retention.Schedule).Fatal("Failed to schedule retention sweep")
	}

	c.Start()
	logger.WithField("schedule", cfg.Retention.Schedule).
		WithField("days_to_keep", cfg.Retention.DefaultDays).
		Info("fieldaudit retention sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	stopCtx := c.Stop()
	<-stopCtx.Done()

	logger.Info("Sweeper stopped")
}
