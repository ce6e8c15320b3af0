package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
	"github.com/platinummonkey/fieldaudit/pkg/bootstrap"
	"github.com/platinummonkey/fieldaudit/pkg/config"
	"github.com/platinummonkey/fieldaudit/pkg/httputil"
	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

const maxRequestBytes = 1 << 20

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	logger.WithField("version", version).Info("Starting fieldaudit server")

	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	storage, err := bootstrap.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to open audit storage")
		os.Exit(1)
	}
	logger.WithField("driver", cfg.Storage.Driver).Info("Audit storage ready")

	redisClient, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var (
		processMetrics *observability.Metrics
		auditMetrics   *audit.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		processMetrics = observability.NewMetrics(registry)
		auditMetrics = audit.NewMetrics(registry)
	}

	diagnostics := bootstrap.NewDiagnosticLogger(cfg.Observability.Level())
	recorder := audit.NewRecorder(storage.Store, bootstrap.RecorderConfig(cfg.Audit), diagnostics, auditMetrics)
	service := audit.NewService(storage.Store, audit.ServiceConfig{
		Cache:   bootstrap.NewStatsCache(cfg.Cache, redisClient, processMetrics, logger),
		Metrics: auditMetrics,
	})
	handlers := audit.NewHandlers(service, recorder, audit.HandlersConfig{
		DefaultRetentionDays: cfg.Retention.DefaultDays,
		Logger:               logger,
	})

	router := mux.NewRouter()
	if processMetrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(processMetrics))
	}
	if otelProviders != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			logger.WithError(err).Error("Failed to create OpenTelemetry metrics")
			os.Exit(1)
		}
		router.Use(observability.OTelHTTPMiddleware(otelMetrics))
	}
	api := router.PathPrefix(cfg.Server.RoutePrefix).Subrouter()
	api.Use(audit.NewMiddleware(bootstrap.ActorResolver(cfg.Audit)).Handler)
	handlers.RegisterRoutes(api)

	chain := httputil.Chain(
		httputil.RecoveryMiddleware(logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.CORSMiddleware(cfg.Server.CORSOrigins),
		httputil.MaxBytesMiddleware(maxRequestBytes),
	)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(chain(router), "fieldaudit"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Passing a nil *redis.Client would make the checker probe a nil client
	var checker *observability.HealthChecker
	if redisClient != nil {
		checker = observability.NewHealthChecker(storage.DB, redisClient, version)
	} else {
		checker = observability.NewHealthChecker(storage.DB, nil, version)
	}
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc("storage", func(context.Context) error {
		return storage.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	if storage.DB != nil && processMetrics != nil {
		go reportDBStats(storage, processMetrics, logger)
	}

	if path := os.Getenv(config.ConfigFileEnv); path != "" {
		go watchConfig(path, logger, diagnostics)
	}

	go serve(apiServer, logger, "API")
	go serve(healthServer, logger, "health")

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
	logger.Info("fieldaudit server stopped")
}

func serve(server *http.Server, logger *observability.Logger, name string) {
	defer observability.RecoverPanic(logger, name+" server")

	logger.WithField("addr", server.Addr).Infof("Starting %s server", name)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Errorf("%s server failed", name)
		os.Exit(1)
	}
}

func reportDBStats(storage *bootstrap.Storage, metrics *observability.Metrics, logger *observability.Logger) {
	defer observability.RecoverPanic(logger, "db stats reporter")

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		metrics.RecordDBStats(storage.DB.Stats())
	}
}
