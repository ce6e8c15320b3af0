// Package bootstrap assembles audit components from configuration. Both
// binaries share it so the server and the sweeper open storage the same way.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
	"github.com/platinummonkey/fieldaudit/pkg/audit/memory"
	"github.com/platinummonkey/fieldaudit/pkg/audit/sqlstore"
	"github.com/platinummonkey/fieldaudit/pkg/audit/statscache"
	"github.com/platinummonkey/fieldaudit/pkg/config"
	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

// Storage is an opened audit store
type Storage struct {
	Store audit.Store

	// DB is nil for the memory driver
	DB *sql.DB

	closer func() error
}

// Close releases the underlying connection, if any
func (s *Storage) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// OpenStorage opens the store selected by cfg.Driver
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	switch cfg.Driver {
	case "", "memory":
		return &Storage{Store: memory.New()}, nil
	case "postgres", "sqlite":
		if cfg.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
			defer cancel()
		}
		store, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver:          cfg.Driver,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Driver, err)
		}
		return &Storage{Store: store, DB: store.DB(), closer: store.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// OpenRedis connects to Redis, returning a nil client when no URL is configured
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	return statscache.NewRedisClient(ctx, statscache.RedisConfig{
		URL:        cfg.URL,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: cfg.MaxRetries,
		PoolSize:   cfg.PoolSize,
	})
}

// NewStatsCache returns the configured stats cache, or nil when caching is
// disabled. client may be nil for a process-local cache.
func NewStatsCache(cfg config.CacheConfig, client *redis.Client, metrics *observability.Metrics, logger *observability.Logger) audit.StatsCache {
	if !cfg.Enabled {
		return nil
	}
	cacheCfg := statscache.DefaultConfig()
	if cfg.Size > 0 {
		cacheCfg.Size = cfg.Size
	}
	if cfg.TTL > 0 {
		cacheCfg.TTL = cfg.TTL
	}

	// A nil *redis.Client must not become a non-nil interface
	var remote redis.UniversalClient
	if client != nil {
		remote = client
	}
	return statscache.New(cacheCfg, remote, metrics, logger)
}

// RecorderConfig maps the audit section onto the recorder settings
func RecorderConfig(cfg config.AuditConfig) audit.RecorderConfig {
	return audit.RecorderConfig{
		WriteTimeout:     cfg.WriteTimeout,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	}
}

// ActorResolver builds the header resolver from the audit section
func ActorResolver(cfg config.AuditConfig) audit.HeaderActorResolver {
	resolver := audit.DefaultHeaderActorResolver()
	if cfg.ActorIDHeader != "" {
		resolver.IDHeader = cfg.ActorIDHeader
	}
	if cfg.ActorEmailHeader != "" {
		resolver.EmailHeader = cfg.ActorEmailHeader
	}
	if cfg.ActorNameHeader != "" {
		resolver.NameHeader = cfg.ActorNameHeader
	}
	return resolver
}

// NewDiagnosticLogger returns the JSON logrus logger the recorder reports
// write failures through
func NewDiagnosticLogger(level observability.LogLevel) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrusLevel(level))
	return logger
}

func logrusLevel(level observability.LogLevel) logrus.Level {
	switch level {
	case observability.DebugLevel:
		return logrus.DebugLevel
	case observability.WarnLevel:
		return logrus.WarnLevel
	case observability.ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetDiagnosticLevel applies a reloaded log level to the recorder logger
func SetDiagnosticLevel(logger *logrus.Logger, level observability.LogLevel) {
	logger.SetLevel(logrusLevel(level))
}
