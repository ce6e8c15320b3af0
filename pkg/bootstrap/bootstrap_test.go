package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
	"github.com/platinummonkey/fieldaudit/pkg/audit/memory"
	"github.com/platinummonkey/fieldaudit/pkg/audit/sqlstore"
	"github.com/platinummonkey/fieldaudit/pkg/config"
	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

func TestOpenStorageMemory(t *testing.T) {
	storage, err := OpenStorage(context.Background(), config.StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, storage.Store)
	assert.Nil(t, storage.DB)
	assert.NoError(t, storage.Close())
}

func TestOpenStorageSQLite(t *testing.T) {
	cfg := config.StorageConfig{
		Driver:         "sqlite",
		DSN:            "file:" + filepath.Join(t.TempDir(), "audit.db"),
		MaxOpenConns:   1,
		ConnectTimeout: 5 * time.Second,
	}
	storage, err := OpenStorage(context.Background(), cfg)
	require.NoError(t, err)
	defer storage.Close()

	assert.IsType(t, &sqlstore.Store{}, storage.Store)
	require.NotNil(t, storage.DB)

	ctx := context.Background()
	_, err = storage.Store.Insert(ctx, &audit.Record{
		ActorEmail: "tech@field.io",
		Action:     audit.ActionLogin,
		EntityType: audit.EntityUsers,
		Severity:   audit.SeverityInfo,
		OccurredAt: 1700000000,
	})
	require.NoError(t, err)

	n, err := storage.Store.Count(ctx, audit.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpenStorageUnknownDriver(t *testing.T) {
	_, err := OpenStorage(context.Background(), config.StorageConfig{Driver: "mongo"})
	assert.EqualError(t, err, "unsupported storage driver: mongo")
}

func TestOpenRedis(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		client, err := OpenRedis(context.Background(), config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("miniredis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := OpenRedis(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		require.NotNil(t, client)
		defer client.Close()
	})
}

func TestNewStatsCache(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, nil)

	assert.Nil(t, NewStatsCache(config.CacheConfig{Enabled: false}, nil, nil, logger))

	cache := NewStatsCache(config.CacheConfig{Enabled: true, Size: 4, TTL: time.Minute}, nil, nil, logger)
	require.NotNil(t, cache)

	calls := 0
	load := func(context.Context) (*audit.Stats, error) {
		calls++
		return &audit.Stats{Total: 3}, nil
	}
	for i := 0; i < 2; i++ {
		stats, err := cache.GetOrLoad(context.Background(), "k", load)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.Total)
	}
	assert.Equal(t, 1, calls)
}

func TestActorResolver(t *testing.T) {
	resolver := ActorResolver(config.AuditConfig{ActorEmailHeader: "X-Forwarded-Email"})
	assert.Equal(t, "X-User-ID", resolver.IDHeader)
	assert.Equal(t, "X-Forwarded-Email", resolver.EmailHeader)
	assert.Equal(t, "X-User-Name", resolver.NameHeader)
}

func TestRecorderConfig(t *testing.T) {
	cfg := RecorderConfig(config.AuditConfig{
		WriteTimeout:     time.Second,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	})
	assert.Equal(t, time.Second, cfg.WriteTimeout)
	assert.Equal(t, uint32(3), cfg.BreakerThreshold)
	assert.Equal(t, time.Minute, cfg.BreakerCooldown)
}

func TestDiagnosticLogger(t *testing.T) {
	logger := NewDiagnosticLogger(observability.WarnLevel)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	SetDiagnosticLevel(logger, observability.DebugLevel)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}
