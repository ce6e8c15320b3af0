package statscache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func countingLoader(calls *int32, total int64) func(context.Context) (*audit.Stats, error) {
	return func(context.Context) (*audit.Stats, error) {
		atomic.AddInt32(calls, 1)
		return &audit.Stats{
			Total:    total,
			ByAction: []audit.Bucket{{Key: "CREATE", Count: total}},
		}, nil
	}
}

func TestGetOrLoadL1(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache := New(Config{Size: 8, TTL: time.Minute}, nil, metrics, nil)

	var calls int32
	first, err := cache.GetOrLoad(context.Background(), "k", countingLoader(&calls, 5))
	require.NoError(t, err)
	second, err := cache.GetOrLoad(context.Background(), "k", countingLoader(&calls, 9))
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls)
	assert.Equal(t, int64(5), second.Total)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues(levelL1)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues(levelL1)))

	// callers get independent copies
	first.ByAction[0].Count = 100
	third, err := cache.GetOrLoad(context.Background(), "k", countingLoader(&calls, 9))
	require.NoError(t, err)
	assert.Equal(t, int64(5), third.ByAction[0].Count)
}

func TestGetOrLoadError(t *testing.T) {
	cache := New(DefaultConfig(), nil, nil, nil)
	boom := errors.New("store down")

	_, err := cache.GetOrLoad(context.Background(), "k", func(context.Context) (*audit.Stats, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len(), "failures are not cached")
}

func TestGetOrLoadCollapsesConcurrentMisses(t *testing.T) {
	cache := New(DefaultConfig(), nil, nil, nil)

	var calls int32
	release := make(chan struct{})
	load := func(context.Context) (*audit.Stats, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &audit.Stats{Total: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := cache.GetOrLoad(context.Background(), "k", load)
			assert.NoError(t, err)
			assert.Equal(t, int64(1), stats.Total)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestRedisLevel(t *testing.T) {
	client, mr := setupRedis(t)

	writer := New(Config{TTL: time.Minute}, client, nil, nil)
	var calls int32
	_, err := writer.GetOrLoad(context.Background(), "actor=-|from=-|to=-", countingLoader(&calls, 7))
	require.NoError(t, err)
	assert.True(t, mr.Exists("fieldaudit:stats:actor=-|from=-|to=-"))
	assert.Equal(t, time.Minute, mr.TTL("fieldaudit:stats:actor=-|from=-|to=-"))

	// a second process sees the shared value without loading
	reader := New(Config{TTL: time.Minute}, client, nil, nil)
	stats, err := reader.GetOrLoad(context.Background(), "actor=-|from=-|to=-", countingLoader(&calls, 99))
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.Total)
	assert.Equal(t, int32(1), calls)
}

func TestRedisCorruptEntryIsDropped(t *testing.T) {
	client, mr := setupRedis(t)
	require.NoError(t, mr.Set("fieldaudit:stats:k", "{not json"))

	cache := New(DefaultConfig(), client, nil, nil)
	var calls int32
	stats, err := cache.GetOrLoad(context.Background(), "k", countingLoader(&calls, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int32(1), calls)

	value, err := mr.Get("fieldaudit:stats:k")
	require.NoError(t, err)
	assert.Contains(t, value, `"total":3`)
}

func TestInvalidate(t *testing.T) {
	client, mr := setupRedis(t)
	require.NoError(t, mr.Set("unrelated", "keep"))

	cache := New(DefaultConfig(), client, nil, nil)
	var calls int32
	for _, key := range []string{"a", "b"} {
		_, err := cache.GetOrLoad(context.Background(), key, countingLoader(&calls, 1))
		require.NoError(t, err)
	}
	require.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Invalidate(context.Background()))
	assert.Equal(t, 0, cache.Len())
	assert.False(t, mr.Exists("fieldaudit:stats:a"))
	assert.False(t, mr.Exists("fieldaudit:stats:b"))
	assert.True(t, mr.Exists("unrelated"))

	_, err := cache.GetOrLoad(context.Background(), "a", countingLoader(&calls, 1))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls)
}

func TestInvalidateWithoutRedis(t *testing.T) {
	cache := New(DefaultConfig(), nil, nil, nil)
	assert.NoError(t, cache.Invalidate(context.Background()))
}

func TestNewRedisClientBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{URL: "://nope"})
	assert.ErrorContains(t, err, "invalid redis URL")
}
