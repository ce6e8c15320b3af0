// Package statscache caches audit statistics in a process-local LRU with an
// optional shared Redis level behind it. Cached statistics may lag the
// store by up to the configured TTL.
package statscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

const (
	levelL1 = "l1"
	levelL2 = "l2"
)

// Config configures a Cache
type Config struct {
	// Size is the maximum number of L1 entries
	Size int

	// TTL bounds how stale a cached result may be, at both levels
	TTL time.Duration

	// KeyPrefix namespaces L2 keys. Defaults to "fieldaudit:stats:".
	KeyPrefix string
}

// DefaultConfig returns a small cache with a 30 second TTL
func DefaultConfig() Config {
	return Config{
		Size:      256,
		TTL:       30 * time.Second,
		KeyPrefix: "fieldaudit:stats:",
	}
}

// Cache implements audit.StatsCache
type Cache struct {
	local   *lru.LRU[string, *audit.Stats]
	redis   redis.UniversalClient
	ttl     time.Duration
	prefix  string
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *observability.Logger
}

// New creates a cache. client and metrics may be nil.
func New(cfg Config, client redis.UniversalClient, metrics *observability.Metrics, logger *observability.Logger) *Cache {
	defaults := DefaultConfig()
	if cfg.Size <= 0 {
		cfg.Size = defaults.Size
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}

	return &Cache{
		local:   lru.NewLRU[string, *audit.Stats](cfg.Size, nil, cfg.TTL),
		redis:   client,
		ttl:     cfg.TTL,
		prefix:  cfg.KeyPrefix,
		metrics: metrics,
		logger:  logger,
	}
}

// GetOrLoad returns cached stats for key, consulting L1 then L2. Concurrent
// misses for the same key share one load.
func (c *Cache) GetOrLoad(ctx context.Context, key string, load func(context.Context) (*audit.Stats, error)) (*audit.Stats, error) {
	if stats, ok := c.local.Get(key); ok {
		c.hit(levelL1)
		return cloneStats(stats), nil
	}
	c.miss(levelL1)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if stats, ok := c.getRemote(ctx, key); ok {
			c.local.Add(key, stats)
			return stats, nil
		}

		stats, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.local.Add(key, stats)
		c.setRemote(ctx, key, stats)
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneStats(v.(*audit.Stats)), nil
}

// Invalidate purges L1 and deletes every L2 key under the prefix
func (c *Cache) Invalidate(ctx context.Context) error {
	c.local.Purge()
	if c.redis == nil {
		return nil
	}

	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// Len returns the number of L1 entries
func (c *Cache) Len() int {
	return c.local.Len()
}

func (c *Cache) getRemote(ctx context.Context, key string) (*audit.Stats, bool) {
	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn(err, "stats cache read failed")
		}
		c.miss(levelL2)
		return nil, false
	}

	var stats audit.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		// corrupt entries are dropped
		c.redis.Del(ctx, c.prefix+key)
		c.miss(levelL2)
		return nil, false
	}
	c.hit(levelL2)
	return &stats, true
}

func (c *Cache) setRemote(ctx context.Context, key string, stats *audit.Stats) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.warn(err, "stats cache write failed")
	}
}

func (c *Cache) hit(level string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(level).Inc()
	}
}

func (c *Cache) miss(level string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(level).Inc()
	}
}

func (c *Cache) warn(err error, msg string) {
	if c.logger != nil {
		c.logger.WithError(err).Warn(msg)
	}
}

func cloneStats(s *audit.Stats) *audit.Stats {
	out := *s
	out.ByAction = append([]audit.Bucket{}, s.ByAction...)
	out.ByEntity = append([]audit.Bucket{}, s.ByEntity...)
	out.BySeverity = append([]audit.Bucket{}, s.BySeverity...)
	out.TopActors = append([]audit.ActorCount{}, s.TopActors...)
	return &out
}

var _ audit.StatsCache = (*Cache)(nil)
