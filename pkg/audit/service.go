package audit

import (
	"context"
	"time"
)

// StatsCache is a read-through cache in front of Stats
type StatsCache interface {
	// GetOrLoad returns the cached value for key or computes it with load
	GetOrLoad(ctx context.Context, key string, load func(context.Context) (*Stats, error)) (*Stats, error)

	// Invalidate drops every cached value
	Invalidate(ctx context.Context) error
}

// ServiceConfig configures the read side of the audit engine
type ServiceConfig struct {
	// Now overrides the clock used by Recent and PurgeOlderThan
	Now func() time.Time

	// Cache is optional. Cached stats may be stale by up to the cache TTL.
	Cache StatsCache

	Metrics *Metrics
}

// Service implements querying, statistics and retention over a Store
type Service struct {
	store   Store
	now     func() time.Time
	cache   StatsCache
	metrics *Metrics
}

// NewService creates a new audit service
func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:   store,
		now:     cfg.Now,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
	}
}
