package audit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// TopActorsLimit is the number of actors reported by Stats
const TopActorsLimit = 10

// StatsFilter scopes a statistics request
type StatsFilter struct {
	ActorID string
	From    *int64
	To      *int64
}

// Criteria returns the base predicate shared by every statistics read
func (f StatsFilter) Criteria() Criteria {
	return Criteria{ActorID: f.ActorID, From: f.From, To: f.To}
}

// CacheKey identifies the filter in a StatsCache
func (f StatsFilter) CacheKey() string {
	return fmt.Sprintf("actor=%s|from=%s|to=%s", f.ActorID, boundKey(f.From), boundKey(f.To))
}

func boundKey(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// Stats is an aggregate summary of audit activity
type Stats struct {
	Total      int64        `json:"total"`
	ByAction   []Bucket     `json:"byAction"`
	ByEntity   []Bucket     `json:"byEntity"`
	BySeverity []Bucket     `json:"bySeverity"`
	TopActors  []ActorCount `json:"topActors"`
}

// Stats summarizes the records matching the filter. Buckets only contain
// keys that occur at least once.
func (s *Service) Stats(ctx context.Context, f StatsFilter) (stats *Stats, err error) {
	started := time.Now()
	defer func() { s.metrics.observeQuery("stats", started, err) }()

	if s.cache == nil {
		return s.aggregate(ctx, f)
	}
	return s.cache.GetOrLoad(ctx, f.CacheKey(), func(ctx context.Context) (*Stats, error) {
		return s.aggregate(ctx, f)
	})
}

// aggregate runs the five reads concurrently over the same criteria
func (s *Service) aggregate(ctx context.Context, f StatsFilter) (*Stats, error) {
	c := f.Criteria()
	stats := &Stats{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		total, err := s.store.Count(gctx, c)
		if err != nil {
			return storageError("count", err)
		}
		stats.Total = total
		return nil
	})

	countBy := func(dim Dimension, dst *[]Bucket) func() error {
		return func() error {
			buckets, err := s.store.CountBy(gctx, c, dim)
			if err != nil {
				return storageError("count by "+string(dim), err)
			}
			SortBuckets(buckets)
			if buckets == nil {
				buckets = []Bucket{}
			}
			*dst = buckets
			return nil
		}
	}
	g.Go(countBy(DimensionAction, &stats.ByAction))
	g.Go(countBy(DimensionEntity, &stats.ByEntity))
	g.Go(countBy(DimensionSeverity, &stats.BySeverity))

	g.Go(func() error {
		actors, err := s.store.TopActors(gctx, c, TopActorsLimit)
		if err != nil {
			return storageError("top actors", err)
		}
		SortActorCounts(actors)
		if len(actors) > TopActorsLimit {
			actors = actors[:TopActorsLimit]
		}
		if actors == nil {
			actors = []ActorCount{}
		}
		stats.TopActors = actors
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
