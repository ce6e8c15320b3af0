package audit

import (
	"context"
	"time"
)

const (
	// MinRetentionDays is the shortest retention horizon a purge accepts
	MinRetentionDays = 7

	// DefaultRetentionDays is used when a purge request names no horizon
	DefaultRetentionDays = 90

	secondsPerDay = 24 * 60 * 60
)

// PurgeOlderThan deletes every record that occurred at or before
// now - daysToKeep days and returns how many were removed. A horizon
// shorter than MinRetentionDays is rejected, never clamped.
func (s *Service) PurgeOlderThan(ctx context.Context, daysToKeep int) (deleted int64, err error) {
	if daysToKeep < MinRetentionDays {
		return 0, ErrRetentionTooShort
	}

	started := time.Now()
	defer func() { s.metrics.observeQuery("purge", started, err) }()

	cutoff := s.now().Unix() - int64(daysToKeep)*secondsPerDay
	deleted, err = s.store.Delete(ctx, Criteria{To: &cutoff})
	if err != nil {
		return 0, storageError("delete", err)
	}

	s.metrics.addPurged(deleted)

	if s.cache != nil && deleted > 0 {
		// L1 is always cleared; an L2 entry that survives expires with its TTL
		_ = s.cache.Invalidate(ctx)
	}

	return deleted, nil
}
