package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

// sweeperActor is recorded as the actor of scheduled purges
var sweeperActor = audit.Actor{
	ID:    "system:retention-sweeper",
	Email: "retention-sweeper@fieldaudit.local",
	Name:  "Retention Sweeper",
}

type sweeper struct {
	service  *audit.Service
	recorder *audit.Recorder
	days     int
	timeout  time.Duration
	log      logrus.FieldLogger

	// metrics is nil when OpenTelemetry is disabled
	metrics *observability.OTelMetrics
}

// run purges records older than the retention horizon and audits the purge
func (s *sweeper) run(ctx context.Context) (int64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	log := s.log.WithField("days_to_keep", s.days)
	log.Info("Starting retention sweep")

	deleted, err := s.service.PurgeOlderThan(ctx, s.days)
	elapsed := time.Since(started)
	if s.metrics != nil {
		s.metrics.RecordPurge(ctx, s.days, deleted, elapsed, err)
	}
	if err != nil {
		log.WithError(err).Error("Retention sweep failed")
		return 0, err
	}

	message := fmt.Sprintf("Deleted %d audit logs older than %d days", deleted, s.days)
	s.recorder.Record(ctx, audit.Entry{
		Actor:       sweeperActor,
		Action:      audit.ActionDelete,
		EntityType:  audit.EntityAuditLogs,
		Description: message,
		Severity:    audit.SeverityWarning,
	})

	log.WithFields(logrus.Fields{
		"deleted":  deleted,
		"duration": elapsed.String(),
	}).Info("Retention sweep completed")
	return deleted, nil
}
