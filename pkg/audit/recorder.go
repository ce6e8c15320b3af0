package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/fieldaudit/pkg/contextkeys"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Entry is the input of a single audit recording
type Entry struct {
	// Actor falls back to the actor stored in the context when Email is empty
	Actor Actor

	Action     Action
	EntityType EntityType
	EntityID   string

	// Before and After are full entity states. When both are set and Changes
	// is nil the change set is derived with Diff. Only UPDATE records carry
	// a change set.
	Before  Snapshot
	After   Snapshot
	Changes ChangeSet

	Description string
	Severity    Severity

	// Request falls back to the request metadata stored in the context
	Request *RequestContext

	// OccurredAt defaults to the current time, in Unix seconds
	OccurredAt int64
}

// RecorderConfig configures the recorder write path
type RecorderConfig struct {
	// WriteTimeout bounds a single insert
	WriteTimeout time.Duration

	// BreakerThreshold is the number of consecutive failed inserts that opens the circuit
	BreakerThreshold uint32

	// BreakerCooldown is how long the circuit stays open before a trial insert
	BreakerCooldown time.Duration

	// Now overrides the clock
	Now func() time.Time
}

// DefaultRecorderConfig returns the default recorder configuration
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		WriteTimeout:     2 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// Recorder builds and persists one immutable record per action.
//
// Recording is best-effort: every failure is logged to the diagnostic logger
// and reported as ok=false, never returned as an error or raised as a panic.
// Failed writes are not retried. A nil *Recorder records nothing.
type Recorder struct {
	store   Store
	log     logrus.FieldLogger
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	now     func() time.Time
	metrics *Metrics
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store Store, cfg RecorderConfig, log logrus.FieldLogger, metrics *Metrics) *Recorder {
	defaults := DefaultRecorderConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = defaults.BreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaults.BreakerCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logrus.New()
	}

	threshold := cfg.BreakerThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "audit-recorder",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up says nothing about the health of the store
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("audit store circuit breaker changed state")
		},
	})

	return &Recorder{
		store:   store,
		log:     log,
		breaker: breaker,
		timeout: cfg.WriteTimeout,
		now:     cfg.Now,
		metrics: metrics,
	}
}

// Record persists one audit record. It reports ok=false when the record
// could not be written; the failure has already been logged.
func (r *Recorder) Record(ctx context.Context, entry Entry) (rec *Record, ok bool) {
	if r == nil {
		return nil, false
	}

	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.fail(ctx, entry, OutcomeFailed, fmt.Errorf("panic while recording: %v", p))
			rec, ok = nil, false
		}
	}()

	var err error
	rec, err = r.record(ctx, entry)
	if err != nil {
		r.fail(ctx, entry, classify(err), err)
		return nil, false
	}

	r.metrics.observeRecord(rec.Action, OutcomeRecorded, started)
	return rec, true
}

func (r *Recorder) record(ctx context.Context, entry Entry) (*Record, error) {
	rec, err := r.build(ctx, entry)
	if err != nil {
		return nil, err
	}

	// The insert outlives the caller's request; only WriteTimeout bounds it
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.store.Insert(writeCtx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit record: %w", err)
	}

	stored, _ := result.(*Record)
	if stored == nil {
		return nil, fmt.Errorf("store returned no record")
	}
	return stored, nil
}

// build validates an entry and turns it into a record ready for insert
func (r *Recorder) build(ctx context.Context, entry Entry) (*Record, error) {
	actor := entry.Actor
	if actor.Email == "" {
		if fromCtx, ok := ActorFromContext(ctx); ok {
			actor = fromCtx
		}
	}
	if actor.Email == "" {
		return nil, ErrMissingActorEmail
	}

	if !entry.Action.Valid() {
		return nil, invalidValue(ErrInvalidAction, string(entry.Action))
	}
	if !entry.EntityType.Valid() {
		return nil, invalidValue(ErrInvalidEntityType, string(entry.EntityType))
	}

	severity := entry.Severity
	if severity == "" {
		severity = SeverityInfo
	}
	if !severity.Valid() {
		return nil, invalidValue(ErrInvalidSeverity, string(severity))
	}

	rec := &Record{
		ActorID:     actor.ID,
		ActorEmail:  actor.Email,
		ActorName:   actor.Name,
		Action:      entry.Action,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Before:      cloneSnapshot(entry.Before),
		After:       cloneSnapshot(entry.After),
		Description: entry.Description,
		Severity:    severity,
		OccurredAt:  entry.OccurredAt,
	}

	if entry.Action == ActionUpdate {
		switch {
		case entry.Changes != nil:
			rec.Changes = (&Record{Changes: entry.Changes}).Clone().Changes
		case entry.Before != nil && entry.After != nil:
			rec.Changes = Diff(entry.Before, entry.After)
		}
	}

	if entry.Request != nil && !entry.Request.IsZero() {
		rc := *entry.Request
		rec.RequestContext = &rc
	} else if rc, ok := RequestContextFromContext(ctx); ok && !rc.IsZero() {
		rec.RequestContext = &rc
	}

	if rec.OccurredAt == 0 {
		rec.OccurredAt = r.now().Unix()
	}

	return rec, nil
}

// invalidActionLabel replaces unknown actions in metric labels to keep cardinality bounded
const invalidActionLabel Action = "invalid"

func (r *Recorder) fail(ctx context.Context, entry Entry, outcome string, err error) {
	label := entry.Action
	if !label.Valid() {
		label = invalidActionLabel
	}
	r.metrics.observeRecord(label, outcome, time.Time{})

	fields := logrus.Fields{
		"action":  string(entry.Action),
		"entity":  string(entry.EntityType),
		"outcome": outcome,
	}
	if entry.EntityID != "" {
		fields["entity_id"] = entry.EntityID
	}
	if entry.Actor.Email != "" {
		fields["actor_email"] = entry.Actor.Email
	}
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	r.log.WithFields(fields).WithError(err).Error("failed to record audit event")
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAction),
		errors.Is(err, ErrInvalidEntityType),
		errors.Is(err, ErrInvalidSeverity),
		errors.Is(err, ErrMissingActorEmail):
		return OutcomeInvalid
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return OutcomeCircuitOpen
	}
	return OutcomeFailed
}

// LogCreate records the creation of a test sheet
func (r *Recorder) LogCreate(ctx context.Context, sheetID string, after Snapshot) (*Record, bool) {
	return r.Record(ctx, Entry{
		Action:      ActionCreate,
		EntityType:  EntityTestSheets,
		EntityID:    sheetID,
		After:       after,
		Description: fmt.Sprintf("Created test sheet %s", sheetID),
	})
}

// LogUpdate records an update of a test sheet with a derived change set
func (r *Recorder) LogUpdate(ctx context.Context, sheetID string, before, after Snapshot) (*Record, bool) {
	return r.Record(ctx, Entry{
		Action:      ActionUpdate,
		EntityType:  EntityTestSheets,
		EntityID:    sheetID,
		Before:      before,
		After:       after,
		Description: fmt.Sprintf("Updated test sheet %s", sheetID),
	})
}

// LogDelete records the deletion of a test sheet
func (r *Recorder) LogDelete(ctx context.Context, sheetID string, before Snapshot) (*Record, bool) {
	return r.Record(ctx, Entry{
		Action:      ActionDelete,
		EntityType:  EntityTestSheets,
		EntityID:    sheetID,
		Before:      before,
		Description: fmt.Sprintf("Deleted test sheet %s", sheetID),
		Severity:    SeverityWarning,
	})
}

// LogLogin records a successful login. The session does not exist yet, so
// the actor is passed explicitly.
func (r *Recorder) LogLogin(ctx context.Context, actor Actor) (*Record, bool) {
	return r.Record(ctx, Entry{
		Actor:       actor,
		Action:      ActionLogin,
		EntityType:  EntityUsers,
		EntityID:    actor.ID,
		Description: fmt.Sprintf("User %s logged in", actor.Email),
	})
}

// LogLogout records a logout
func (r *Recorder) LogLogout(ctx context.Context, actor Actor) (*Record, bool) {
	return r.Record(ctx, Entry{
		Actor:       actor,
		Action:      ActionLogout,
		EntityType:  EntityUsers,
		EntityID:    actor.ID,
		Description: fmt.Sprintf("User %s logged out", actor.Email),
	})
}

// LogView records read access to a single entity
func (r *Recorder) LogView(ctx context.Context, entityType EntityType, entityID string) (*Record, bool) {
	return r.Record(ctx, Entry{
		Action:      ActionView,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: fmt.Sprintf("Viewed %s %s", entityType, entityID),
	})
}

// LogExport records an export. entityID may be empty for collection exports.
func (r *Recorder) LogExport(ctx context.Context, entityType EntityType, entityID, format string) (*Record, bool) {
	target := string(entityType)
	if entityID != "" {
		target = fmt.Sprintf("%s %s", entityType, entityID)
	}
	return r.Record(ctx, Entry{
		Action:      ActionExport,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: fmt.Sprintf("Exported %s as %s", target, format),
	})
}

// LogSearch records a collection search with its query text and result count
func (r *Recorder) LogSearch(ctx context.Context, entityType EntityType, query string, resultCount int) (*Record, bool) {
	return r.Record(ctx, Entry{
		Action:      ActionSearch,
		EntityType:  entityType,
		Description: fmt.Sprintf("Searched %s for %q (%d results)", entityType, query, resultCount),
	})
}
