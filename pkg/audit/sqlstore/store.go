// Package sqlstore implements audit.Store on database/sql for PostgreSQL
// and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

const selectColumns = `id, occurred_at, actor_id, actor_email, actor_name,
	action, entity_type, entity_id, changes, old_values, new_values,
	description, severity, ip_address, user_agent, endpoint, http_method`

// Config configures a SQL store connection
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements audit.Store on a SQL database
type Store struct {
	db      *sql.DB
	dialect Dialect
	tracer  trace.Tracer
}

// Open connects to the configured database, applies pool settings and
// ensures the schema exists
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := New(db, dialect)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection. The caller owns db.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		tracer:  observability.Tracer("sqlstore"),
	}
}

// DB returns the underlying connection pool
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the audit_logs table and its indexes if missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema()); err != nil {
		return fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return nil
}

// Insert writes rec and returns a copy carrying the generated ID
func (s *Store) Insert(ctx context.Context, rec *audit.Record) (_ *audit.Record, err error) {
	ctx, span := s.startSpan(ctx, "Insert")
	defer func() { endSpan(span, err) }()

	changesJSON, err := marshalNullable(rec.Changes, len(rec.Changes) == 0)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal changes: %w", err)
	}
	beforeJSON, err := marshalNullable(rec.Before, rec.Before == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal old values: %w", err)
	}
	afterJSON, err := marshalNullable(rec.After, rec.After == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal new values: %w", err)
	}

	var rc audit.RequestContext
	if rec.RequestContext != nil {
		rc = *rec.RequestContext
	}

	args := []interface{}{
		rec.OccurredAt, rec.ActorID, rec.ActorEmail, rec.ActorName,
		string(rec.Action), string(rec.EntityType), rec.EntityID,
		changesJSON, beforeJSON, afterJSON,
		rec.Description, string(rec.Severity),
		rc.IPAddress, rc.UserAgent, rc.Endpoint, rc.HTTPMethod,
	}
	placeholders := ""
	for i := range args {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += s.dialect.placeholder(i + 1)
	}

	query := `INSERT INTO audit_logs (
		occurred_at, actor_id, actor_email, actor_name,
		action, entity_type, entity_id, changes, old_values, new_values,
		description, severity, ip_address, user_agent, endpoint, http_method
	) VALUES (` + placeholders + `) RETURNING id`

	stored := rec.Clone()
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stored.ID); err != nil {
		return nil, fmt.Errorf("failed to insert audit log: %w", err)
	}
	span.SetAttributes(attribute.Int64("audit.record_id", stored.ID))
	return stored, nil
}

// Select returns matching records, newest first
func (s *Store) Select(ctx context.Context, c audit.Criteria, page audit.Page) (_ []*audit.Record, err error) {
	ctx, span := s.startSpan(ctx, "Select")
	defer func() { endSpan(span, err) }()

	where, args := buildWhere(s.dialect, c)
	query := "SELECT " + selectColumns + " FROM audit_logs" + where + " ORDER BY occurred_at DESC, id DESC"

	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += " LIMIT " + s.dialect.placeholder(len(args))
	} else if page.Offset > 0 && s.dialect == SQLite {
		// SQLite requires LIMIT before OFFSET
		query += " LIMIT -1"
	}
	if page.Offset > 0 {
		args = append(args, page.Offset)
		query += " OFFSET " + s.dialect.placeholder(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit logs: %w", err)
	}
	defer rows.Close()

	records := make([]*audit.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	span.SetAttributes(attribute.Int("audit.rows", len(records)))
	return records, nil
}

// Count returns the number of matching records
func (s *Store) Count(ctx context.Context, c audit.Criteria) (n int64, err error) {
	ctx, span := s.startSpan(ctx, "Count")
	defer func() { endSpan(span, err) }()

	where, args := buildWhere(s.dialect, c)
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return n, nil
}

var dimensionColumns = map[audit.Dimension]string{
	audit.DimensionAction:   "action",
	audit.DimensionEntity:   "entity_type",
	audit.DimensionSeverity: "severity",
}

// CountBy groups matching records by dim
func (s *Store) CountBy(ctx context.Context, c audit.Criteria, dim audit.Dimension) (_ []audit.Bucket, err error) {
	ctx, span := s.startSpan(ctx, "CountBy")
	span.SetAttributes(attribute.String("audit.dimension", string(dim)))
	defer func() { endSpan(span, err) }()

	column, ok := dimensionColumns[dim]
	if !ok {
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	where, args := buildWhere(s.dialect, c)
	query := fmt.Sprintf(
		"SELECT %[1]s, COUNT(*) AS n FROM audit_logs%[2]s GROUP BY %[1]s ORDER BY n DESC, %[1]s ASC",
		column, where,
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit logs by %s: %w", dim, err)
	}
	defer rows.Close()

	buckets := make([]audit.Bucket, 0)
	for rows.Next() {
		var b audit.Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s bucket: %w", dim, err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s buckets: %w", dim, err)
	}
	return buckets, nil
}

// TopActors groups matching records by actor email
func (s *Store) TopActors(ctx context.Context, c audit.Criteria, limit int) (_ []audit.ActorCount, err error) {
	ctx, span := s.startSpan(ctx, "TopActors")
	defer func() { endSpan(span, err) }()

	where, args := buildWhere(s.dialect, c)
	query := "SELECT actor_email, MAX(actor_name), COUNT(*) AS n FROM audit_logs" + where +
		" GROUP BY actor_email ORDER BY n DESC, actor_email ASC"
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT " + s.dialect.placeholder(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get top actors: %w", err)
	}
	defer rows.Close()

	actors := make([]audit.ActorCount, 0)
	for rows.Next() {
		var ac audit.ActorCount
		var name sql.NullString
		if err := rows.Scan(&ac.Email, &name, &ac.Count); err != nil {
			return nil, fmt.Errorf("failed to scan actor count: %w", err)
		}
		ac.Name = name.String
		actors = append(actors, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actor counts: %w", err)
	}
	return actors, nil
}

// Delete removes matching records. Criteria without an upper time bound
// are refused.
func (s *Store) Delete(ctx context.Context, c audit.Criteria) (n int64, err error) {
	if c.To == nil {
		return 0, audit.ErrUnboundedDelete
	}

	ctx, span := s.startSpan(ctx, "Delete")
	defer func() { endSpan(span, err) }()

	where, args := buildWhere(s.dialect, c)
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_logs"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit logs: %w", err)
	}

	n, err = result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	span.SetAttributes(attribute.Int64("audit.deleted", n))
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*audit.Record, error) {
	rec := &audit.Record{}
	var action, entity, severity string
	var changesJSON, beforeJSON, afterJSON sql.NullString
	var rc audit.RequestContext

	err := row.Scan(
		&rec.ID, &rec.OccurredAt, &rec.ActorID, &rec.ActorEmail, &rec.ActorName,
		&action, &entity, &rec.EntityID, &changesJSON, &beforeJSON, &afterJSON,
		&rec.Description, &severity, &rc.IPAddress, &rc.UserAgent, &rc.Endpoint, &rc.HTTPMethod,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	rec.Action = audit.Action(action)
	rec.EntityType = audit.EntityType(entity)
	rec.Severity = audit.Severity(severity)
	if !rc.IsZero() {
		rec.RequestContext = &rc
	}

	if err := unmarshalNullable(changesJSON, &rec.Changes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
	}
	if err := unmarshalNullable(beforeJSON, &rec.Before); err != nil {
		return nil, fmt.Errorf("failed to unmarshal old values: %w", err)
	}
	if err := unmarshalNullable(afterJSON, &rec.After); err != nil {
		return nil, fmt.Errorf("failed to unmarshal new values: %w", err)
	}
	return rec, nil
}

func marshalNullable(v interface{}, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable(s sql.NullString, dest interface{}) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dest)
}

func (s *Store) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "sqlstore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", string(s.dialect)),
			attribute.String("db.sql.table", "audit_logs"),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

var _ audit.Store = (*Store)(nil)
