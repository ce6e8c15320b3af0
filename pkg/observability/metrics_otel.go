package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments. They are pushed
// through the OTLP exporter, which is how the short-lived sweeper
// process reports since nothing scrapes it.
type OTelMetrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Retention metrics
	purgeRunsTotal metric.Int64Counter
	purgedRecords  metric.Int64Counter
	purgeDuration  metric.Float64Histogram
}

// NewOTelMetrics creates the instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/fieldaudit")

	m := &OTelMetrics{}
	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	m.purgeRunsTotal, err = meter.Int64Counter(
		"audit.retention.runs",
		metric.WithDescription("Total number of retention sweeps"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retention runs counter: %w", err)
	}

	m.purgedRecords, err = meter.Int64Counter(
		"audit.retention.purged",
		metric.WithDescription("Audit records removed by retention sweeps"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create purged records counter: %w", err)
	}

	m.purgeDuration, err = meter.Float64Histogram(
		"audit.retention.duration",
		metric.WithDescription("Retention sweep duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retention duration histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *OTelMetrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordPurge records the outcome of one retention sweep
func (m *OTelMetrics) RecordPurge(ctx context.Context, daysToKeep int, deleted int64, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.Int("retention.days", daysToKeep),
		attribute.Bool("error", err != nil),
	)

	m.purgeRunsTotal.Add(ctx, 1, attrs)
	m.purgeDuration.Record(ctx, duration.Seconds(), attrs)
	if deleted > 0 {
		m.purgedRecords.Add(ctx, deleted, attrs)
	}
}

// OTelHTTPMiddleware records request metrics through the OTel meter
func OTelHTTPMiddleware(metrics *OTelMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			metrics.RecordHTTPRequest(r.Context(), r.Method, routeTemplate(r), rw.statusCode, time.Since(start))
		})
	}
}
