package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for recorded entries
const (
	OutcomeRecorded    = "recorded"
	OutcomeInvalid     = "invalid"
	OutcomeFailed      = "failed"
	OutcomeCircuitOpen = "circuit_open"
)

// Metrics holds the Prometheus collectors of the audit engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RecordsTotal   *prometheus.CounterVec
	RecordDuration prometheus.Histogram
	QueryDuration  *prometheus.HistogramVec
	QueryErrors    *prometheus.CounterVec
	PurgedTotal    prometheus.Counter
}

// NewMetrics creates and registers the audit metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldaudit_records_total",
				Help: "Total number of audit entries by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		RecordDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fieldaudit_record_duration_seconds",
				Help:    "Time spent persisting one audit record",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldaudit_query_duration_seconds",
				Help:    "Read-side operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		QueryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldaudit_query_errors_total",
				Help: "Total number of failed read-side operations",
			},
			[]string{"operation"},
		),
		PurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldaudit_purged_records_total",
				Help: "Total number of audit records removed by retention",
			},
		),
	}

	registry.MustRegister(
		m.RecordsTotal,
		m.RecordDuration,
		m.QueryDuration,
		m.QueryErrors,
		m.PurgedTotal,
	)

	return m
}

func (m *Metrics) observeRecord(action Action, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(string(action), outcome).Inc()
	if outcome == OutcomeRecorded {
		m.RecordDuration.Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) observeQuery(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err != nil {
		m.QueryErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) addPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PurgedTotal.Add(float64(n))
}
