package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "suburbiq"

// Metrics groups the counters and histograms the query core records.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// FetchesTotal counts data-service reads. Labels: table, status (ok, error, rejected)
	FetchesTotal *prometheus.CounterVec

	// FetchDurationSeconds measures data-service read latency. Labels: table
	FetchDurationSeconds *prometheus.HistogramVec

	// FetchRetriesTotal counts retried reads. Labels: table
	FetchRetriesTotal *prometheus.CounterVec

	// AverageCacheTotal counts state-average cache lookups. Labels: result (hit, miss)
	AverageCacheTotal *prometheus.CounterVec

	// TurnsTotal counts conversation turns. Labels: kind
	TurnsTotal *prometheus.CounterVec

	// TransitionsTotal counts flow transitions. Labels: from, intent, to
	TransitionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against reg.
// Pass prometheus.DefaultRegisterer in production and prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "data",
				Name:      "fetches_total",
				Help:      "Total data service reads by table and status",
			},
			[]string{"table", "status"},
		),
		FetchDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "data",
				Name:      "fetch_duration_seconds",
				Help:      "Data service read latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"table"},
		),
		FetchRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "data",
				Name:      "fetch_retries_total",
				Help:      "Total retried data service reads by table",
			},
			[]string{"table"},
		),
		AverageCacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "cache",
				Name:      "state_average_lookups_total",
				Help:      "State average cache lookups by result",
			},
			[]string{"result"},
		),
		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "conversation",
				Name:      "turns_total",
				Help:      "Conversation turns by response kind",
			},
			[]string{"kind"},
		),
		TransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "conversation",
				Name:      "transitions_total",
				Help:      "Conversation flow transitions",
			},
			[]string{"from", "intent", "to"},
		),
	}
}

// Fetch records one data-service read
func (m *Metrics) Fetch(table, status string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(table, status).Inc()
	if status != "rejected" {
		m.FetchDurationSeconds.WithLabelValues(table).Observe(seconds)
	}
}

// Retry records one retried read
func (m *Metrics) Retry(table string) {
	if m == nil {
		return
	}
	m.FetchRetriesTotal.WithLabelValues(table).Inc()
}

// CacheLookup records a state-average cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.AverageCacheTotal.WithLabelValues(result).Inc()
}

// Turn records a conversation turn outcome
func (m *Metrics) Turn(kind string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(kind).Inc()
}

// Transition records a flow transition
func (m *Metrics) Transition(from, intent, to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, intent, to).Inc()
}
