package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors exported by the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheLookups    *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	discarded       prometheus.Counter
	uploads         *prometheus.CounterVec
	droppedRows     prometheus.Counter
	sessions        prometheus.Gauge
	recomputeDur    prometheus.Summary
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campaign",
		Subsystem: "insight",
		Name:      "cache_lookups_total",
		Help:      "Insight requests by cache outcome (hit, miss, joined, nodata)",
	}, []string{"outcome"})
	m.providerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campaign",
		Subsystem: "insight",
		Name:      "provider_calls_total",
		Help:      "Text generation calls by result",
	}, []string{"status"})
	m.providerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "campaign",
		Subsystem: "insight",
		Name:      "provider_call_seconds",
		Help:      "Latency of text generation calls",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"status"})
	m.discarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campaign",
		Subsystem: "insight",
		Name:      "stale_discarded_total",
		Help:      "Completed generations discarded because the view changed meanwhile",
	})
	m.uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "uploads_total",
		Help:      "Dataset uploads by normalization mode and result",
	}, []string{"mode", "result"})
	m.droppedRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "dropped_rows_total",
		Help:      "Rows dropped during normalization",
	})
	m.sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campaign",
		Name:      "active_sessions",
		Help:      "Number of live analysis sessions",
	})
	m.recomputeDur = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace:  "campaign",
		Name:       "recompute_duration_seconds",
		Help:       "Duration of filter and aggregation passes",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})

	reg.MustRegister(
		m.cacheLookups,
		m.providerCalls,
		m.providerLatency,
		m.discarded,
		m.uploads,
		m.droppedRows,
		m.sessions,
		m.recomputeDur,
	)
	return m
}

// Cache outcomes.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheJoined = "joined"
	CacheNoData = "nodata"
)

func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// ProviderCall records one finished generation; status is "ok" or a failure kind.
func (m *Metrics) ProviderCall(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(status).Inc()
	m.providerLatency.WithLabelValues(status).Observe(took.Seconds())
}

func (m *Metrics) Discarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

// Upload records a normalization attempt and the rows it dropped.
func (m *Metrics) Upload(mode, result string, dropped int) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(mode, result).Inc()
	if dropped > 0 {
		m.droppedRows.Add(float64(dropped))
	}
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *Metrics) ObserveRecompute(took time.Duration) {
	if m == nil {
		return
	}
	m.recomputeDur.Observe(took.Seconds())
}
