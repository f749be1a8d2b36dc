// Package metrics holds the Prometheus collectors for searches, oracle calls and dedup runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeMismatch = "mismatch"
	OutcomeRetry    = "retry"
)

var (
	// Registry is private to this process so tests can read values without
	// touching the default registry.
	Registry = prometheus.NewRegistry()

	OracleCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdedup_oracle_calls_total",
		Help: "Comparator oracle calls by kind (pairwise, batched) and outcome.",
	}, []string{"kind", "outcome"})

	ProviderRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdedup_provider_requests_total",
		Help: "Result provider page requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	DedupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsdedup_dedup_duration_seconds",
		Help:    "Wall time of one deduplication run.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"strategy"})

	RecordsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdedup_records_dropped_total",
		Help: "Records removed as duplicates.",
	}, []string{"strategy"})
)

func init() {
	Registry.MustRegister(
		OracleCalls,
		ProviderRequests,
		DedupDuration,
		RecordsDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveDedup records one finished dedup run.
func ObserveDedup(strategy string, elapsed time.Duration, dropped int) {
	DedupDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if dropped > 0 {
		RecordsDropped.WithLabelValues(strategy).Add(float64(dropped))
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
