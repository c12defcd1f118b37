package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "litsearch"

// Outcome label values.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomePartial     = "partial"
	OutcomeUnavailable = "unavailable"
	OutcomeRejected    = "rejected"
	OutcomeCanceled    = "canceled"
	OutcomeCached      = "cached"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	searches          *prometheus.CounterVec
	sourceRequests    *prometheus.CounterVec
	sourceLatency     *prometheus.HistogramVec
	resultsReturned   prometheus.Histogram
	embeddingRequests *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh private registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Combined searches by outcome.",
		}, []string{"outcome"}),
		sourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Per-source search calls by outcome.",
		}, []string{"source", "outcome"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_latency_seconds",
			Help:      "Per-source search latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 3, 5},
		}, []string{"source"}),
		resultsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_returned",
			Help:      "Number of results returned per search.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		embeddingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Query embedding requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.searches, m.sourceRequests, m.sourceLatency, m.resultsReturned, m.embeddingRequests,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSearch records the outcome of one combined search.
func (m *Metrics) ObserveSearch(outcome string, results int) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomePartial || outcome == OutcomeEmpty {
		m.resultsReturned.Observe(float64(results))
	}
}

// ObserveSource records one per-source call.
func (m *Metrics) ObserveSource(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sourceRequests.WithLabelValues(source, outcome).Inc()
	m.sourceLatency.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveEmbedding records one query embedding request.
func (m *Metrics) ObserveEmbedding(provider, outcome string) {
	if m == nil {
		return
	}
	m.embeddingRequests.WithLabelValues(provider, outcome).Inc()
}

// WriteTextfile dumps the current values in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
