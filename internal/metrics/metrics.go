// Package metrics holds the Prometheus collectors of the scraping pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"ratescraper/internal/provider"
)

type Metrics struct {
	SourceOutcomes *prometheus.CounterVec
	Batches        *prometheus.CounterVec
	ScrapeDuration prometheus.Histogram
	CacheLookups   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SourceOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratescraper",
			Name:      "source_outcomes_total",
			Help:      "Per-source scrape outcomes by result.",
		}, []string{"source", "result"}),
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratescraper",
			Name:      "batches_total",
			Help:      "Completed scrape batches by origin and mechanism.",
		}, []string{"origin", "mechanism"}),
		ScrapeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ratescraper",
			Name:      "scrape_duration_seconds",
			Help:      "Wall time of a full scrape batch.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 25, 30},
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratescraper",
			Name:      "cache_lookups_total",
			Help:      "Freshness cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveOutcome(o provider.Outcome) {
	if m == nil {
		return
	}
	result := "ok"
	if !o.OK {
		result = string(o.Kind)
	}
	m.SourceOutcomes.WithLabelValues(o.Source, result).Inc()
}

func (m *Metrics) ObserveBatch(b provider.Batch, took time.Duration) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(string(b.Origin), b.Mechanism).Inc()
	m.ScrapeDuration.Observe(took.Seconds())
}

// Cache lookup results.
const (
	LookupFresh     = "fresh"
	LookupRefreshed = "refreshed"
	LookupStale     = "stale"
	LookupEmpty     = "empty"
)

func (m *Metrics) ObserveLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
