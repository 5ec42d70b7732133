package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup outcomes used as the "outcome" label.
const (
	OutcomeResolved = "resolved"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
)

// ResolutionCollector exposes reverse-geocoding metrics: how lookups end,
// how long they take and how many late answers were thrown away.
type ResolutionCollector struct {
	gatherer prometheus.Gatherer

	Lookups        *prometheus.CounterVec
	LookupDuration prometheus.Histogram
	StaleResults   prometheus.Counter
	CacheHits      prometheus.Counter
}

// NewResolutionCollector registers name resolution metrics against the
// provided registerer.
func NewResolutionCollector(reg prometheus.Registerer) (*ResolutionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	lookups, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_geocode_lookups_total",
		Help: "Reverse-geocoding lookups, labeled by outcome (resolved, failed, timeout).",
	}, []string{"outcome"}), "globe_geocode_lookups_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "globe_geocode_lookup_duration_seconds",
		Help:    "Duration of reverse-geocoding lookups, including failures.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
	durations, err = register(reg, durations, "globe_geocode_lookup_duration_seconds")
	if err != nil {
		return nil, err
	}

	stale, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_geocode_stale_results_total",
		Help: "Name results discarded because a newer selection superseded them.",
	}), "globe_geocode_stale_results_total")
	if err != nil {
		return nil, err
	}

	hits, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_geocode_cache_hits_total",
		Help: "Reverse-geocoding lookups served from the local cache.",
	}), "globe_geocode_cache_hits_total")
	if err != nil {
		return nil, err
	}

	return &ResolutionCollector{
		gatherer:       gatherer,
		Lookups:        lookups,
		LookupDuration: durations,
		StaleResults:   stale,
		CacheHits:      hits,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ResolutionCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveLookup records the outcome and duration of one lookup.
func (c *ResolutionCollector) ObserveLookup(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Lookups != nil {
		c.Lookups.WithLabelValues(outcome).Inc()
	}
	if c.LookupDuration != nil {
		c.LookupDuration.Observe(d.Seconds())
	}
}

// IncStale increments the discarded-result counter.
func (c *ResolutionCollector) IncStale() {
	if c == nil || c.StaleResults == nil {
		return
	}
	c.StaleResults.Inc()
}

// IncCacheHit increments the cache hit counter.
func (c *ResolutionCollector) IncCacheHit() {
	if c == nil || c.CacheHits == nil {
		return
	}
	c.CacheHits.Inc()
}
