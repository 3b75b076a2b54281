// Package metrics collects and exposes Prometheus metrics for the swipe
// core and the image worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and updates the pawmatch metrics.
type Collector struct {
	registry *prometheus.Registry

	deckCacheHits   prometheus.Counter
	deckCacheMisses prometheus.Counter
	decksGenerated  prometheus.Counter

	swipes          *prometheus.CounterVec
	duplicateSwipes prometheus.Counter
	matchesCreated  prometheus.Counter

	resizeJobs     *prometheus.CounterVec
	resizeDuration prometheus.Histogram
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		deckCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawmatch_deck_cache_hits_total",
			Help: "Deck requests served from the cache.",
		}),
		deckCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawmatch_deck_cache_misses_total",
			Help: "Deck requests that triggered generation.",
		}),
		decksGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawmatch_decks_generated_total",
			Help: "Decks generated and written to the cache.",
		}),
		swipes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawmatch_swipes_total",
			Help: "Recorded swipes by decision.",
		}, []string{"decision"}),
		duplicateSwipes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawmatch_duplicate_swipes_total",
			Help: "Swipe attempts on an already-decided pair.",
		}),
		matchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawmatch_matches_created_total",
			Help: "Matches created by the match engine.",
		}),
		resizeJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawmatch_resize_jobs_total",
			Help: "Resize jobs by result.",
		}, []string{"result"}),
		resizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pawmatch_resize_duration_seconds",
			Help:    "End-to-end resize job duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(
		c.deckCacheHits, c.deckCacheMisses, c.decksGenerated,
		c.swipes, c.duplicateSwipes, c.matchesCreated,
		c.resizeJobs, c.resizeDuration,
	)
	return c
}

// Handler exposes the registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordDeckCacheHit()  { c.deckCacheHits.Inc() }
func (c *Collector) RecordDeckCacheMiss() { c.deckCacheMisses.Inc() }
func (c *Collector) RecordDeckGenerated() { c.decksGenerated.Inc() }

func (c *Collector) RecordSwipe(liked bool) {
	decision := "pass"
	if liked {
		decision = "like"
	}
	c.swipes.WithLabelValues(decision).Inc()
}

func (c *Collector) RecordDuplicateSwipe() { c.duplicateSwipes.Inc() }
func (c *Collector) RecordMatchCreated()   { c.matchesCreated.Inc() }

// RecordResizeJob tallies a finished job attempt; result is one of
// "success", "retry", "terminal".
func (c *Collector) RecordResizeJob(result string, duration time.Duration) {
	c.resizeJobs.WithLabelValues(result).Inc()
	c.resizeDuration.Observe(duration.Seconds())
}
