package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the subsystem's Prometheus metrics. Each instance carries
// its own registry so tests can construct isolated collectors.
type Collector struct {
	registry *prometheus.Registry

	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	coalesceWins      prometheus.Counter
	coalesceLosses    prometheus.Counter
	jobsEnqueued      prometheus.Counter
	variantsDone      prometheus.Counter
	variantsFailed    prometheus.Counter
	rateLimitedTotal  prometheus.Counter
	rendersInFlight   prometheus.Gauge
	signedURLsGranted prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnail_url_cache_hits_total",
			Help: "Signed-URL cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnail_url_cache_misses_total",
			Help: "Signed-URL cache misses.",
		}),
		coalesceWins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnail_coalesce_wins_total",
			Help: "Requests that won the race to create a generation job.",
		}),
		coalesceLosses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnail_coalesce_losses_total",
			Help: "Requests coalesced onto an in-flight generation job.",
		}),
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnail_jobs_enqueued_total",
			Help: "Generation jobs handed to the queue.",
		}),
		variantsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnail_variants_done_total",
			Help: "Variants rendered and stored successfully.",
		}),
		variantsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnail_variants_failed_total",
			Help: "Variants that failed rendering or storing.",
		}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnail_rate_limited_total",
			Help: "Requests soft-queued by the per-user rate limiter.",
		}),
		rendersInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thumbnail_renders_in_flight",
			Help: "Variants currently being rendered.",
		}),
		signedURLsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbnail_signed_urls_granted_total",
			Help: "Signed URLs issued by the storage provider.",
		}),
	}

	c.registry.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.coalesceWins,
		c.coalesceLosses,
		c.jobsEnqueued,
		c.variantsDone,
		c.variantsFailed,
		c.rateLimitedTotal,
		c.rendersInFlight,
		c.signedURLsGranted,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// All increment helpers tolerate a nil receiver so call sites do not need
// nil checks when metrics are disabled.

func (c *Collector) CacheHit() {
	if c != nil {
		c.cacheHits.Inc()
	}
}

func (c *Collector) CacheMiss() {
	if c != nil {
		c.cacheMisses.Inc()
	}
}

func (c *Collector) CoalesceWin() {
	if c != nil {
		c.coalesceWins.Inc()
	}
}

func (c *Collector) CoalesceLoss() {
	if c != nil {
		c.coalesceLosses.Inc()
	}
}

func (c *Collector) JobEnqueued() {
	if c != nil {
		c.jobsEnqueued.Inc()
	}
}

func (c *Collector) VariantDone() {
	if c != nil {
		c.variantsDone.Inc()
	}
}

func (c *Collector) VariantFailed() {
	if c != nil {
		c.variantsFailed.Inc()
	}
}

func (c *Collector) RateLimited() {
	if c != nil {
		c.rateLimitedTotal.Inc()
	}
}

func (c *Collector) RenderStarted() {
	if c != nil {
		c.rendersInFlight.Inc()
	}
}

func (c *Collector) RenderFinished() {
	if c != nil {
		c.rendersInFlight.Dec()
	}
}

func (c *Collector) SignedURLGranted() {
	if c != nil {
		c.signedURLsGranted.Inc()
	}
}
