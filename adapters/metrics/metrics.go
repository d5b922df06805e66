// Package metrics provides the Prometheus metrics collector threaded
// through every proxy component.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every Prometheus metric the proxy reports through. It
// satisfies the narrow counter interfaces (config.ReloadCounters,
// reputation.Counters) that the domain packages depend on, so those
// packages never import prometheus directly.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ReputationCacheHits   prometheus.Counter
	ReputationCacheMisses prometheus.Counter
	ReputationAPIErrors   prometheus.Counter
	ReputationBlocks      prometheus.Counter

	RateLimitDenied *prometheus.CounterVec

	UpstreamDialDuration *prometheus.HistogramVec
	UpstreamDialErrors   prometheus.Counter

	UpgradedConnectionsActive prometheus.Gauge

	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New registers and returns a fresh Collector against the default
// Prometheus registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers a fresh Collector against reg. Tests use this
// with a private registry to avoid "duplicate metrics collector
// registration" panics across test cases.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	promauto := promauto.With(reg)
	return &Collector{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reverseproxy",
				Name:      "requests_total",
				Help:      "Total requests handled, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reverseproxy",
				Name:      "request_duration_seconds",
				Help:      "End-to-end request handling duration.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),

		ReputationCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "reverseproxy",
			Name:      "reputation_cache_hits_total",
			Help:      "Reputation classifications served from cache.",
		}),
		ReputationCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "reverseproxy",
			Name:      "reputation_cache_misses_total",
			Help:      "Reputation classifications that required an API call.",
		}),
		ReputationAPIErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "reverseproxy",
			Name:      "reputation_api_errors_total",
			Help:      "Reputation API calls that failed (fail-open).",
		}),
		ReputationBlocks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "reverseproxy",
			Name:      "reputation_blocks_total",
			Help:      "Requests rejected by the reputation gate.",
		}),

		RateLimitDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reverseproxy",
				Name:      "rate_limit_denied_total",
				Help:      "Requests denied by rate-limit admission, by route.",
			},
			[]string{"route"},
		),

		UpstreamDialDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reverseproxy",
				Name:      "upstream_dial_duration_seconds",
				Help:      "Time to establish the upstream TCP connection.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"route"},
		),
		UpstreamDialErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "reverseproxy",
			Name:      "upstream_dial_errors_total",
			Help:      "Failed upstream dial attempts.",
		}),

		UpgradedConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "reverseproxy",
			Name:      "upgraded_connections_active",
			Help:      "Number of protocol-upgraded connections currently being spliced.",
		}),

		ConfigReloads: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "reverseproxy",
			Name:      "config_reloads_total",
			Help:      "Successful config reloads.",
		}),
		ConfigReloadErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "reverseproxy",
			Name:      "config_reload_errors_total",
			Help:      "Config reloads that failed to parse.",
		}),
		ConfigLastReload: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "reverseproxy",
			Name:      "config_last_reload_timestamp_seconds",
			Help:      "Unix timestamp of the last successful config reload.",
		}),
	}
}

// ConfigReloadSucceeded implements config.ReloadCounters.
func (c *Collector) ConfigReloadSucceeded() {
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

// ConfigReloadFailed implements config.ReloadCounters.
func (c *Collector) ConfigReloadFailed() {
	c.ConfigReloadErrors.Inc()
}

// ReputationCacheHit implements reputation.Counters.
func (c *Collector) ReputationCacheHit() { c.ReputationCacheHits.Inc() }

// ReputationCacheMiss implements reputation.Counters.
func (c *Collector) ReputationCacheMiss() { c.ReputationCacheMisses.Inc() }

// ReputationAPIError implements reputation.Counters.
func (c *Collector) ReputationAPIError() { c.ReputationAPIErrors.Inc() }

// ObserveRequest implements engine.Metrics.
func (c *Collector) ObserveRequest(outcome string, elapsed time.Duration) {
	c.RequestsTotal.WithLabelValues(outcome).Inc()
	c.RequestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ReputationBlock implements engine.Metrics.
func (c *Collector) ReputationBlock() { c.ReputationBlocks.Inc() }

// RateLimitDeny implements engine.Metrics.
func (c *Collector) RateLimitDeny(route string) { c.RateLimitDenied.WithLabelValues(route).Inc() }

// UpstreamDialObserve implements engine.Metrics.
func (c *Collector) UpstreamDialObserve(route string, elapsed time.Duration) {
	c.UpstreamDialDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// UpstreamDialError implements engine.Metrics.
func (c *Collector) UpstreamDialError() { c.UpstreamDialErrors.Inc() }

// UpgradeStart implements engine.Metrics.
func (c *Collector) UpgradeStart() { c.UpgradedConnectionsActive.Inc() }

// UpgradeEnd implements engine.Metrics.
func (c *Collector) UpgradeEnd() { c.UpgradedConnectionsActive.Dec() }
