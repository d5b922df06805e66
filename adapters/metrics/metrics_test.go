package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thedtvn/reverseproxy/adapters/metrics"
)

func newTestCollector() *metrics.Collector {
	return metrics.NewWithRegistry(prometheus.NewRegistry())
}

func TestNew_AllMetricsInitialized(t *testing.T) {
	m := newTestCollector()

	if m.RequestsTotal == nil || m.RequestDuration == nil {
		t.Fatal("request metrics not initialized")
	}
	if m.ReputationCacheHits == nil || m.ReputationCacheMisses == nil || m.ReputationAPIErrors == nil || m.ReputationBlocks == nil {
		t.Fatal("reputation metrics not initialized")
	}
	if m.RateLimitDenied == nil {
		t.Fatal("rate limit metrics not initialized")
	}
	if m.UpstreamDialDuration == nil || m.UpstreamDialErrors == nil {
		t.Fatal("upstream metrics not initialized")
	}
	if m.UpgradedConnectionsActive == nil {
		t.Fatal("upgrade gauge not initialized")
	}
	if m.ConfigReloads == nil || m.ConfigReloadErrors == nil || m.ConfigLastReload == nil {
		t.Fatal("config reload metrics not initialized")
	}
}

func TestCollector_ReloadCounterMethods(t *testing.T) {
	m := newTestCollector()
	// Exercises the config.ReloadCounters interface methods directly;
	// panics on a nil metric would fail the test.
	m.ConfigReloadSucceeded()
	m.ConfigReloadFailed()
}

func TestCollector_ReputationCounterMethods(t *testing.T) {
	m := newTestCollector()
	m.ReputationCacheHit()
	m.ReputationCacheMiss()
	m.ReputationAPIError()
}
