package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// verdictTTL is the sliding TTL applied to both positive ("block") and
// negative ("allow") classification results.
const verdictTTL = 60 * time.Second

// apiEntry is the per-IP object inside a proxycheck.io-shaped response.
type apiEntry struct {
	VPN   string `json:"vpn"`
	Proxy string `json:"proxy"`
	Risk  int    `json:"risk"`
}

// Counters is the subset of metrics the client reports through, kept as a
// narrow interface so this package does not import the metrics package.
type Counters interface {
	ReputationCacheHit()
	ReputationCacheMiss()
	ReputationAPIError()
}

type noopCounters struct{}

func (noopCounters) ReputationCacheHit()  {}
func (noopCounters) ReputationCacheMiss() {}
func (noopCounters) ReputationAPIError()  {}

// Client classifies IPs via the cache first, falling back to an external
// HTTP classifier on a miss. Any network or parse failure fails open,
// caching false for the standard TTL.
type Client struct {
	http     *http.Client
	cache    *Cache
	logger   zerolog.Logger
	counters Counters
	endpoint string
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithEndpointTemplate overrides the classifier URL template (must contain
// exactly one %s for the IP). Used by tests to point at a local server.
func WithEndpointTemplate(tmpl string) Option {
	return func(c *Client) { c.endpoint = tmpl }
}

// NewClient builds a reputation Client against the default proxycheck.io
// endpoint. Pass nil counters to skip metrics.
func NewClient(cache *Cache, logger zerolog.Logger, counters Counters, opts ...Option) *Client {
	if counters == nil {
		counters = noopCounters{}
	}
	c := &Client{
		http:     &http.Client{Timeout: 3 * time.Second},
		cache:    cache,
		logger:   logger,
		counters: counters,
		endpoint: "https://proxycheck.io/v2/%s?risk=2&vpn=3",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns true if ip should be blocked, consulting the cache
// before calling the external API.
func (c *Client) Classify(ctx context.Context, ip string) bool {
	if v, ok := c.cache.Get(ip); ok {
		c.counters.ReputationCacheHit()
		return v
	}
	c.counters.ReputationCacheMiss()

	verdict, err := c.fetch(ctx, ip)
	if err != nil {
		c.counters.ReputationAPIError()
		c.logger.Warn().Err(err).Str("ip", ip).Msg("reputation classify failed, failing open")
		c.cache.Put(ip, false, verdictTTL)
		return false
	}

	c.cache.Put(ip, verdict, verdictTTL)
	return verdict
}

func (c *Client) fetch(ctx context.Context, ip string) (bool, error) {
	url := fmt.Sprintf(c.endpoint, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return false, fmt.Errorf("parse response: %w", err)
	}

	var status string
	if s, ok := raw["status"]; ok {
		_ = json.Unmarshal(s, &status)
	}
	if status != "ok" {
		// A non-"ok" status is a valid classification outcome, not a
		// transport failure: treat as no-block.
		return false, nil
	}

	entryRaw, ok := raw[ip]
	if !ok {
		return false, fmt.Errorf("response missing entry for %s", ip)
	}
	var e apiEntry
	if err := json.Unmarshal(entryRaw, &e); err != nil {
		return false, fmt.Errorf("parse entry: %w", err)
	}

	block := e.Proxy == "yes" || e.Risk > 66
	if e.VPN == "yes" && e.Risk <= 33 {
		block = false
	}
	return block, nil
}
