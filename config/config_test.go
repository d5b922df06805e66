package config_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/thedtvn/reverseproxy/config"
	"github.com/thedtvn/reverseproxy/domain/route"
)

func TestParse_BasicRoute(t *testing.T) {
	doc := []byte(`
bind: "0.0.0.0:3001"
eq api.example:
  taget: "localhost:9001"
`)

	cfg, err := config.Parse(doc, zerolog.Nop())
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Bind != "0.0.0.0:3001" {
		t.Errorf("Bind = %q", cfg.Bind)
	}
	if len(cfg.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(cfg.Routes))
	}
	if cfg.Routes[0].Upstream != "localhost:9001" {
		t.Errorf("Upstream = %q", cfg.Routes[0].Upstream)
	}
	if !cfg.Routes[0].Pattern.Match("api.example") {
		t.Error("expected the compiled pattern to match api.example")
	}
}

func TestParse_PreservesRouteOrder(t *testing.T) {
	doc := []byte(`
bind: "0.0.0.0:3001"
sw admin.:
  taget: "localhost:9002"
wc *.example:
  taget: "localhost:9001"
`)

	cfg, err := config.Parse(doc, zerolog.Nop())
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(cfg.Routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(cfg.Routes))
	}
	if cfg.Routes[0].Key != "sw admin." {
		t.Errorf("first route = %q, want the admin pattern first (document order)", cfg.Routes[0].Key)
	}
}

func TestParse_RateLimitAndPlugins(t *testing.T) {
	doc := []byte(`
bind: "0.0.0.0:3001"
wc *.r.example:
  taget: "localhost:9001"
  plugins: ["auth", "logger"]
  rate_limit:
    per: sec
    limit: 2
    burst: 2
`)

	cfg, err := config.Parse(doc, zerolog.Nop())
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	r := cfg.Routes[0]
	if len(r.Plugins) != 2 || r.Plugins[0] != "auth" {
		t.Errorf("Plugins = %v", r.Plugins)
	}
	if r.RateLimit == nil || r.RateLimit.Unit != route.UnitSecond || r.RateLimit.Limit != 2 || r.RateLimit.Burst != 2 {
		t.Errorf("RateLimit = %+v", r.RateLimit)
	}
}

func TestParse_BurstDefaultsToLimit(t *testing.T) {
	doc := []byte(`
bind: "0.0.0.0:3001"
eq api.example:
  taget: "localhost:9001"
  rate_limit:
    per: min
    limit: 10
`)

	cfg, err := config.Parse(doc, zerolog.Nop())
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Routes[0].RateLimit.Burst != 10 {
		t.Errorf("Burst = %d, want 10 (defaulted from limit)", cfg.Routes[0].RateLimit.Burst)
	}
}

func TestParse_ReputationGatePerRouteAndGlobal(t *testing.T) {
	doc := []byte(`
bind: "0.0.0.0:3001"
reputation_gate: true
eq api.example:
  taget: "localhost:9001"
  ipcheck: true
`)

	cfg, err := config.Parse(doc, zerolog.Nop())
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !cfg.ReputationGateGlobal {
		t.Error("expected global reputation gate to be true")
	}
	if !cfg.Routes[0].ReputationGate {
		t.Error("expected per-route reputation gate to be true")
	}
}

func TestParse_MissingBindIsError(t *testing.T) {
	doc := []byte(`
eq api.example:
  taget: "localhost:9001"
`)
	if _, err := config.Parse(doc, zerolog.Nop()); err == nil {
		t.Error("expected an error for a config missing bind")
	}
}

func TestParse_UnknownRateLimitUnitIsError(t *testing.T) {
	doc := []byte(`
bind: "0.0.0.0:3001"
eq api.example:
  taget: "localhost:9001"
  rate_limit:
    per: fortnight
    limit: 1
`)
	if _, err := config.Parse(doc, zerolog.Nop()); err == nil {
		t.Error("expected an error for an unrecognized rate_limit unit")
	}
}

func TestParse_MalformedPatternIsRetainedButNeverMatches(t *testing.T) {
	doc := []byte(`
bind: "0.0.0.0:3001"
bogus-mode-no-space:
  taget: "localhost:9001"
`)
	cfg, err := config.Parse(doc, zerolog.Nop())
	if err != nil {
		t.Fatalf("Parse should not fail on a malformed pattern: %v", err)
	}
	if len(cfg.Routes) != 1 {
		t.Fatalf("expected the malformed route to still be retained, got %d routes", len(cfg.Routes))
	}
	if cfg.Routes[0].Pattern.Match("anything") {
		t.Error("a malformed pattern must never match")
	}
}
