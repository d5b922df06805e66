// Package config loads the proxy's YAML configuration: a bind address
// plus an ordered set of host-pattern routes.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thedtvn/reverseproxy/domain/route"
)

// rawRateLimit mirrors the YAML shape of a route's optional rate_limit
// block before unit strings are validated and defaults applied.
type rawRateLimit struct {
	Per   string `yaml:"per"`
	Limit int    `yaml:"limit"`
	Burst int    `yaml:"burst"`
}

// rawRoute mirrors the YAML shape of a single route entry. The "taget"
// spelling is retained for compatibility with the system this config
// format was carried over from.
type rawRoute struct {
	Target         string        `yaml:"taget"`
	Plugins        []string      `yaml:"plugins"`
	RateLimit      *rawRateLimit `yaml:"rate_limit"`
	ReputationGate bool          `yaml:"ipcheck"`
}

// Load reads path from disk, expands environment variables, and parses it.
func Load(path string, logger zerolog.Logger) (*route.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, logger)
}

// Parse decodes raw YAML bytes into a route.Config. The top level is a
// mapping whose "bind" and "reputation_gate" keys are reserved; every
// other key is a host pattern naming a route. A yaml.Node walk is used
// instead of a plain map so that route order (first-match-wins) survives
// parsing.
func Parse(data []byte, logger zerolog.Logger) (*route.Config, error) {
	expanded := os.ExpandEnv(string(data))

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty config document")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config root must be a mapping")
	}

	cfg := &route.Config{}

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode := root.Content[i]
		valNode := root.Content[i+1]
		key := keyNode.Value

		switch key {
		case "bind":
			cfg.Bind = valNode.Value
		case "reputation_gate":
			var gate bool
			if err := valNode.Decode(&gate); err != nil {
				return nil, fmt.Errorf("reputation_gate: %w", err)
			}
			cfg.ReputationGateGlobal = gate
		default:
			r, err := decodeRoute(key, valNode, logger)
			if err != nil {
				return nil, fmt.Errorf("route %q: %w", key, err)
			}
			cfg.Routes = append(cfg.Routes, r)
		}
	}

	if cfg.Bind == "" {
		return nil, fmt.Errorf("bind address is required")
	}

	return cfg, nil
}

func decodeRoute(key string, valNode *yaml.Node, logger zerolog.Logger) (route.Route, error) {
	var rr rawRoute
	if err := valNode.Decode(&rr); err != nil {
		return route.Route{}, err
	}

	r := route.Route{
		Key:            key,
		Upstream:       rr.Target,
		Plugins:        rr.Plugins,
		ReputationGate: rr.ReputationGate,
	}

	pattern, ok := route.CompilePattern(key)
	if !ok {
		logger.Warn().Str("pattern", key).Msg("malformed host pattern, this route will never match")
	}
	r.Pattern = pattern

	if rr.RateLimit != nil {
		spec, err := toRateLimitSpec(*rr.RateLimit)
		if err != nil {
			return route.Route{}, fmt.Errorf("rate_limit: %w", err)
		}
		r.RateLimit = spec
	}

	return r, nil
}

func toRateLimitSpec(rr rawRateLimit) (*route.RateLimitSpec, error) {
	var unit route.Unit
	switch strings.ToLower(rr.Per) {
	case "sec", "second", "seconds":
		unit = route.UnitSecond
	case "min", "minute", "minutes":
		unit = route.UnitMinute
	case "hrs", "hr", "hour", "hours":
		unit = route.UnitHour
	default:
		return nil, fmt.Errorf("unknown unit %q", rr.Per)
	}

	if rr.Limit <= 0 {
		return nil, fmt.Errorf("limit must be a positive integer")
	}

	burst := rr.Burst
	if burst <= 0 {
		burst = rr.Limit
	}

	return &route.RateLimitSpec{Unit: unit, Limit: rr.Limit, Burst: burst}, nil
}
