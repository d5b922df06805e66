// Package ratelimit implements the per-route token-bucket admission
// registry: one set of buckets per route, one bucket per "host|ip" key
// within that route.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/thedtvn/reverseproxy/domain/route"
)

const numShards = 16

type bucketEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucketEntry
}

// routeLimiter owns the buckets for a single route's spec.
type routeLimiter struct {
	spec   route.RateLimitSpec
	shards [numShards]*shard
}

func newRouteLimiter(spec route.RateLimitSpec) *routeLimiter {
	rl := &routeLimiter{spec: spec}
	for i := range rl.shards {
		rl.shards[i] = &shard{buckets: make(map[string]*bucketEntry)}
	}
	return rl
}

func (rl *routeLimiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return rl.shards[h.Sum32()%numShards]
}

func (rl *routeLimiter) admit(key string, now time.Time) bool {
	s := rl.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucketEntry{limiter: rate.NewLimiter(perSecond(rl.spec), rl.spec.Burst)}
		s.buckets[key] = b
	}
	b.lastUsed = now
	return b.limiter.AllowN(now, 1)
}

func (rl *routeLimiter) sweep(cutoff time.Time) {
	for _, s := range rl.shards {
		s.mu.Lock()
		for key, b := range s.buckets {
			if b.lastUsed.Before(cutoff) {
				delete(s.buckets, key)
			}
		}
		s.mu.Unlock()
	}
}

func perSecond(spec route.RateLimitSpec) rate.Limit {
	var unitSeconds float64
	switch spec.Unit {
	case route.UnitMinute:
		unitSeconds = 60
	case route.UnitHour:
		unitSeconds = 3600
	default:
		unitSeconds = 1
	}
	return rate.Limit(float64(spec.Limit) / unitSeconds)
}

// Registry holds one routeLimiter per configured route. If a route carries
// no RateLimitSpec, Admit always allows.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]*routeLimiter
	stopCh chan struct{}
}

// NewRegistry returns an empty registry. Call Sync once a Config is loaded
// to populate it.
func NewRegistry() *Registry {
	return &Registry{
		routes: make(map[string]*routeLimiter),
		stopCh: make(chan struct{}),
	}
}

// Configure (re)initializes the bucket set for routeKey from spec. A nil
// spec removes the route's buckets. An unchanged spec is a no-op, so
// in-flight token levels survive reloads that don't touch this route.
func (r *Registry) Configure(routeKey string, spec *route.RateLimitSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if spec == nil {
		delete(r.routes, routeKey)
		return
	}

	if existing, ok := r.routes[routeKey]; ok && existing.spec == *spec {
		return
	}
	r.routes[routeKey] = newRouteLimiter(*spec)
}

// Sync reconciles the registry with the full set of routes from a freshly
// loaded config: routes no longer present lose their buckets.
func (r *Registry) Sync(routes []route.Route) {
	seen := make(map[string]bool, len(routes))
	for _, rt := range routes {
		seen[rt.Key] = true
		r.Configure(rt.Key, rt.RateLimit)
	}

	r.mu.Lock()
	for key := range r.routes {
		if !seen[key] {
			delete(r.routes, key)
		}
	}
	r.mu.Unlock()
}

// Admit reports whether a request for routeKey from host|ip may proceed,
// refilling the bucket for wall-clock elapsed time and then attempting to
// consume one token. A route with no configured spec always admits.
func (r *Registry) Admit(routeKey, host, ip string) bool {
	r.mu.RLock()
	rl, ok := r.routes[routeKey]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return rl.admit(host+"|"+ip, time.Now())
}

// StartSweeper launches a background goroutine that drops buckets unused
// for longer than maxIdle, freeing memory for routes that have gone quiet.
// This is pure memory hygiene: a swept bucket is simply recreated full on
// next use, identical to a never-seen key.
func (r *Registry) StartSweeper(interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				r.sweep(maxIdle)
			case <-r.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (r *Registry) sweep(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rl := range r.routes {
		rl.sweep(cutoff)
	}
}

// Stop terminates the sweeper goroutine, if one was started.
func (r *Registry) Stop() {
	close(r.stopCh)
}
