// Package plugin defines the request/response plugin ABI and a registry
// of statically linked implementations selected by name. Dynamic
// shared-library loading is not implemented here; this is the in-process
// substitute the core dispatches to, per a route's configured plugin list.
package plugin

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// RequestView gives a plugin mutable access to the in-flight request. A
// nil ForwardTo means no route was resolved; a plugin may set it to direct
// the request to an upstream of its choosing.
type RequestView struct {
	Method    string
	URI       string
	Header    http.Header
	Body      []byte
	ForwardTo *string
	Cache     map[string]string
}

// ResponseView gives a plugin mutable access to the upstream response
// before it is relayed to the client.
type ResponseView struct {
	Status int
	Header http.Header
	Body   []byte
	Cache  map[string]string
}

// Plugin observes and may mutate a request and its response.
type Plugin interface {
	Name() string
	OnRequest(ctx context.Context, view *RequestView)
	OnResponse(ctx context.Context, view *ResponseView)
}

// Registry maps plugin names to implementations. Plugins are registered
// once at startup by whatever compiles them in; Route.Plugins selects
// among them by name per request.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
}

// NewRegistry returns an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin, keyed by its own Name(). Registering a name
// twice replaces the previous implementation.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[p.Name()]; !exists {
		r.order = append(r.order, p.Name())
	}
	r.plugins[p.Name()] = p
}

func (r *Registry) lookup(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Len reports how many plugins are registered. The engine treats a
// non-zero Len as "plugins are in use" for the no-route branch of §4.I.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// AllNames returns every registered plugin name in registration order.
// Used when no route matched: there is no per-route list to fall back to,
// so every compiled-in plugin gets a chance to set ForwardTo.
func (r *Registry) AllNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// RunRequestPhase invokes OnRequest for each named plugin in order. An
// unknown name is logged and skipped. A panicking plugin is isolated:
// logged, and the remaining plugins still run against the current view.
func (r *Registry) RunRequestPhase(ctx context.Context, names []string, view *RequestView, logger zerolog.Logger) {
	for _, name := range names {
		p, ok := r.lookup(name)
		if !ok {
			logger.Warn().Str("plugin", name).Msg("unknown plugin name in route config")
			continue
		}
		runIsolated(logger, name, "request", func() { p.OnRequest(ctx, view) })
	}
}

// RunResponsePhase invokes OnResponse for each named plugin in order, with
// the same panic isolation as RunRequestPhase.
func (r *Registry) RunResponsePhase(ctx context.Context, names []string, view *ResponseView, logger zerolog.Logger) {
	for _, name := range names {
		p, ok := r.lookup(name)
		if !ok {
			logger.Warn().Str("plugin", name).Msg("unknown plugin name in route config")
			continue
		}
		runIsolated(logger, name, "response", func() { p.OnResponse(ctx, view) })
	}
}

func runIsolated(logger zerolog.Logger, name, phase string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Str("plugin", name).
				Str("phase", phase).
				Interface("panic", rec).
				Msg("plugin panicked, continuing with remaining plugins")
		}
	}()
	fn()
}
