// Package admin serves the proxy's observability surface: health checks,
// Prometheus metrics, and a read-only snapshot of the active route table.
// It listens on its own address, separate from the proxy listener, so a
// misbehaving upstream can never block operators from reaching it.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thedtvn/reverseproxy/config"
	"github.com/thedtvn/reverseproxy/domain/route"
)

// Handler serves the admin/observability endpoints.
type Handler struct {
	holder   *config.Holder
	registry http.Handler
}

// NewHandler builds the admin mux. metricsHandler is typically
// promhttp.Handler(), passed in so tests can point it at a private
// registry instead of the global one.
func NewHandler(holder *config.Holder, metricsHandler http.Handler) *Handler {
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	return &Handler{holder: holder, registry: metricsHandler}
}

// Mux builds the chi router exposing /healthz, /metrics, and /debug/routes.
func (h *Handler) Mux() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealthz)
	r.Get("/metrics", h.registry.ServeHTTP)
	r.Get("/debug/routes", h.handleDebugRoutes)
	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type routeView struct {
	Pattern        string `json:"pattern"`
	Upstream       string `json:"upstream"`
	Plugins        []string `json:"plugins,omitempty"`
	ReputationGate bool   `json:"reputation_gate"`
	RateLimited    bool   `json:"rate_limited"`
}

func (h *Handler) handleDebugRoutes(w http.ResponseWriter, r *http.Request) {
	cfg := h.holder.Get()

	out := struct {
		Bind                 string      `json:"bind"`
		ReputationGateGlobal bool        `json:"reputation_gate_global"`
		Routes               []routeView `json:"routes"`
	}{
		Bind:                 cfg.Bind,
		ReputationGateGlobal: cfg.ReputationGateGlobal,
	}

	for _, rt := range cfg.Routes {
		out.Routes = append(out.Routes, toRouteView(rt))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func toRouteView(rt route.Route) routeView {
	return routeView{
		Pattern:        rt.Key,
		Upstream:       rt.Upstream,
		Plugins:        rt.Plugins,
		ReputationGate: rt.ReputationGate,
		RateLimited:    rt.RateLimit != nil,
	}
}
