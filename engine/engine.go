package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/thedtvn/reverseproxy/adapters/idgen"
	"github.com/thedtvn/reverseproxy/config"
	"github.com/thedtvn/reverseproxy/domain/clientip"
	"github.com/thedtvn/reverseproxy/domain/plugin"
	"github.com/thedtvn/reverseproxy/domain/ratelimit"
	"github.com/thedtvn/reverseproxy/domain/reputation"
	"github.com/thedtvn/reverseproxy/ports"
)

const (
	maxRequestBody  = 10 << 20
	maxResponseBody = 25 << 20
)

// Metrics is the narrow surface the engine reports through. Defined here,
// not imported from adapters/metrics, so the engine package stays free of
// a direct prometheus dependency; *metrics.Collector satisfies it.
type Metrics interface {
	ObserveRequest(outcome string, elapsed time.Duration)
	ReputationBlock()
	RateLimitDeny(route string)
	UpstreamDialObserve(route string, elapsed time.Duration)
	UpstreamDialError()
	UpgradeStart()
	UpgradeEnd()
}

// Engine implements the host-routed reverse proxy algorithm: client IP
// resolution, the reputation gate, route lookup, rate-limit admission,
// the plugin pipeline, upstream connect-and-forward, and protocol-upgrade
// handoff to the Splicer.
type Engine struct {
	holder     *config.Holder
	rateLimits *ratelimit.Registry
	reputation *reputation.Client
	plugins    *plugin.Registry
	metrics    Metrics
	logger     zerolog.Logger
	idgen      ports.IDGenerator

	dialTimeout time.Duration
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithIDGenerator overrides the per-request ID generator, which defaults to
// idgen.UUID. Tests use idgen.Sequential to assert on request IDs.
func WithIDGenerator(g ports.IDGenerator) Option {
	return func(e *Engine) { e.idgen = g }
}

// New builds an Engine. metrics may be nil to disable metrics reporting.
func New(holder *config.Holder, rateLimits *ratelimit.Registry, rep *reputation.Client, plugins *plugin.Registry, m Metrics, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		holder:      holder,
		rateLimits:  rateLimits,
		reputation:  rep,
		plugins:     plugins,
		metrics:     m,
		logger:      logger,
		idgen:       idgen.UUID{},
		dialTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := e.idgen.New()
	logger := e.logger.With().Str("request_id", requestID).Str("remote", r.RemoteAddr).Logger()
	w.Header().Set("X-Request-ID", requestID)

	ip := clientip.Resolve(r)
	cfg := e.holder.Get()

	host := r.Host
	if host == "" {
		e.deny(w, logger, start, "missing_host", http.StatusBadRequest, "")
		return
	}

	rt, found := cfg.Find(host)

	gate := cfg.ReputationGateGlobal || (found && rt.ReputationGate)
	if gate && e.reputation != nil {
		if e.reputation.Classify(r.Context(), ip) {
			if e.metrics != nil {
				e.metrics.ReputationBlock()
			}
			e.deny(w, logger, start, "reputation_blocked", http.StatusForbidden, "Your IP address is on blacklisted.")
			return
		}
	}

	var forwardTo *string
	var pluginNames []string
	routeKey := "unmatched"

	if found {
		routeKey = rt.Key
		upstream := rt.Upstream
		forwardTo = &upstream
		pluginNames = rt.Plugins

		if !e.rateLimits.Admit(rt.Key, host, ip) {
			if e.metrics != nil {
				e.metrics.RateLimitDeny(routeKey)
			}
			e.deny(w, logger, start, "rate_limited", http.StatusTooManyRequests, "")
			return
		}
	} else if e.plugins.Len() > 0 {
		pluginNames = e.plugins.AllNames()
	} else {
		e.deny(w, logger, start, "no_route", http.StatusBadGateway, "")
		return
	}

	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, _ = io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		r.Body.Close()
	}

	reqView := &plugin.RequestView{
		Method:    r.Method,
		URI:       r.URL.RequestURI(),
		Header:    r.Header.Clone(),
		Body:      bodyBytes,
		ForwardTo: forwardTo,
		Cache:     make(map[string]string),
	}

	e.plugins.RunRequestPhase(r.Context(), pluginNames, reqView, logger)

	if reqView.ForwardTo == nil {
		e.deny(w, logger, start, "no_upstream", http.StatusNotImplemented, "")
		return
	}
	target := *reqView.ForwardTo

	dialStart := time.Now()
	upstreamConn, err := net.DialTimeout("tcp", target, e.dialTimeout)
	if e.metrics != nil {
		e.metrics.UpstreamDialObserve(routeKey, time.Since(dialStart))
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.UpstreamDialError()
		}
		logger.Error().Err(err).Str("target", target).Msg("upstream dial failed")
		e.deny(w, logger, start, "dial_failed", http.StatusBadGateway, "Gateway error")
		return
	}
	defer upstreamConn.Close()

	outReq, err := buildUpstreamRequest(r, reqView, target, ip)
	if err != nil {
		logger.Error().Err(err).Msg("could not build upstream request")
		e.deny(w, logger, start, "bad_forward_uri", http.StatusBadGateway, "Gateway error")
		return
	}

	if err := outReq.Write(upstreamConn); err != nil {
		logger.Error().Err(err).Msg("failed writing request to upstream")
		e.deny(w, logger, start, "upstream_write_failed", http.StatusBadGateway, "Gateway error")
		return
	}

	br := bufio.NewReader(upstreamConn)
	resp, err := http.ReadResponse(br, outReq)
	if err != nil {
		logger.Error().Err(err).Msg("failed reading upstream response")
		e.deny(w, logger, start, "upstream_read_failed", http.StatusBadGateway, "Gateway error")
		return
	}

	if resp.StatusCode == http.StatusSwitchingProtocols {
		e.handleUpgrade(w, r, resp, upstreamConn, pluginNames, reqView.Cache, logger, start)
		return
	}

	var respBody []byte
	if resp.Body != nil {
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		resp.Body.Close()
	}

	respView := &plugin.ResponseView{Status: resp.StatusCode, Header: resp.Header, Body: respBody, Cache: reqView.Cache}
	e.plugins.RunResponsePhase(r.Context(), pluginNames, respView, logger)

	writeResponse(w, respView.Status, respView.Header, respView.Body)
	e.logOutcome(logger, start, "forwarded", respView.Status)
}

func (e *Engine) handleUpgrade(w http.ResponseWriter, r *http.Request, resp *http.Response, upstreamConn net.Conn, pluginNames []string, cache map[string]string, logger zerolog.Logger, start time.Time) {
	respView := &plugin.ResponseView{Status: resp.StatusCode, Header: resp.Header, Body: nil, Cache: cache}
	e.plugins.RunResponsePhase(r.Context(), pluginNames, respView, logger)

	if respView.Status != http.StatusSwitchingProtocols {
		writeResponse(w, respView.Status, respView.Header, respView.Body)
		e.logOutcome(logger, start, "forwarded", respView.Status)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		logger.Error().Msg("response writer does not support hijacking, cannot complete protocol upgrade")
		e.deny(w, logger, start, "hijack_unsupported", http.StatusBadGateway, "Gateway error")
		return
	}
	clientConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		logger.Error().Err(err).Msg("hijack failed")
		return
	}

	if err := writeResponseHead(bufrw.Writer, resp.Proto, resp.Status, respView.Header); err != nil {
		logger.Error().Err(err).Msg("failed writing upgrade response to client")
		clientConn.Close()
		return
	}

	var preface []byte
	if n := bufrw.Reader.Buffered(); n > 0 {
		preface, _ = bufrw.Reader.Peek(n)
		bufrw.Reader.Discard(n)
	}

	if e.metrics != nil {
		e.metrics.UpgradeStart()
	}
	e.logOutcome(logger, start, "upgraded", resp.StatusCode)

	Splice(clientConn, upstreamConn, preface, logger)

	if e.metrics != nil {
		e.metrics.UpgradeEnd()
	}
}

func buildUpstreamRequest(r *http.Request, view *plugin.RequestView, target, ip string) (*http.Request, error) {
	u, err := url.Parse(view.URI)
	if err != nil {
		return nil, fmt.Errorf("parse forward URI: %w", err)
	}

	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""
	outReq.Method = view.Method
	outReq.URL.Scheme = "http"
	outReq.URL.Host = target
	outReq.URL.Path = u.Path
	outReq.URL.RawQuery = u.RawQuery
	outReq.Header = view.Header.Clone()
	outReq.Header.Set("X-Forwarded-For", ip)
	outReq.Body = io.NopCloser(bytes.NewReader(view.Body))
	outReq.ContentLength = int64(len(view.Body))
	return outReq, nil
}

func writeResponse(w http.ResponseWriter, status int, header http.Header, body []byte) {
	dst := w.Header()
	for k, vs := range header {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	dst.Set("Content-Length", strconv.Itoa(len(body)))
	dst.Del("Transfer-Encoding")
	w.WriteHeader(status)
	if len(body) > 0 {
		w.Write(body)
	}
}

func writeResponseHead(bw *bufio.Writer, proto, status string, header http.Header) error {
	if _, err := fmt.Fprintf(bw, "%s %s\r\n", proto, status); err != nil {
		return err
	}
	if err := header.Write(bw); err != nil {
		return err
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func (e *Engine) deny(w http.ResponseWriter, logger zerolog.Logger, start time.Time, outcome string, status int, body string) {
	header := http.Header{}
	var b []byte
	if body != "" {
		header.Set("Content-Type", "text/plain; charset=utf-8")
		b = []byte(body)
	}
	writeResponse(w, status, header, b)
	e.logOutcome(logger, start, outcome, status)
}

func (e *Engine) logOutcome(logger zerolog.Logger, start time.Time, outcome string, status int) {
	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.ObserveRequest(outcome, elapsed)
	}
	logger.Info().
		Str("outcome", outcome).
		Int("status", status).
		Dur("duration", elapsed).
		Msg("request handled")
}
