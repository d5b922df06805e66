// Package bootstrap wires the proxy's dependencies together and runs the
// two HTTP servers: the proxy listener and the admin/observability
// listener. Only the config path and a handful of process-level knobs
// come from flags/env; everything else is read from the routing config
// file, including hot-reloadable fields.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	adminadapter "github.com/thedtvn/reverseproxy/adapters/admin"
	"github.com/thedtvn/reverseproxy/adapters/metrics"
	"github.com/thedtvn/reverseproxy/config"
	"github.com/thedtvn/reverseproxy/domain/plugin"
	"github.com/thedtvn/reverseproxy/domain/ratelimit"
	"github.com/thedtvn/reverseproxy/domain/reputation"
	"github.com/thedtvn/reverseproxy/domain/route"
	"github.com/thedtvn/reverseproxy/engine"
)

// Options configures a bootstrapped App. Everything here comes from CLI
// flags or environment, never from the routing config file.
type Options struct {
	ConfigPath string
	AdminAddr  string
	LogLevel   string
	LogFormat  string
	// Plugins lets the caller register statically-linked plugin
	// implementations before the server starts.
	Plugins []plugin.Plugin
}

// App is the fully wired, runnable proxy.
type App struct {
	Logger zerolog.Logger

	Holder     *config.Holder
	RateLimits *ratelimit.Registry
	Reputation *reputation.Cache
	Plugins    *plugin.Registry
	Metrics    *metrics.Collector

	ProxyServer *http.Server
	AdminServer *http.Server
}

// New loads the routing config and wires every component. It does not
// start listening; call Run for that.
func New(opts Options) (*App, error) {
	logger := setupLogger(opts.LogLevel, opts.LogFormat)

	mc := metrics.New()

	holder, err := config.NewHolder(opts.ConfigPath, logger, mc)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	rateLimits := ratelimit.NewRegistry()
	rateLimits.Sync(holder.Get().Routes)
	rateLimits.StartSweeper(time.Minute, 10*time.Minute)

	repCache := reputation.NewCache()
	repCache.StartSweeper(30 * time.Second)
	repClient := reputation.NewClient(repCache, logger, mc)

	plugins := plugin.NewRegistry()
	for _, p := range opts.Plugins {
		plugins.Register(p)
	}

	// Keep rate-limit bucket sets in sync with every reload: routes
	// dropped from the config lose their buckets, new routes start fresh.
	holder.OnChange(func(cfg *route.Config) { rateLimits.Sync(cfg.Routes) })

	eng := engine.New(holder, rateLimits, repClient, plugins, mc, logger)

	proxyAddr := holder.Get().Bind
	proxyServer := &http.Server{
		Addr:         proxyAddr,
		Handler:      eng,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // upgraded connections may run indefinitely
	}

	adminHandler := adminadapter.NewHandler(holder, nil)
	adminAddr := opts.AdminAddr
	if adminAddr == "" {
		adminAddr = "127.0.0.1:9090"
	}
	adminServer := &http.Server{
		Addr:         adminAddr,
		Handler:      adminHandler.Mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	holder.Start()

	return &App{
		Logger:      logger,
		Holder:      holder,
		RateLimits:  rateLimits,
		Reputation:  repCache,
		Plugins:     plugins,
		Metrics:     mc,
		ProxyServer: proxyServer,
		AdminServer: adminServer,
	}, nil
}

// Run starts both servers and blocks until an interrupt or server error.
func (a *App) Run() error {
	errCh := make(chan error, 2)

	go func() {
		a.Logger.Info().Str("addr", a.ProxyServer.Addr).Msg("starting proxy listener")
		if err := a.ProxyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("proxy server: %w", err)
		}
	}()
	go func() {
		a.Logger.Info().Str("addr", a.AdminServer.Addr).Msg("starting admin listener")
		if err := a.AdminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops both servers and background loops.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.ProxyServer.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("proxy server shutdown error")
	}
	if err := a.AdminServer.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("admin server shutdown error")
	}

	a.Holder.Stop()
	a.RateLimits.Stop()
	a.Reputation.Stop()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(level, format string) zerolog.Logger {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
