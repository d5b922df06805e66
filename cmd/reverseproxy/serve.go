package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thedtvn/reverseproxy/bootstrap"
)

var (
	pluginsDir string
	adminAddr  string
	logLevel   string
	logFormat  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reverse proxy",
	Long: `Start the reverse proxy.

The server will:
  - Load the routing config from --config (default ./config.yaml)
  - Poll it for changes every 10 seconds and hot-reload routes, rate
    limits, plugin lists, and the reputation gate (the bind address
    requires a restart)
  - Proxy requests to the matched upstream, applying rate limiting,
    the reputation gate, and the plugin pipeline
  - Serve /healthz, /metrics, and /debug/routes on --admin-addr

Examples:
  reverseproxy serve
  reverseproxy serve --config /etc/reverseproxy/config.yaml
  reverseproxy serve --admin-addr 0.0.0.0:9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&pluginsDir, "plugins-dir", "./plugins", "directory plugin implementations are loaded from (statically linked builds only consume this as metadata)")
	serveCmd.Flags().StringVar(&adminAddr, "admin-addr", "127.0.0.1:9090", "address the admin/observability server listens on")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&logFormat, "log-format", "json", "log format: json or console")
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		return fmt.Errorf("no config file at %s: run with --config to point at one", cfgFile)
	}

	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		AdminAddr:  adminAddr,
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		Plugins:    registeredPlugins(),
	})
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}

	app.Logger.Info().Str("plugins_dir", pluginsDir).Msg("plugin directory noted, statically linked plugins only")

	return app.Run()
}
