package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "reverseproxy",
	Short: "Host-routed reverse proxy with rate limiting and reputation gating",
	Long: `reverseproxy is a host-routed HTTP reverse proxy.

It matches incoming requests to an upstream by Host header pattern, applies
per-route token-bucket rate limiting and an optional IP-reputation gate,
runs a plugin pipeline over the request and response, and transparently
passes through WebSocket and other protocol upgrades.

Quick start:
  reverseproxy serve              # start the proxy
  reverseproxy validate           # check a config file without starting`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "routing config file path")
}
