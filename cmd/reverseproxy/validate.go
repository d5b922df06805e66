package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/thedtvn/reverseproxy/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a routing config without starting the server",
	Long: `Parse the routing config at --config and report any errors: a
missing bind address, an unrecognized rate-limit unit, or a host pattern
that will never match. Exits non-zero on a hard error; a malformed
pattern is reported as a warning since the route still loads, it simply
never matches anything.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	var warnings []string
	logger := zerolog.New(warningCollector{&warnings})

	cfg, err := config.Load(cfgFile, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", cfgFile, err)
	}

	fmt.Printf("%s: ok, bind=%s, %d route(s)\n", cfgFile, cfg.Bind, len(cfg.Routes))
	for _, rt := range cfg.Routes {
		status := "ok"
		if !rt.Pattern.Valid() {
			status = "WARNING: pattern will never match"
		}
		fmt.Printf("  %-30s -> %-30s [%s]\n", rt.Key, rt.Upstream, status)
	}

	for _, w := range warnings {
		fmt.Println("warning:", w)
	}

	return nil
}

// warningCollector adapts zerolog's io.Writer sink to collect lines into a
// slice so validate can print them after the route table, not interleaved
// with it.
type warningCollector struct {
	lines *[]string
}

func (w warningCollector) Write(p []byte) (int, error) {
	*w.lines = append(*w.lines, string(p))
	return len(p), nil
}
