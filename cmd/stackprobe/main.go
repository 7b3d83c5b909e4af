// Stackprobe runs the tech-stack detector against recorded page snapshots.
//
// The browser build (cmd/stackprobe-wasm) is the real deployment; this CLI
// drives the same engine, session guard and sink over snapshot files so
// catalogs and sinks can be verified outside a browser.
//
// Usage:
//
//	# Detect, emit to the configured sink, remember the session
//	stackprobe detect testdata/react-redux.yaml
//
//	# Re-run a completed session
//	stackprobe detect --force testdata/react-redux.yaml
//
//	# Serve /health, /metrics and the analysis API
//	stackprobe serve
package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/stackprobe/internal/config"
	"github.com/fyrsmithlabs/stackprobe/internal/scoring"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	production bool
}

func main() {
	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "stackprobe",
		Short: "Infer a visitor's frontend stack from devtools globals",
		Long: `stackprobe probes a page's global environment for the markers browser
devtools extensions inject, scores them per category, and reports the
visitor's likely framework, meta-framework, state and data libraries.

Configuration is read from ~/.config/stackprobe/config.yaml and
STACKPROBE_* environment variables.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/stackprobe/config.yaml)")
	root.PersistentFlags().BoolVar(&opts.production, "production", false, "production mode: safe signals only, no debug traces")

	root.AddCommand(
		newDetectCmd(opts),
		newResetCmd(opts),
		newCatalogCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads configuration and applies flag overrides.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithFile(o.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("production") {
		cfg.Detection.Production = o.production
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "stackprobe by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Detector:   %s\n", scoring.Version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
