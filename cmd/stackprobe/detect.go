package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackprobe/internal/browser"
	"github.com/fyrsmithlabs/stackprobe/internal/logging"
	"github.com/fyrsmithlabs/stackprobe/internal/orchestrator"
)

type detectOptions struct {
	force  bool
	json   bool
	dryRun bool
}

// immediate treats the CLI as always idle.
var immediate = orchestrator.SchedulerFunc(func(fn func(), _ time.Duration) {
	go fn()
})

func newDetectCmd(root *rootOptions) *cobra.Command {
	opts := &detectOptions{}

	cmd := &cobra.Command{
		Use:   "detect <snapshot>",
		Short: "Detect the tech stack in a recorded page snapshot",
		Long: `Detect runs one detection pass against a YAML or JSON snapshot of a
page's globals and, unless the session already completed, sends the traits
to the configured sink.

A completed session is remembered by the session backend (memory, file or
nats). Later runs report already_detected until --force or "stackprobe
reset". A forced run only re-sends when the traits changed.

Examples:
  # Detect and emit
  stackprobe detect snapshots/react-redux.yaml

  # Score only, never emit or record the session
  stackprobe detect --dry-run snapshots/vue.json

  # Machine-readable output
  stackprobe detect --json snapshots/react-redux.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "re-run even if this session already completed")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "score without session tracking or emission")
	return cmd
}

func runDetect(cmd *cobra.Command, root *rootOptions, opts *detectOptions, path string) error {
	cfg, err := root.loadConfig(cmd)
	if err != nil {
		return err
	}
	snap, err := browser.LoadSnapshot(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	ctx = logging.WithSessionID(ctx, a.sessionID)

	var detectOpts []orchestrator.DetectOption
	if opts.force {
		detectOpts = append(detectOpts, orchestrator.WithForce())
	}

	var report detectReport
	if opts.dryRun {
		traits := a.dryRunDetector(snap).Detect(ctx, detectOpts...)
		report = detectReport{Outcome: "scored", Traits: traits}
	} else {
		h := a.detector(snap, orchestrator.WithScheduler(immediate)).Init(ctx, detectOpts...)
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		report = newDetectReport(h.Wait(), a.guard.CachedHash())
	}

	a.logger.Debug(ctx, "detect finished",
		zap.String("snapshot", snap.Name),
		zap.String("outcome", report.Outcome))

	if opts.json {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	renderReport(cmd.OutOrStdout(), report)
	if report.Outcome == orchestrator.ReasonAlreadyDetected {
		fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("session already completed; use --force or stackprobe reset"))
	}
	return nil
}
