package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/stackprobe/internal/signal"
)

func newCatalogCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog [signal-id]",
		Short: "List the signals the detector evaluates",
		Long: `List the builtin signals plus any custom signals loaded from
detection.catalog_path. With --production only production-safe signals
are shown. Given a signal id, only that signal is shown.

Signals with the same evidence key read the same extension and count once
toward confidence.

Examples:
  stackprobe catalog
  stackprobe catalog --production --json
  stackprobe catalog react-devtools-renderers`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			registry, err := loadRegistry(cfg.Detection.CatalogPath)
			if err != nil {
				return err
			}

			signals := registry.All()
			if cfg.Detection.Production {
				signals = registry.Runnable(true)
			}
			if len(args) == 1 {
				s, ok := registry.Lookup(args[0])
				if !ok {
					return fmt.Errorf("unknown signal %q", args[0])
				}
				signals = []signal.Signal{s}
			}

			if asJSON {
				infos := make([]catalogEntry, 0, len(signals))
				for _, s := range signals {
					infos = append(infos, catalogEntry{
						ID:             s.ID,
						Category:       string(s.Category),
						Label:          s.Label,
						Weight:         s.Weight,
						ProductionSafe: s.ProductionSafe,
						Evidence:       s.Evidence(),
					})
				}
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			renderCatalog(cmd.OutOrStdout(), signals)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}

type catalogEntry struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	Label          string `json:"label"`
	Weight         int    `json:"weight"`
	ProductionSafe bool   `json:"production_safe"`
	Evidence       string `json:"evidence"`
}

func newResetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the completed detection for this session",
		Long: `Reset deletes the persisted session record so the next detect runs a
fresh pass. Only meaningful with the file or nats session backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			a.guard.Reset(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "session reset (%s backend)\n", cfg.Session.Backend)
			return nil
		},
	}
}
