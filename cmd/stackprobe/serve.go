package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackprobe/internal/config"
	stackhttp "github.com/fyrsmithlabs/stackprobe/internal/http"
	"github.com/fyrsmithlabs/stackprobe/internal/signal"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and the snapshot analysis API",
		Long: `Serve starts an HTTP server with:

  GET  /health           liveness and detector version
  GET  /metrics          Prometheus metrics
  GET  /api/v1/catalog   the active signal catalog
  POST /api/v1/detect    score a YAML or JSON snapshot (no session state)

When detection.catalog_path is set the custom catalog is watched and
reloaded on change; a catalog that fails to load keeps the previous one.

The server shuts down gracefully on SIGINT or SIGTERM.`,
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
			defer a.Close(context.WithoutCancel(ctx))

			srv, err := stackhttp.NewServer(a.registry, a.logger.Named("http"), &stackhttp.Config{
				Host:       cfg.Server.Host,
				Port:       cfg.Server.Port,
				Production: cfg.Detection.Production,
			},
				stackhttp.WithRecorder(a.metrics),
				stackhttp.WithHTTPMetrics(stackhttp.NewHTTPMetrics(a.telemetry.Meter(stackhttp.InstrumentationName), a.logger)),
			)
			if err != nil {
				return fmt.Errorf("failed to create http server: %w", err)
			}

			if cfg.Detection.CatalogPath != "" {
				stop, err := watchCatalog(ctx, a, srv)
				if err != nil {
					return err
				}
				defer stop()
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(shutdownCtx, "graceful shutdown failed", zap.Error(err))
				return err
			}
			return <-errCh
		},
	}
}

// watchCatalog swaps the server registry whenever the custom catalog changes.
func watchCatalog(ctx context.Context, a *app, srv *stackhttp.Server) (func(), error) {
	path, err := config.ExpandHome(a.cfg.Detection.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog path: %w", err)
	}
	w, err := signal.NewCatalogWatcher(path)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}

	go func() {
		for r := range w.Reloads() {
			if r.Err != nil {
				a.logger.Warn(ctx, "catalog reload failed, keeping previous catalog", zap.Error(r.Err))
				continue
			}
			srv.SetRegistry(r.Registry)
			a.logger.Info(ctx, "catalog reloaded", zap.Int("signals", r.Registry.Len()))
		}
	}()
	return w.Stop, nil
}
