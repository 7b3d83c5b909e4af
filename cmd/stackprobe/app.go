package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackprobe/internal/config"
	"github.com/fyrsmithlabs/stackprobe/internal/dedup"
	"github.com/fyrsmithlabs/stackprobe/internal/logging"
	"github.com/fyrsmithlabs/stackprobe/internal/orchestrator"
	"github.com/fyrsmithlabs/stackprobe/internal/scoring"
	"github.com/fyrsmithlabs/stackprobe/internal/signal"
	"github.com/fyrsmithlabs/stackprobe/internal/sink"
	"github.com/fyrsmithlabs/stackprobe/internal/telemetry"
)

// app holds the wired components for one CLI invocation.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	metrics   *orchestrator.Metrics
	registry  *signal.Registry
	guard     *dedup.Guard
	client    sink.Client
	sessionID string

	conns []*nats.Conn
}

// newApp builds logging, tracing, the signal catalog and the session
// store from cfg. The caller must Close it.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: orchestrator.NewMetrics(),
	}

	tcfg := telemetry.NewDefaultConfig()
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.Endpoint = cfg.Telemetry.Endpoint
	tcfg.Protocol = cfg.Telemetry.Protocol
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.SampleRate = cfg.Telemetry.SampleRate
	tcfg.Metrics = cfg.Telemetry.Metrics
	if cfg.Telemetry.MetricsInterval > 0 {
		tcfg.MetricsInterval = cfg.Telemetry.MetricsInterval.Duration()
	}
	tcfg.ServiceVersion = version
	tel, err := telemetry.New(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.telemetry = tel

	logger, err := initLogger(cfg)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	if degraded, reason := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, traces disabled", zap.String("reason", reason))
	}

	registry, err := loadRegistry(cfg.Detection.CatalogPath)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.registry = registry

	a.sessionID = cfg.Session.ID
	if a.sessionID == "" {
		a.sessionID = uuid.New().String()
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.guard = dedup.NewGuard(store,
		dedup.WithKey(cfg.Session.Key),
		dedup.WithLogger(logger.Named("dedup")),
		dedup.WithErrorRecorder(a.metrics),
	)

	client, err := a.openSink()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.client = client

	return a, nil
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	lcfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level %q: %w", cfg.Logging.Level, err)
	}
	lcfg.Level = level
	lcfg.Format = cfg.Logging.Format
	lcfg.Output.Stderr = true
	// debug traces only leave the process outside production
	lcfg.Redaction.AllowDebugSignals = !cfg.Detection.Production
	return logging.NewLogger(lcfg, nil)
}

func loadRegistry(path string) (*signal.Registry, error) {
	path, err := config.ExpandHome(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog path: %w", err)
	}
	registry, err := signal.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load custom catalog: %w", err)
	}
	return registry, nil
}

func (a *app) openStore(ctx context.Context) (dedup.Store, error) {
	s := a.cfg.Session
	switch s.Backend {
	case config.BackendFile:
		dir, err := config.ExpandHome(s.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve session dir: %w", err)
		}
		store, err := dedup.NewFileStore(dir, s.TTL.Duration())
		if err != nil {
			return nil, fmt.Errorf("failed to open session dir: %w", err)
		}
		return store, nil
	case config.BackendNATS:
		nc, err := a.connect(s.NATSURL)
		if err != nil {
			return nil, err
		}
		store, err := dedup.NewKVStore(ctx, nc, dedup.KVConfig{
			Bucket:  s.Bucket,
			TTL:     s.TTL.Duration(),
			Session: a.sessionID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open session bucket: %w", err)
		}
		return store, nil
	default:
		return dedup.NewMemoryStore(), nil
	}
}

func (a *app) openSink() (sink.Client, error) {
	s := a.cfg.Sink
	if s.Kind != config.SinkNATS {
		return sink.NewLogClient(a.logger), nil
	}
	var opts []nats.Option
	if s.NATSToken.IsSet() {
		opts = append(opts, nats.Token(s.NATSToken.Value()))
	}
	nc, err := a.connect(s.NATSURL, opts...)
	if err != nil {
		return nil, err
	}
	distinctID := s.DistinctID
	if distinctID == "" {
		distinctID = a.sessionID
	}
	client, err := sink.NewNATSClient(nc, sink.NATSConfig{
		SubjectPrefix: s.SubjectPrefix,
		DistinctID:    distinctID,
		RateLimit:     s.RateLimit,
		Burst:         s.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nats sink: %w", err)
	}
	return client, nil
}

func (a *app) connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	opts = append([]nats.Option{
		nats.Name("stackprobe"),
		nats.Timeout(5 * time.Second),
	}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	a.conns = append(a.conns, nc)
	return nc, nil
}

// detector wires an orchestrator over a snapshot source. Each call builds
// a fresh engine and adapter; the guard is shared so the session holds.
func (a *app) detector(source scoring.EnvironmentSource, opts ...orchestrator.Option) *orchestrator.Detector {
	return a.newDetector(source, a.guard, opts...)
}

// dryRunDetector scores against a throwaway in-memory session.
func (a *app) dryRunDetector(source scoring.EnvironmentSource) *orchestrator.Detector {
	return a.newDetector(source, dedup.NewGuard(dedup.NewMemoryStore()))
}

func (a *app) newDetector(source scoring.EnvironmentSource, guard *dedup.Guard, opts ...orchestrator.Option) *orchestrator.Detector {
	engine := scoring.NewEngine(a.registry, source,
		scoring.WithLogger(a.logger.Named("scoring")),
		scoring.WithRecorder(a.metrics),
	)
	adapter := sink.NewAdapter(a.client,
		sink.WithLogger(a.logger.Named("sink")),
		sink.WithRecorder(a.metrics),
	)
	base := []orchestrator.Option{
		orchestrator.WithProduction(a.cfg.Detection.Production),
		orchestrator.WithIdleTimeout(a.cfg.Detection.IdleTimeout.Duration()),
		orchestrator.WithFallbackDelay(a.cfg.Detection.FallbackDelay.Duration()),
		orchestrator.WithLogger(a.logger.Named("detector")),
		orchestrator.WithTracer(a.telemetry.Tracer("github.com/fyrsmithlabs/stackprobe/cmd/stackprobe")),
		orchestrator.WithMetrics(a.metrics),
	}
	return orchestrator.New(engine, guard, adapter, append(base, opts...)...)
}

// Close flushes and releases everything newApp opened.
func (a *app) Close(ctx context.Context) {
	for _, nc := range a.conns {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	var errs []error
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Sync())
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Debug(ctx, "shutdown incomplete", zap.Error(err))
	}
}
