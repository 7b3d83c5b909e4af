package scoring

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackprobe/internal/logging"
	"github.com/fyrsmithlabs/stackprobe/internal/signal"
)

// EnvironmentSource provides the live environment for a pass.
// Load returns nil values when no browser environment exists.
type EnvironmentSource interface {
	Load() (signal.Environment, signal.Document)
}

// SourceFunc adapts a function to EnvironmentSource.
type SourceFunc func() (signal.Environment, signal.Document)

// Load calls f.
func (f SourceFunc) Load() (signal.Environment, signal.Document) {
	return f()
}

// Recorder receives per-pass counters. The orchestrator's Prometheus
// metrics implement it.
type Recorder interface {
	RecordMatch(category string)
	RecordProbePanic(signalID string)
}

type nopRecorder struct{}

func (nopRecorder) RecordMatch(string)      {}
func (nopRecorder) RecordProbePanic(string) {}

// Engine runs signals from a registry against an environment.
type Engine struct {
	registry *signal.Registry
	source   EnvironmentSource
	logger   *logging.Logger
	recorder Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder sets the counter sink.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine creates an engine. A nil registry uses the built-in catalog and
// a nil source means there is never an environment.
func NewEngine(registry *signal.Registry, source EnvironmentSource, opts ...Option) *Engine {
	if registry == nil {
		registry = signal.Default()
	}
	e := &Engine{
		registry: registry,
		source:   source,
		logger:   logging.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's signal registry.
func (e *Engine) Registry() *signal.Registry {
	return e.registry
}

// BuildContext snapshots the environment for one pass. A missing or
// panicking source yields a context without environment.
func (e *Engine) BuildContext(ctx context.Context, production bool) (dc signal.Context) {
	dc = signal.Context{Production: production}
	if e.source == nil {
		return dc
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug(ctx, "environment source panicked", zap.String("panic", fmt.Sprint(r)))
			dc = signal.Context{Production: production}
		}
	}()

	env, doc := e.source.Load()
	dc.Env = env
	dc.Doc = doc
	return dc
}

// RunSignals evaluates every runnable signal against dc. A panicking probe
// counts as no match and the pass continues.
func (e *Engine) RunSignals(ctx context.Context, dc signal.Context) []Match {
	if !dc.HasEnvironment() {
		e.logger.Debug(ctx, "no environment, skipping probes")
		return nil
	}

	runnable := e.registry.Runnable(dc.Production)
	matches := make([]Match, 0, len(runnable))
	for _, s := range runnable {
		if e.check(ctx, s, dc) {
			matches = append(matches, Match{Signal: s, Score: s.Weight})
			e.recorder.RecordMatch(string(s.Category))
			e.logger.Trace(ctx, "signal matched",
				zap.String("signal", s.ID),
				zap.Int("score", s.Weight))
		}
	}
	return matches
}

func (e *Engine) check(ctx context.Context, s signal.Signal, dc signal.Context) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			e.recorder.RecordProbePanic(s.ID)
			e.logger.Debug(ctx, "signal probe panicked",
				zap.String("signal", s.ID),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	return s.Check(dc)
}

// Score runs the full pass against dc. Debug output is included outside
// production only.
func (e *Engine) Score(ctx context.Context, dc signal.Context) Traits {
	matches := e.RunSignals(ctx, dc)
	traits := Resolve(Aggregate(matches), matches, !dc.Production)
	e.logger.Debug(ctx, "detection pass scored",
		zap.String("framework_primary", traits.FrameworkPrimary),
		zap.String("confidence", string(traits.Confidence)),
		zap.Int("matches", len(matches)),
		zap.Strings(logging.DebugSignalsField, traits.DebugSignals))
	return traits
}
