package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackprobe/internal/dedup"
	"github.com/fyrsmithlabs/stackprobe/internal/logging"
	"github.com/fyrsmithlabs/stackprobe/internal/scoring"
	"github.com/fyrsmithlabs/stackprobe/internal/sink"
)

const instrumentationName = "github.com/fyrsmithlabs/stackprobe/internal/orchestrator"

// Defaults for scheduling.
const (
	DefaultIdleTimeout   = 5 * time.Second
	DefaultFallbackDelay = 1500 * time.Millisecond
)

// Scheduler is the host's "run when idle" primitive. timeout bounds how long
// the host may wait for an idle period.
type Scheduler interface {
	Schedule(fn func(), timeout time.Duration)
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(fn func(), timeout time.Duration)

// Schedule calls f.
func (f SchedulerFunc) Schedule(fn func(), timeout time.Duration) {
	f(fn, timeout)
}

// Detector is the public entry point of the engine.
type Detector struct {
	engine  *scoring.Engine
	guard   *dedup.Guard
	adapter *sink.Adapter

	production    bool
	scheduler     Scheduler
	idleTimeout   time.Duration
	fallbackDelay time.Duration
	logger        *logging.Logger
	tracer        trace.Tracer
	metrics       *Metrics
}

// Option configures a Detector.
type Option func(*Detector)

// WithProduction selects production-safe signals and disables debug output.
func WithProduction(production bool) Option {
	return func(d *Detector) { d.production = production }
}

// WithScheduler sets the idle scheduler. Without one, Init falls back to a
// fixed delay.
func WithScheduler(s Scheduler) Option {
	return func(d *Detector) { d.scheduler = s }
}

// WithIdleTimeout sets the ceiling passed to the scheduler.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(d *Detector) {
		if timeout > 0 {
			d.idleTimeout = timeout
		}
	}
}

// WithFallbackDelay sets the delay used when no scheduler is available.
func WithFallbackDelay(delay time.Duration) Option {
	return func(d *Detector) {
		if delay > 0 {
			d.fallbackDelay = delay
		}
	}
}

// WithLogger sets the detector logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTracer sets the tracer for detection spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Detector) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// New creates a detector. The engine, guard and adapter should share the
// same recorder; New does not rewire them.
func New(engine *scoring.Engine, guard *dedup.Guard, adapter *sink.Adapter, opts ...Option) *Detector {
	if engine == nil {
		engine = scoring.NewEngine(nil, nil)
	}
	if guard == nil {
		guard = dedup.NewGuard(nil)
	}
	if adapter == nil {
		adapter = sink.NewAdapter(nil)
	}
	d := &Detector{
		engine:        engine,
		guard:         guard,
		adapter:       adapter,
		idleTimeout:   DefaultIdleTimeout,
		fallbackDelay: DefaultFallbackDelay,
		logger:        logging.NewNop(),
		tracer:        otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Guard returns the session guard, for Reset and AllowNext in tests and
// tooling.
func (d *Detector) Guard() *dedup.Guard {
	return d.guard
}

// DetectOption modifies a single Detect or Init call.
type DetectOption func(*detectOptions)

type detectOptions struct {
	force bool
}

// WithForce re-evaluates even if this session already completed.
func WithForce() DetectOption {
	return func(o *detectOptions) { o.force = true }
}

func resolveOptions(opts []DetectOption) detectOptions {
	var o detectOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// result is one pass as seen by Init.
type result struct {
	traits  scoring.Traits
	ran     bool
	changed bool
}

// Detect runs a detection pass and returns its traits. A skipped pass
// returns placeholder traits. Detect never panics.
func (d *Detector) Detect(ctx context.Context, opts ...DetectOption) scoring.Traits {
	return d.detect(ctx, resolveOptions(opts)).traits
}

func (d *Detector) detect(ctx context.Context, o detectOptions) (res result) {
	ctx = logging.WithRunID(ctx, uuid.New().String())
	ctx, span := d.tracer.Start(ctx, "stackprobe.detect",
		trace.WithAttributes(
			attribute.Bool("stackprobe.force", o.force),
			attribute.Bool("stackprobe.production", d.production),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			res = result{traits: scoring.Placeholder()}
			d.recordDetection(OutcomeFailed)
			span.SetStatus(codes.Error, "detection panicked")
			span.SetAttributes(attribute.String("stackprobe.outcome", OutcomeFailed))
			d.logger.Debug(ctx, "detection panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()

	if o.force {
		d.guard.AllowNext()
	}
	if d.guard.ShouldSkip(ctx) {
		d.recordDetection(OutcomeSkipped)
		span.SetAttributes(attribute.String("stackprobe.outcome", OutcomeSkipped))
		d.logger.Debug(ctx, "detection already completed this session")
		return result{traits: scoring.Placeholder()}
	}

	start := time.Now()
	dc := d.engine.BuildContext(ctx, d.production)
	traits := d.engine.Score(ctx, dc)
	if d.metrics != nil {
		d.metrics.ObserveDuration(time.Since(start).Seconds())
	}

	// novelty has to be read before MarkComplete replaces the cached hash
	changed := d.guard.HasTraitsChanged(traits)
	d.guard.MarkComplete(ctx, traits)

	d.recordDetection(OutcomeDetected)
	span.SetAttributes(
		attribute.String("stackprobe.outcome", OutcomeDetected),
		attribute.String("stackprobe.framework_primary", traits.FrameworkPrimary),
		attribute.String("stackprobe.confidence", string(traits.Confidence)),
		attribute.Bool("stackprobe.changed", changed),
	)
	return result{traits: traits, ran: true, changed: changed}
}

func (d *Detector) recordDetection(outcome string) {
	if d.metrics != nil {
		d.metrics.RecordDetection(outcome)
	}
}

// Init schedules detection for host idle time and returns without
// blocking. It does nothing without an environment, or, unless forced,
// when this session already completed.
func (d *Detector) Init(ctx context.Context, opts ...DetectOption) *Handle {
	o := resolveOptions(opts)
	h := newHandle()

	if !d.engine.BuildContext(ctx, d.production).HasEnvironment() {
		h.finish(Outcome{Reason: ReasonNoEnvironment})
		return h
	}
	if !o.force && d.guard.Completed(ctx) {
		h.finish(Outcome{Reason: ReasonAlreadyDetected})
		return h
	}

	// the run may fire after the caller's context is done
	runCtx := context.WithoutCancel(ctx)
	var once sync.Once
	run := func() {
		once.Do(func() { h.finish(d.run(runCtx, o)) })
	}

	h.scheduled = true
	d.schedule(runCtx, run)
	return h
}

func (d *Detector) schedule(ctx context.Context, run func()) {
	if d.scheduler != nil {
		scheduled := func() (ok bool) {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Debug(ctx, "scheduler panicked, using fallback delay",
						zap.String("panic", fmt.Sprint(r)))
				}
			}()
			d.scheduler.Schedule(run, d.idleTimeout)
			return true
		}()
		if scheduled {
			return
		}
	}
	time.AfterFunc(d.fallbackDelay, run)
}

// run is the scheduled callback body.
func (d *Detector) run(ctx context.Context, o detectOptions) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug(ctx, "scheduled detection panicked", zap.String("panic", fmt.Sprint(r)))
			out = Outcome{Reason: ReasonFailed}
		}
	}()

	res := d.detect(ctx, o)
	out = Outcome{Traits: res.traits, Ran: res.ran, Changed: res.changed}
	switch {
	case !res.ran:
		out.Reason = ReasonAlreadyDetected
	case o.force && !res.changed:
		out.Reason = ReasonUnchanged
	default:
		out.Delivery = d.adapter.SendTraits(ctx, res.traits, !d.production)
		out.Delivered = out.Delivery == sink.ResultSent
		if out.Delivered {
			out.Reason = ReasonDelivered
		} else {
			out.Reason = ReasonNotDelivered
		}
	}
	return out
}
