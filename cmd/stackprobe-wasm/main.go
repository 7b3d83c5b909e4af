//go:build js && wasm

// Stackprobe-wasm is the browser build of the detector.
//
// Loaded on a page, it schedules one detection pass for idle time, keeps the
// session record in sessionStorage, and hands the traits to window.posthog.
// It also exposes window.stackprobe for manual checks from the console:
//
//	stackprobe.detect()      // returns traits, placeholder if already done
//	stackprobe.detect(true)  // forced re-evaluation
//	stackprobe.reset()       // forget this session
//
// Build:
//
//	GOOS=js GOARCH=wasm go build -ldflags "-X main.production=true" -o stackprobe.wasm ./cmd/stackprobe-wasm
package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/stackprobe/internal/browser"
	"github.com/fyrsmithlabs/stackprobe/internal/dedup"
	"github.com/fyrsmithlabs/stackprobe/internal/logging"
	"github.com/fyrsmithlabs/stackprobe/internal/orchestrator"
	"github.com/fyrsmithlabs/stackprobe/internal/scoring"
	"github.com/fyrsmithlabs/stackprobe/internal/sink"
)

// production is set via ldflags for release builds.
var production = "false"

func main() {
	ctx := context.Background()
	prod := production == "true"

	logger := newLogger(prod)
	source := scoring.SourceFunc(browser.Live)
	metrics := orchestrator.NewMetrics()

	opts := []orchestrator.Option{
		orchestrator.WithProduction(prod),
		orchestrator.WithLogger(logger.Named("detector")),
		orchestrator.WithMetrics(metrics),
	}
	if idle := browser.NewIdleScheduler(); idle != nil {
		opts = append(opts, orchestrator.WithScheduler(idle))
	}

	d := orchestrator.New(
		scoring.NewEngine(nil, source,
			scoring.WithLogger(logger.Named("scoring")),
			scoring.WithRecorder(metrics)),
		dedup.NewGuard(browser.SessionStorage{},
			dedup.WithLogger(logger.Named("dedup")),
			dedup.WithErrorRecorder(metrics)),
		sink.NewAdapter(browser.PostHogClient{},
			sink.WithLogger(logger.Named("sink")),
			sink.WithRecorder(metrics)),
		opts...,
	)

	expose(ctx, d)
	d.Init(ctx)

	// callbacks registered with js.FuncOf need the runtime alive
	select {}
}

func newLogger(prod bool) *logging.Logger {
	cfg := logging.NewDevelopmentConfig()
	if prod {
		cfg = logging.NewDefaultConfig()
		cfg.Level = zapcore.WarnLevel
	}
	cfg.Caller = false
	logger, err := logging.NewLogger(cfg, nil)
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// expose installs window.stackprobe.
func expose(ctx context.Context, d *orchestrator.Detector) {
	api := js.Global().Get("Object").New()

	api.Set("detect", js.FuncOf(func(_ js.Value, args []js.Value) any {
		var opts []orchestrator.DetectOption
		if len(args) > 0 && args[0].Truthy() {
			opts = append(opts, orchestrator.WithForce())
		}
		return toJS(d.Detect(ctx, opts...))
	}))

	api.Set("reset", js.FuncOf(func(js.Value, []js.Value) any {
		d.Guard().Reset(ctx)
		return nil
	}))

	api.Set("version", scoring.Version)
	js.Global().Set("stackprobe", api)
}

func toJS(traits scoring.Traits) any {
	data, err := json.Marshal(traits)
	if err != nil {
		return js.Null()
	}
	return js.Global().Get("JSON").Call("parse", string(data))
}
