package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore creates a core writing to stdout (or stderr) and/or the OTEL
// log bridge.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Stdout {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		out := os.Stdout
		if cfg.Output.Stderr {
			out = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(out), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		var core zapcore.Core = otelzap.NewCore("stackprobe",
			otelzap.WithLoggerProvider(otelProvider),
		)
		if !cfg.Redaction.AllowDebugSignals {
			core = &dropFieldCore{Core: core, key: DebugSignalsField}
		}
		cores = append(cores, core)
	}

	switch len(cores) {
	case 0:
		return nil, fmt.Errorf("at least one output must be enabled and available")
	case 1:
		return cores[0], nil
	default:
		return zapcore.NewTee(cores...), nil
	}
}

// dropFieldCore removes one field before entries reach the wrapped core.
type dropFieldCore struct {
	zapcore.Core
	key string
}

func (c *dropFieldCore) With(fields []zapcore.Field) zapcore.Core {
	return &dropFieldCore{Core: c.Core.With(c.filter(fields)), key: c.key}
}

func (c *dropFieldCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *dropFieldCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(e, c.filter(fields))
}

func (c *dropFieldCore) filter(fields []zapcore.Field) []zapcore.Field {
	out := fields[:0:0]
	for _, f := range fields {
		if f.Key != c.key {
			out = append(out, f)
		}
	}
	return out
}
