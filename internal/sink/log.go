package sink

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/stackprobe/internal/logging"
)

// LogClient writes deliveries to the structured logger. It is always ready.
type LogClient struct {
	logger *logging.Logger
}

// NewLogClient creates a client that logs at info level.
func NewLogClient(logger *logging.Logger) *LogClient {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogClient{logger: logger.Named("sink")}
}

func (c *LogClient) IsReady() bool { return true }

func (c *LogClient) CaptureEvent(ctx context.Context, name string, props EventProperties) error {
	c.logger.Info(ctx, "analytics event",
		zap.String("event", name),
		zap.Object("properties", eventMarshaler(props)))
	return nil
}

func (c *LogClient) SetProfileTraits(ctx context.Context, traits ProfileTraits) error {
	c.logger.Info(ctx, "analytics profile traits",
		zap.String(ProfilePrefix+"framework_primary", traits.FrameworkPrimary),
		zap.String(ProfilePrefix+"framework_meta", traits.FrameworkMeta),
		zap.String(ProfilePrefix+"state_management", traits.StateManagement),
		zap.String(ProfilePrefix+"data_layer", traits.DataLayer),
		zap.String(ProfilePrefix+"confidence", traits.Confidence),
		zap.String(ProfilePrefix+"detector_version", traits.DetectorVersion))
	return nil
}

type eventMarshaler EventProperties

func (e eventMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("framework_primary", e.FrameworkPrimary)
	if len(e.FrameworkMeta) > 0 {
		_ = enc.AddArray("framework_meta", zapcore.ArrayMarshalerFunc(stringArray(e.FrameworkMeta)))
	}
	_ = enc.AddArray("state_management", zapcore.ArrayMarshalerFunc(stringArray(e.StateManagement)))
	_ = enc.AddArray("data_layer", zapcore.ArrayMarshalerFunc(stringArray(e.DataLayer)))
	enc.AddString("confidence", e.Confidence)
	enc.AddString("detector_version", e.DetectorVersion)
	return nil
}

func stringArray(values []string) func(zapcore.ArrayEncoder) error {
	return func(enc zapcore.ArrayEncoder) error {
		for _, v := range values {
			enc.AppendString(v)
		}
		return nil
	}
}
