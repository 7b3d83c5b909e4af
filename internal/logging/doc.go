// Package logging provides structured logging for stackprobe.
//
// # Overview
//
// Logger wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Optional OpenTelemetry log bridge output
//   - Automatic context field injection (trace_id, session, detection run)
//   - Redaction of sensitive keys, including the detection debug trace
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "detection complete", zap.String("framework_primary", "react"))
//
// # Debug Traces
//
// Signal ids are treated as fingerprinting detail. The field named
// "debug_signals" is redacted by the encoder unless the config explicitly
// allows it, which only development builds do.
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//
// Logger is safe for concurrent use.
package logging
