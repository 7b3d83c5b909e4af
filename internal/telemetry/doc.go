// Package telemetry provides OpenTelemetry tracing for stackprobe.
//
// # Usage
//
//	cfg := telemetry.NewDefaultConfig()
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("stackprobe.orchestrator")
//	ctx, span := tracer.Start(ctx, "stackprobe.detect")
//	defer span.End()
//
// # Error Handling
//
// Telemetry failures never fail detection. If an exporter cannot be created
// the instance is marked degraded and hands out the global (no-op) tracer.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
