// Package telemetry wires OpenTelemetry tracing and metrics for reqengine.
//
// Spans and metrics are exported over OTLP (gRPC or HTTP) to a collector.
// Export is off by default; the pipeline and the HTTP layer still create
// spans against the global provider, which is then a no-op.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, span := tel.Tracer("reqengine.pipeline").Start(ctx, "ProcessDocument")
//	defer span.End()
//
// Configuration:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sampling_rate: 1.0
//
// A collector that cannot be reached never fails startup. The instance
// reports itself degraded through Health instead.
//
// Tests use TestTelemetry, which records in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install(t)
//	// exercise code that calls otel.Tracer(...)
//	tt.AssertSpanExists(t, "ProcessDocument")
package telemetry
