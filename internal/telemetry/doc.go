// Package telemetry wires the OpenTelemetry tracer and meter providers used
// by goaltrackd and the notification worker.
//
// Spans are created by the progress service (progress.save_goal) and the
// notification pipeline (notify.plan, notify.dispatch). Export goes to an
// OTLP collector over gRPC or HTTP/protobuf.
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Exporter failures never stop the service: the instance degrades and hands
// out the global no-op providers.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
