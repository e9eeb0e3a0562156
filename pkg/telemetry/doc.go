// Package telemetry groups the observability packages of callisto.
//
// # Components
//
//   - logging: slog handlers carrying pass, file and rule context, with
//     credential redaction
//   - metrics: Prometheus collectors fed from pass reports
//   - tracing: OpenTelemetry spans for passes and action dispatch
//   - health: liveness and readiness endpoints for the daemon
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(ctx)
//
//	eng, err := engine.NewEngine(engineCfg, env, table,
//		engine.WithObserver(collector),
//		engine.WithObserver(tracker),
//		engine.WithTracer(tracer.Tracer()),
//	)
//
// The metrics and health handlers share the listener configured by
// telemetry.metrics.listen_address.
package telemetry
