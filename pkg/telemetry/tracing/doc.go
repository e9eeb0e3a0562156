// Package tracing provides OpenTelemetry tracing for callisto.
//
// Every pass is a "callisto.pass" span and every dispatched action a
// "callisto.dispatch" child span carrying the rule, action, file and
// outcome. Requests of the PID and replication clients carry the W3C
// traceparent header of the active span.
//
// Spans are exported over OTLP gRPC:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: "otel-collector:4317"
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.25
//
// Usage:
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithVersion(version))
//	defer tracer.Shutdown(context.Background())
//	eng, err := engine.NewEngine(engineCfg, env, table, engine.WithTracer(tracer.Tracer()))
package tracing
