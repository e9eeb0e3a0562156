// Package metrics provides Prometheus metrics for callisto.
//
// # Metrics
//
//   - callisto_passes_total{status}: finished passes ("success", "failed", "fatal")
//   - callisto_pass_duration_seconds: pass wall time
//   - callisto_files_evaluated_total: files visited
//   - callisto_rule_outcomes_total{rule,outcome}: dispatched actions
//   - callisto_condition_unresolvable_total{predicate}: conditions that failed closed
//   - callisto_rule_reloads_total{result}: rule table reloads
//
// # Usage
//
// The Collector implements engine.Observer:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng := engine.NewEngine(engineCfg, env, table, engine.WithObserver(collector))
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Rule and predicate labels are capped; label sets past the cap are
// aggregated under "other".
package metrics
