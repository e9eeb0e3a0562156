package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PassMetrics tracks evaluation passes.
//
// Metrics:
//   - callisto_passes_total: Finished passes by status
//   - callisto_pass_duration_seconds: Pass wall time
//   - callisto_files_evaluated_total: Files visited by passes
//   - callisto_last_pass_timestamp_seconds: Finish time of the last pass
type PassMetrics struct {
	passesTotal    *prometheus.CounterVec
	passDuration   prometheus.Histogram
	filesEvaluated prometheus.Counter
	lastPass       prometheus.Gauge
}

// NewPassMetrics creates and registers pass metrics with the provided registry.
func NewPassMetrics(registry *prometheus.Registry) *PassMetrics {
	pm := &PassMetrics{
		passesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "passes_total",
				Help:      "Total number of evaluation passes by status",
			},
			[]string{"status"},
		),

		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "pass_duration_seconds",
				Help:      "Duration of evaluation passes in seconds",
				// Passes range from a handful of files to a full archive sweep.
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
		),

		filesEvaluated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "files_evaluated_total",
				Help:      "Total number of archive files visited by passes",
			},
		),

		lastPass: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "last_pass_timestamp_seconds",
				Help:      "Unix time the last pass finished",
			},
		),
	}

	registry.MustRegister(
		pm.passesTotal,
		pm.passDuration,
		pm.filesEvaluated,
		pm.lastPass,
	)

	return pm
}

// RecordPass records one finished pass.
func (pm *PassMetrics) RecordPass(status string, duration time.Duration, files int, finished time.Time) {
	pm.passesTotal.WithLabelValues(status).Inc()
	if duration >= 0 {
		pm.passDuration.Observe(duration.Seconds())
	}
	pm.filesEvaluated.Add(float64(files))
	if !finished.IsZero() {
		pm.lastPass.Set(float64(finished.Unix()))
	}
}
