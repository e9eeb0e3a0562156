package metrics

import (
	"fmt"
	"testing"

	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/policy/engine"

	"github.com/prometheus/client_golang/prometheus"
)

func largeReport(files int) *engine.Report {
	report := testReport()
	report.Entries = report.Entries[:0]
	for i := 0; i < files; i++ {
		report.Entries = append(report.Entries, engine.Entry{
			File:    fmt.Sprintf("NL.HGN.02.BHZ.D.2024.%03d", i%366+1),
			Rule:    "PRUNE",
			Outcome: ledger.OutcomeSuccess,
		})
	}
	return report
}

// Benchmark_Collector_ObservePass benchmarks recording a pass of 1000 entries
func Benchmark_Collector_ObservePass(b *testing.B) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	report := largeReport(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.ObservePass(report)
	}
}

// Benchmark_CardinalityLimiter_Allow benchmarks the limiter on a known label set
func Benchmark_CardinalityLimiter_Allow(b *testing.B) {
	limiter := NewCardinalityLimiter(maxRuleLabels)
	limiter.Allow("rule:PRUNE:success")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			limiter.Allow("rule:PRUNE:success")
		}
	})
}
