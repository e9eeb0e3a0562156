package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RuleMetrics tracks rule outcomes and the rule table.
//
// Metrics:
//   - callisto_rule_outcomes_total: Dispatched actions by rule and outcome
//   - callisto_condition_unresolvable_total: Conditions that failed closed, by predicate
//   - callisto_rule_reloads_total: Rule table reloads by result
//   - callisto_rules_active: Rules in the active table
type RuleMetrics struct {
	outcomesTotal     *prometheus.CounterVec
	unresolvableTotal *prometheus.CounterVec
	reloadsTotal      *prometheus.CounterVec
	active            prometheus.Gauge
}

// NewRuleMetrics creates and registers rule metrics with the provided registry.
func NewRuleMetrics(registry *prometheus.Registry) *RuleMetrics {
	rm := &RuleMetrics{
		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rule_outcomes_total",
				Help:      "Total number of rule actions by outcome",
			},
			[]string{"rule", "outcome"},
		),

		unresolvableTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "condition_unresolvable_total",
				Help:      "Total number of conditions that could not be resolved",
			},
			[]string{"predicate"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rule_reloads_total",
				Help:      "Total number of rule table reloads by result",
			},
			[]string{"result"},
		),

		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "rules_active",
				Help:      "Number of rules in the active rule table",
			},
		),
	}

	registry.MustRegister(
		rm.outcomesTotal,
		rm.unresolvableTotal,
		rm.reloadsTotal,
		rm.active,
	)

	return rm
}

// RecordOutcome records one action outcome.
func (rm *RuleMetrics) RecordOutcome(rule, outcome string) {
	rm.outcomesTotal.WithLabelValues(rule, outcome).Inc()
}

// RecordUnresolvable records one condition that failed closed.
func (rm *RuleMetrics) RecordUnresolvable(predicate string) {
	rm.unresolvableTotal.WithLabelValues(predicate).Inc()
}

// RecordReload records a reload attempt.
func (rm *RuleMetrics) RecordReload(ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	rm.reloadsTotal.WithLabelValues(result).Inc()
}

// SetActive sets the number of active rules.
func (rm *RuleMetrics) SetActive(n int) {
	rm.active.Set(float64(n))
}
