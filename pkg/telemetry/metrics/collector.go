package metrics

import (
	"fmt"
	"sync"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/policy/engine"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every callisto metric.
const Namespace = "callisto"

// maxRuleLabels bounds the distinct (rule, outcome) and predicate label sets.
const maxRuleLabels = 2000

// Collector records pass, rule and reload metrics. It implements
// engine.Observer so the engine reports every finished pass to it.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	passMetrics *PassMetrics
	ruleMetrics *RuleMetrics

	cardinalityLimiter *CardinalityLimiter
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector creates a collector registering its metrics on registry.
// A nil registry gets a fresh one.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng := engine.NewEngine(engineCfg, env, table, engine.WithObserver(collector))
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		passMetrics:        NewPassMetrics(registry),
		ruleMetrics:        NewRuleMetrics(registry),
		cardinalityLimiter: NewCardinalityLimiter(maxRuleLabels),
	}
}

// ObservePass records the metrics of a finished pass. Dry runs are not
// counted.
func (c *Collector) ObservePass(report *engine.Report) {
	if !c.config.Enabled || report == nil || report.DryRun {
		return
	}

	c.passMetrics.RecordPass(report.Status(), report.Finished.Sub(report.Started), report.Files, report.Finished)

	for _, e := range report.Entries {
		rule := e.Rule
		if !c.cardinalityLimiter.Allow(fmt.Sprintf("rule:%s:%s", rule, e.Outcome)) {
			rule = "other"
		}
		c.ruleMetrics.RecordOutcome(rule, string(e.Outcome))
	}

	for _, u := range report.Unresolvable {
		predicate := u.Condition
		if !c.cardinalityLimiter.Allow("predicate:" + predicate) {
			predicate = "other"
		}
		c.ruleMetrics.RecordUnresolvable(predicate)
	}
}

// RecordReload records a rule table reload attempt.
func (c *Collector) RecordReload(err error) {
	if !c.config.Enabled {
		return
	}
	c.ruleMetrics.RecordReload(err == nil)
}

// SetRules records the number of active rules.
func (c *Collector) SetRules(n int) {
	if !c.config.Enabled {
		return
	}
	c.ruleMetrics.SetActive(n)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
