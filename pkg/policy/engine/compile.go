package engine

import (
	"fmt"
	"strings"
	"time"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/policy/actions"
	"mercator-hq/callisto/pkg/policy/ruleset"
	"mercator-hq/callisto/pkg/quality"
)

// Condition is a rule condition bound to its predicate.
type Condition struct {
	ruleset.Condition

	predicate Predicate
}

// Rule is a rule bound to its action and predicates.
type Rule struct {
	// Name is the rule name.
	Name string

	// Description is the rule description.
	Description string

	// Action is the action function name.
	Action string

	// Class is the effect class of the action.
	Class actions.Class

	// Timeout bounds the action.
	Timeout time.Duration

	// ExitOnFailure makes a failed or timed out action fatal for the pass.
	ExitOnFailure bool

	// Produces is the quality the action gives the file, empty when the
	// file quality is left alone.
	Produces quality.Quality

	// Conditions are evaluated in order.
	Conditions []Condition

	action actions.Action
}

// Compiled is a rule table bound to actions and predicates.
type Compiled struct {
	// Rules are in application order.
	Rules []*Rule

	// Digest identifies the source table.
	Digest string
}

// Compile binds every rule of table to its action and predicates. When env
// is not nil every backend a rule depends on must be configured. All
// problems are reported in one *ruleset.ConfigError.
func Compile(table *ruleset.Table, acts *actions.Registry, preds *PredicateRegistry, env *backend.Env) (*Compiled, error) {
	cerr := &ruleset.ConfigError{Source: table.Source}
	compiled := &Compiled{Digest: table.Digest}
	destructive := make(map[string]string)

	for _, r := range table.Rules {
		rule, requires, ok := compileRule(r, acts, preds, cerr)
		if !ok {
			continue
		}
		if env != nil {
			if missing := env.Missing(requires...); len(missing) > 0 {
				cerr.Add(r.Name, "", nil, "backends not configured: %s", joinCapabilities(missing))
				continue
			}
		}
		if rule.Class == actions.Destructive {
			set := r.ConditionSet()
			if other, dup := destructive[set]; dup {
				cerr.Add(r.Name, "conditions", nil, "destructive rule has the same conditions as %q", other)
				continue
			}
			destructive[set] = r.Name
		}
		compiled.Rules = append(compiled.Rules, rule)
	}

	if err := cerr.Err(); err != nil {
		return nil, err
	}
	return compiled, nil
}

func compileRule(r ruleset.Rule, acts *actions.Registry, preds *PredicateRegistry, cerr *ruleset.ConfigError) (*Rule, []backend.Capability, bool) {
	ok := true
	var requires []backend.Capability

	rule := &Rule{
		Name:        r.Name,
		Description: r.Description,
		Action:      r.Action,
		Timeout:     r.Timeout,
	}

	spec, found := acts.Lookup(r.Action)
	if !found {
		cerr.Add(r.Name, "functionName", nil, "unknown action %q", r.Action)
		ok = false
	} else {
		action, err := spec.New(r.Options)
		if err != nil {
			cerr.Add(r.Name, "options", err, "invalid options for %s", r.Action)
			ok = false
		}
		common, err := actions.ParseCommonOptions(r.Options)
		if err != nil {
			cerr.Add(r.Name, "options", err, "invalid common options")
			ok = false
		}
		rule.action = action
		rule.Class = spec.Class
		rule.Produces = spec.Produces
		rule.ExitOnFailure = common.ExitOnFailure
		requires = append(requires, spec.Requires...)
		if action != nil && actions.IsPreview(action) {
			// A dry run only logs: it neither locks, marks nor stops the
			// remaining rules of the file.
			rule.Class = actions.External
			rule.Produces = ""
		}
	}

	for i, c := range r.Conditions {
		field := fmt.Sprintf("conditions[%d]", i)
		pspec, found := preds.Lookup(c.Predicate)
		if !found {
			cerr.Add(r.Name, field, nil, "unknown predicate %q", c.Predicate)
			ok = false
			continue
		}
		pred, err := pspec.New(c.Options)
		if err != nil {
			cerr.Add(r.Name, field+".options", err, "invalid options for %s", c.Predicate)
			ok = false
			continue
		}
		rule.Conditions = append(rule.Conditions, Condition{Condition: c, predicate: pred})
		requires = append(requires, pspec.Requires...)
	}

	if ok && rule.Produces != "" {
		for _, q := range rule.admittedQualities() {
			if !quality.CanTransition(q, rule.Produces) {
				cerr.Add(r.Name, "conditions", nil, "%s would turn %s files into %s files", r.Action, q, rule.Produces)
				ok = false
			}
		}
	}
	return rule, requires, ok
}

// admittedQualities returns the file qualities the quality conditions of
// the rule let through, in lifecycle order.
func (r *Rule) admittedQualities() []quality.Quality {
	var admitted []quality.Quality
	for _, q := range quality.All() {
		if !q.IsFileTag() {
			continue
		}
		keep := true
		for _, c := range r.Conditions {
			set, isQuality := c.predicate.(qualitySet)
			if !isQuality || c.ApplyTo != ruleset.TargetSelf {
				continue
			}
			if set[q] == c.Negate {
				keep = false
				break
			}
		}
		if keep {
			admitted = append(admitted, q)
		}
	}
	return admitted
}

func joinCapabilities(caps []backend.Capability) string {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
