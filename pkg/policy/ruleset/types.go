package ruleset

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// NegationPrefix marks a condition that must be false.
const NegationPrefix = "!"

// ApplyToOption is the condition option that selects the target file.
const ApplyToOption = "apply_to"

// Target selects which file a condition is evaluated against.
type Target int

const (
	// TargetSelf is the file under evaluation.
	TargetSelf Target = iota

	// TargetPrevious is the file of the preceding day in the same stream.
	TargetPrevious

	// TargetNext is the file of the following day in the same stream.
	TargetNext
)

// ParseTarget parses an apply_to value.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "", "self":
		return TargetSelf, nil
	case "previous":
		return TargetPrevious, nil
	case "next":
		return TargetNext, nil
	default:
		return TargetSelf, fmt.Errorf("unknown apply_to %q (want previous or next)", s)
	}
}

// String returns the apply_to spelling of t.
func (t Target) String() string {
	switch t {
	case TargetPrevious:
		return "previous"
	case TargetNext:
		return "next"
	default:
		return "self"
	}
}

// Condition is one precondition of a rule.
type Condition struct {
	// Predicate is the predicate name without the negation prefix.
	Predicate string

	// Negate inverts the predicate result.
	Negate bool

	// ApplyTo selects the file the predicate is evaluated against.
	ApplyTo Target

	// Options are the predicate options, apply_to removed.
	Options map[string]any
}

// FunctionName returns the condition name as written in the rule table.
func (c Condition) FunctionName() string {
	if c.Negate {
		return NegationPrefix + c.Predicate
	}
	return c.Predicate
}

// Signature returns a canonical form of the condition, used to compare
// condition sets.
func (c Condition) Signature() string {
	return fmt.Sprintf("%s@%s%v", c.FunctionName(), c.ApplyTo, canonical(c.Options))
}

// Rule is a named lifecycle rule.
type Rule struct {
	// Name is the key of the rule in the rule map.
	Name string

	// Description is a human readable summary.
	Description string

	// Action is the action function name.
	Action string

	// Timeout bounds the action. It is always positive.
	Timeout time.Duration

	// Options are the action options.
	Options map[string]any

	// Conditions are evaluated in order and ANDed.
	Conditions []Condition
}

// ConditionSet returns the sorted condition signatures of r.
func (r Rule) ConditionSet() string {
	sigs := make([]string, len(r.Conditions))
	for i, c := range r.Conditions {
		sigs[i] = c.Signature()
	}
	sort.Strings(sigs)
	return strings.Join(sigs, "&")
}

// Table is a loaded, ordered rule table. Tables are immutable once loaded.
type Table struct {
	// Rules are the active rules in application order.
	Rules []Rule

	// Source is the rule map file, empty for in-memory tables.
	Source string

	// Digest identifies the content the table was loaded from.
	Digest string
}

// Lookup returns the rule called name.
func (t *Table) Lookup(name string) (Rule, bool) {
	for _, r := range t.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// Names returns the rule names in application order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Rules))
	for i, r := range t.Rules {
		names[i] = r.Name
	}
	return names
}
