package ruleset

import (
	"fmt"
	"strings"
)

// Problem is one defect found in a rule table.
type Problem struct {
	// Rule is the rule name, empty for table level problems.
	Rule string

	// Field is the path inside the rule, e.g. "conditions[1].options".
	Field string

	// Message describes the problem.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// String formats the problem on one line.
func (p Problem) String() string {
	var sb strings.Builder
	if p.Rule != "" {
		fmt.Fprintf(&sb, "rule %q: ", p.Rule)
	}
	if p.Field != "" {
		sb.WriteString(p.Field)
		sb.WriteString(": ")
	}
	sb.WriteString(p.Message)
	if p.Cause != nil {
		fmt.Fprintf(&sb, ": %v", p.Cause)
	}
	return sb.String()
}

// ConfigError reports a malformed or inconsistent rule table. It collects
// every problem found so one load reports them all.
type ConfigError struct {
	// Source is the file the table was read from, if any.
	Source string

	// Problems lists the defects in the order they were found.
	Problems []Problem
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	prefix := "invalid rule table"
	if e.Source != "" {
		prefix = fmt.Sprintf("invalid rule table %q", e.Source)
	}
	switch len(e.Problems) {
	case 0:
		return prefix
	case 1:
		return prefix + ": " + e.Problems[0].String()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d problems:", prefix, len(e.Problems))
	for i, p := range e.Problems {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, p)
	}
	return sb.String()
}

// Unwrap returns the causes of the problems.
func (e *ConfigError) Unwrap() []error {
	var errs []error
	for _, p := range e.Problems {
		if p.Cause != nil {
			errs = append(errs, p.Cause)
		}
	}
	return errs
}

// Add records a problem.
func (e *ConfigError) Add(rule, field string, cause error, format string, args ...any) {
	e.Problems = append(e.Problems, Problem{
		Rule:    rule,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	})
}

// HasProblems reports whether any problem was recorded.
func (e *ConfigError) HasProblems() bool {
	return len(e.Problems) > 0
}

// Err returns e if it holds problems and nil otherwise.
func (e *ConfigError) Err() error {
	if !e.HasProblems() {
		return nil
	}
	return e
}
