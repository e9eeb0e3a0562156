package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/callisto/pkg/policy/ruleset"
)

var (
	// ErrNoNeighbor is returned by the resolver when the previous or next
	// file of a stream is not in the archive.
	ErrNoNeighbor = errors.New("no neighbor file in archive")

	// ErrPassAborted is returned by RunPass when a fatal action outcome
	// stopped the pass.
	ErrPassAborted = errors.New("pass aborted")

	// ErrQualityRegression is the cause of a refused action that would
	// move a file back to an earlier lifecycle tier.
	ErrQualityRegression = errors.New("quality would move backward")

	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")
)

// ConditionUnresolvable reports a condition that could not be evaluated
// because a backend failed. The condition evaluates to false.
type ConditionUnresolvable struct {
	Rule      string
	Condition string
	File      string
	Target    ruleset.Target
	Cause     error
}

// Error returns the error message.
func (e *ConditionUnresolvable) Error() string {
	return fmt.Sprintf("rule %s: condition %s on %s (%s) unresolvable: %v", e.Rule, e.Condition, e.File, e.Target, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConditionUnresolvable) Unwrap() error {
	return e.Cause
}

// ActionTimeout reports an action that exceeded its time bound.
type ActionTimeout struct {
	Rule    string
	Action  string
	File    string
	Timeout time.Duration
}

// Error returns the error message.
func (e *ActionTimeout) Error() string {
	return fmt.Sprintf("rule %s: action %s on %s timed out after %v", e.Rule, e.Action, e.File, e.Timeout)
}

// Unwrap returns context.DeadlineExceeded.
func (e *ActionTimeout) Unwrap() error {
	return context.DeadlineExceeded
}

// ActionFailure reports an action that returned an error. Fatal is set
// when the rule has exitOnFailure.
type ActionFailure struct {
	Rule   string
	Action string
	File   string
	Fatal  bool
	Cause  error
}

// Error returns the error message.
func (e *ActionFailure) Error() string {
	kind := "failed"
	if e.Fatal {
		kind = "failed fatally"
	}
	return fmt.Sprintf("rule %s: action %s on %s %s: %v", e.Rule, e.Action, e.File, kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ActionFailure) Unwrap() error {
	return e.Cause
}
