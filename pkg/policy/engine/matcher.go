package engine

import (
	"context"
	"errors"
	"log/slog"

	"mercator-hq/callisto/pkg/sds"
)

// Matcher evaluates rule conditions against files of one pass.
type Matcher struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewMatcher creates a matcher over resolver.
func NewMatcher(resolver *Resolver, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{resolver: resolver, logger: logger}
}

// Match reports whether every condition of rule holds for f. Conditions
// are evaluated in order and evaluation stops at the first false one. A
// condition whose target file is missing is false. A condition that cannot
// be evaluated is false and returned as *ConditionUnresolvable.
//
// Context cancellation is returned as is.
func (m *Matcher) Match(ctx context.Context, rule *Rule, f sds.File) (bool, error) {
	for _, c := range rule.Conditions {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		held, err := m.evaluate(ctx, c, f)
		if err != nil {
			if isCancellation(ctx, err) {
				return false, err
			}
			if errors.Is(err, ErrNoNeighbor) {
				m.logger.DebugContext(ctx, "condition target missing",
					"rule", rule.Name,
					"condition", c.FunctionName(),
					"apply_to", c.ApplyTo.String(),
				)
				return false, nil
			}
			return false, &ConditionUnresolvable{
				Rule:      rule.Name,
				Condition: c.FunctionName(),
				File:      f.Filename(),
				Target:    c.ApplyTo,
				Cause:     err,
			}
		}
		if !held {
			return false, nil
		}
	}
	return true, nil
}

func (m *Matcher) evaluate(ctx context.Context, c Condition, f sds.File) (bool, error) {
	snap, err := m.resolver.Resolve(ctx, f, c.ApplyTo)
	if err != nil {
		return false, err
	}
	v, err := c.predicate.Evaluate(ctx, snap, m.resolver.Pass())
	if err != nil {
		return false, err
	}
	return v != c.Negate, nil
}

// MatchAll returns the rules that hold for f in their configured order and
// the unresolvable conditions met on the way.
func (m *Matcher) MatchAll(ctx context.Context, rules []*Rule, f sds.File) ([]*Rule, []*ConditionUnresolvable, error) {
	var (
		matched      []*Rule
		unresolvable []*ConditionUnresolvable
	)
	for _, rule := range rules {
		ok, err := m.Match(ctx, rule, f)
		if err != nil {
			var cu *ConditionUnresolvable
			if !errors.As(err, &cu) {
				return nil, nil, err
			}
			m.logger.WarnContext(ctx, "condition unresolvable",
				"rule", rule.Name,
				"condition", cu.Condition,
				"error", cu.Cause,
			)
			unresolvable = append(unresolvable, cu)
			continue
		}
		if ok {
			matched = append(matched, rule)
		}
	}
	return matched, unresolvable, nil
}

// isCancellation reports whether err stems from ctx being done.
func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
