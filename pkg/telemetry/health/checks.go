package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/policy/engine"
)

// LedgerCheck fails when the pass ledger cannot be queried.
func LedgerCheck(store ledger.PassStore) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := store.CountPasses(ctx); err != nil {
			return fmt.Errorf("ledger unavailable: %w", err)
		}
		return nil
	}
}

// RulesCheck fails while the last rule table load failed. status is
// typically manager.RuleManager.Status.
func RulesCheck(status func() (int, error)) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := status(); err != nil {
			return fmt.Errorf("last rule table load failed: %w", err)
		}
		return nil
	}
}

// PassTracker remembers the last finished pass. It implements
// engine.Observer.
type PassTracker struct {
	mu       sync.RWMutex
	finished time.Time
	status   string
}

var _ engine.Observer = (*PassTracker)(nil)

// ObservePass records report as the last pass. Dry runs are ignored.
func (p *PassTracker) ObservePass(report *engine.Report) {
	if report == nil || report.DryRun {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = report.Finished
	p.status = report.Status()
}

// Last returns the finish time and status of the last pass.
func (p *PassTracker) Last() (time.Time, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.finished, p.status
}

// PassAgeCheck fails when no pass finished within maxAge of now. The
// first pass is given maxAge from started.
func PassAgeCheck(tracker *PassTracker, maxAge time.Duration, started time.Time, clock clockwork.Clock) CheckFunc {
	return func(ctx context.Context) error {
		last, status := tracker.Last()
		if last.IsZero() {
			if age := clock.Since(started); age > maxAge {
				return fmt.Errorf("no pass finished in %s", age.Truncate(time.Second))
			}
			return nil
		}
		if age := clock.Since(last); age > maxAge {
			return fmt.Errorf("last pass (%s) finished %s ago", status, age.Truncate(time.Second))
		}
		return nil
	}
}
