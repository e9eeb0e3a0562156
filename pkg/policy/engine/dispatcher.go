package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/policy/actions"
	"mercator-hq/callisto/pkg/quality"
	"mercator-hq/callisto/pkg/telemetry/logging"
	"mercator-hq/callisto/pkg/telemetry/tracing"
)

// Outcome is the result of dispatching one rule on one file.
type Outcome struct {
	// Status is the recorded outcome.
	Status ledger.Outcome

	// Err is nil on success, otherwise *ActionTimeout or *ActionFailure.
	Err error

	// Duration is the time from dispatch to the action returning.
	Duration time.Duration
}

// Fatal reports whether the outcome stops the pass.
func (o Outcome) Fatal() bool {
	return o.Status == ledger.OutcomeFatal
}

// Dispatcher runs rule actions with a time bound, per-file locking and
// two-phase marks for destructive actions.
type Dispatcher struct {
	env       *backend.Env
	clock     clockwork.Clock
	marks     ledger.MarkStore
	locks     *fileLocks
	stopGrace time.Duration
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. marks may be nil, in which case
// destructive actions run without marks.
func NewDispatcher(env *backend.Env, clock clockwork.Clock, marks ledger.MarkStore, config *EngineConfig, logger *slog.Logger) *Dispatcher {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		env:       env,
		clock:     clock,
		marks:     marks,
		locks:     newFileLocks(config.LockDir),
		stopGrace: config.StopGrace,
		tracer:    noop.NewTracerProvider().Tracer(tracing.InstrumentationName),
		logger:    logger,
	}
}

// Dispatch applies the action of rule to the file of snap. Actions are not
// retried.
func (d *Dispatcher) Dispatch(ctx context.Context, pass PassContext, rule *Rule, snap *Snapshot) Outcome {
	start := d.clock.Now()
	f := snap.File()
	ctx = logging.WithRule(logging.WithFile(logging.WithPassID(ctx, pass.ID), f.Filename()), rule.Name)
	ctx, span := d.tracer.Start(ctx, tracing.SpanDispatch, trace.WithAttributes(tracing.ActionAttributes(rule.Name, rule.Action, f.Filename())...))
	defer span.End()

	outcome := func(err error) Outcome {
		o := Outcome{Status: ledger.OutcomeSuccess, Err: err, Duration: d.clock.Since(start)}
		var timeout *ActionTimeout
		switch {
		case err == nil:
		case rule.ExitOnFailure:
			o.Status = ledger.OutcomeFatal
		case errors.As(err, &timeout):
			o.Status = ledger.OutcomeTimeout
		default:
			o.Status = ledger.OutcomeFailure
		}
		return o
	}
	failure := func(cause error) error {
		return &ActionFailure{
			Rule:   rule.Name,
			Action: rule.Action,
			File:   f.Filename(),
			Fatal:  rule.ExitOnFailure,
			Cause:  cause,
		}
	}

	if rule.Produces != "" && !quality.CanTransition(f.Quality, rule.Produces) {
		return outcome(failure(fmt.Errorf("%w: %s to %s", ErrQualityRegression, f.Quality, rule.Produces)))
	}

	release := func() {}
	if rule.Class.Locked() {
		unlock, err := d.locks.Lock(ctx, f.WindowKey())
		if err != nil {
			return outcome(failure(err))
		}
		release = unlock
	}

	destructive := rule.Class == actions.Destructive && d.marks != nil
	if destructive {
		now := d.clock.Now()
		err := d.marks.Mark(ctx, ledger.Mark{
			PassID:  pass.ID,
			File:    f.Filename(),
			Rule:    rule.Name,
			State:   ledger.MarkPending,
			Created: now,
			Updated: now,
		})
		if err != nil {
			release()
			return outcome(failure(fmt.Errorf("failed to record mark: %w", err)))
		}
	}

	subject := actions.Subject{
		File:     f,
		Entry:    snap.Entry,
		Checksum: snap.Checksum,
		Env:      d.env,
		Logger:   d.logger.With(logging.Fields(ctx)...).With("action", rule.Action),
	}

	returned, err := d.run(ctx, rule, subject, release)
	if err != nil {
		var timeout *ActionTimeout
		if !errors.As(err, &timeout) {
			err = failure(err)
		}
	}

	if destructive && returned {
		state := ledger.MarkDone
		if err != nil {
			state = ledger.MarkFailed
		}
		if merr := d.marks.Resolve(context.WithoutCancel(ctx), pass.ID, f.Filename(), rule.Name, state); merr != nil {
			d.logger.ErrorContext(ctx, "failed to resolve mark", "state", state, "error", merr)
		}
	}

	o := outcome(err)
	span.SetAttributes(tracing.OutcomeAttribute(string(o.Status)))
	tracing.SetStatus(span, o.Err)
	if o.Err != nil {
		d.logger.WarnContext(ctx, "action failed", "outcome", o.Status, "duration", o.Duration, "error", o.Err)
	} else {
		d.logger.InfoContext(ctx, "action applied", "action", rule.Action, "duration", o.Duration)
	}
	return o
}

// run applies the action under the rule timeout. It reports whether the
// action returned; an action that ignores cancellation past the stop grace
// is abandoned and release is deferred until it returns.
func (d *Dispatcher) run(ctx context.Context, rule *Rule, s actions.Subject, release func()) (bool, error) {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("action panicked: %v", r)
			}
		}()
		done <- rule.action.Apply(actx, s)
	}()

	timer := d.clock.NewTimer(rule.Timeout)
	defer timer.Stop()

	var stopErr error
	select {
	case err := <-done:
		release()
		return true, err
	case <-timer.Chan():
		stopErr = &ActionTimeout{
			Rule:    rule.Name,
			Action:  rule.Action,
			File:    s.File.Filename(),
			Timeout: rule.Timeout,
		}
	case <-ctx.Done():
		stopErr = ctx.Err()
	}

	cancel()
	grace := d.clock.NewTimer(d.stopGrace)
	defer grace.Stop()
	select {
	case <-done:
		release()
		return true, stopErr
	case <-grace.Chan():
		d.logger.ErrorContext(ctx, "action did not stop after cancellation", "grace", d.stopGrace)
		go func() {
			<-done
			release()
		}()
		return false, stopErr
	}
}
