package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/inventory"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/policy/actions"
	"mercator-hq/callisto/pkg/policy/ruleset"
	"mercator-hq/callisto/pkg/telemetry/logging"
	"mercator-hq/callisto/pkg/telemetry/tracing"
)

// Observer receives every finished report.
type Observer interface {
	ObservePass(report *Report)
}

// FileObserver is an Observer that is also told when each file of a pass
// has been evaluated. visited counts the files finished so far.
type FileObserver interface {
	Observer
	ObserveFile(visited, total int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for pass start times and action timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLedger records passes and destructive action marks in store.
func WithLedger(store ledger.Storage) Option {
	return func(e *Engine) { e.ledger = store }
}

// WithActions replaces the action registry.
func WithActions(r *actions.Registry) Option {
	return func(e *Engine) { e.actions = r }
}

// WithPredicates replaces the predicate registry.
func WithPredicates(r *PredicateRegistry) Option {
	return func(e *Engine) { e.predicates = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTracer records a span per pass and per dispatched action.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithObserver registers an observer of finished reports.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// Engine evaluates a rule table against archive files and applies the
// actions of matching rules.
type Engine struct {
	config     *EngineConfig
	env        *backend.Env
	clock      clockwork.Clock
	ledger     ledger.Storage
	actions    *actions.Registry
	predicates *PredicateRegistry
	observers  []Observer
	tracer     trace.Tracer
	logger     *slog.Logger
	dispatcher *Dispatcher

	// rulesMu protects rules for concurrent access
	rulesMu sync.RWMutex
	rules   *Compiled

	// passMu serializes passes
	passMu sync.Mutex
}

// NewEngine creates an engine for table. The table is compiled against the
// configured backends; a table that needs a missing backend is rejected.
func NewEngine(config *EngineConfig, env *backend.Env, table *ruleset.Table, opts ...Option) (*Engine, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if env == nil || env.Archive == nil {
		return nil, fmt.Errorf("%w: an archive is required", ErrInvalidConfig)
	}

	e := &Engine{
		config: config,
		env:    env,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.actions == nil {
		e.actions = actions.Default()
	}
	if e.predicates == nil {
		e.predicates = DefaultPredicates()
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "policy.engine")
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer(tracing.InstrumentationName)
	}

	var marks ledger.MarkStore
	if e.ledger != nil {
		marks = e.ledger
	}
	e.dispatcher = NewDispatcher(env, e.clock, marks, config, e.logger)
	e.dispatcher.tracer = e.tracer

	if err := e.Reload(table); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload compiles table and makes it the active rule table. On error the
// active table is kept. Passes in progress finish with the table they
// started with.
func (e *Engine) Reload(table *ruleset.Table) error {
	if table == nil {
		return fmt.Errorf("%w: rule table cannot be nil", ErrInvalidConfig)
	}
	compiled, err := Compile(table, e.actions, e.predicates, e.env)
	if err != nil {
		return err
	}

	e.rulesMu.Lock()
	e.rules = compiled
	e.rulesMu.Unlock()

	e.logger.Info("rule table loaded",
		"rules", len(compiled.Rules),
		"digest", compiled.Digest,
		"source", table.Source,
	)
	return nil
}

// Rules returns the active compiled rules.
func (e *Engine) Rules() *Compiled {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return e.rules
}

// RunPass evaluates every entry and dispatches the matched rules. It
// returns an error wrapping ErrPassAborted when an exitOnFailure rule
// failed; the report then covers the files visited so far.
func (e *Engine) RunPass(ctx context.Context, entries []inventory.Entry) (*Report, error) {
	return e.pass(ctx, entries, false)
}

// Plan evaluates every entry and lists the rules that would be applied.
// No action runs and nothing is recorded.
func (e *Engine) Plan(ctx context.Context, entries []inventory.Entry) (*Report, error) {
	return e.pass(ctx, entries, true)
}

// fileResult is what one file contributes to a report.
type fileResult struct {
	entries      []Entry
	unresolvable []*ConditionUnresolvable
	matched      int
}

func (e *Engine) pass(ctx context.Context, entries []inventory.Entry, dryRun bool) (*Report, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	rules := e.Rules()
	pass := PassContext{ID: uuid.NewString(), Start: e.clock.Now()}
	ctx = logging.WithPassID(ctx, pass.ID)
	ctx, span := e.tracer.Start(ctx, tracing.SpanPass, trace.WithAttributes(tracing.PassAttributes(pass.ID, len(entries), dryRun)...))
	defer span.End()

	report := &Report{PassID: pass.ID, Started: pass.Start, DryRun: dryRun}
	if !dryRun {
		interrupted, err := e.clearInterrupted(ctx, pass)
		if err != nil {
			tracing.SetError(span, err)
			return nil, err
		}
		report.Interrupted = interrupted
	}

	e.logger.InfoContext(ctx, "pass started",
		"files", len(entries),
		"rules", len(rules.Rules),
		"dry_run", dryRun,
	)

	resolver := NewResolver(e.env, pass)
	resolver.Seed(entries)
	matcher := NewMatcher(resolver, e.logger)

	var fileObservers []FileObserver
	for _, o := range e.observers {
		if fo, ok := o.(FileObserver); ok {
			fileObservers = append(fileObservers, fo)
		}
	}
	var visited atomic.Int64

	results := make([]*fileResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for i, entry := range entries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := e.evaluateFile(gctx, pass, rules.Rules, entry, resolver, matcher, dryRun)
			results[i] = res
			if res != nil {
				n := int(visited.Add(1))
				for _, fo := range fileObservers {
					fo.ObserveFile(n, len(entries))
				}
			}
			return err
		})
	}
	err := g.Wait()

	for _, res := range results {
		if res == nil {
			continue
		}
		report.Files++
		report.Matched += res.matched
		report.Entries = append(report.Entries, res.entries...)
		report.Unresolvable = append(report.Unresolvable, res.unresolvable...)
	}
	report.Finished = e.clock.Now()

	switch {
	case errors.Is(err, ErrPassAborted):
		report.Fatal = true
	case err == nil:
		err = ctx.Err()
	}

	stats := resolver.Stats()
	e.logger.InfoContext(ctx, "pass finished",
		"files", report.Files,
		"matched", report.Matched,
		"applied", report.Applied(),
		"failed", report.Failed(),
		"unresolvable", len(report.Unresolvable),
		"lookups", stats.Lookups,
		"memo_hits", stats.Hits,
		"status", report.Status(),
	)

	if !dryRun && e.ledger != nil {
		record, rows := report.Record()
		if serr := e.ledger.SavePass(context.WithoutCancel(ctx), record, rows); serr != nil {
			e.logger.ErrorContext(ctx, "failed to save pass", "error", serr)
			err = errors.Join(err, serr)
		}
	}
	span.SetAttributes(tracing.ReportAttributes(report.Files, report.Matched, report.Applied(), report.Failed(), report.Status())...)
	tracing.SetStatus(span, err)

	for _, o := range e.observers {
		o.ObservePass(report)
	}
	return report, err
}

// evaluateFile matches every rule against one file and dispatches the
// matches in rule order. A nil result means the file was not visited.
func (e *Engine) evaluateFile(ctx context.Context, pass PassContext, rules []*Rule, entry inventory.Entry, resolver *Resolver, matcher *Matcher, dryRun bool) (*fileResult, error) {
	if ctx.Err() != nil {
		return nil, nil
	}
	f := entry.File
	fctx := logging.WithFile(ctx, f.Filename())

	matched, unresolvable, err := matcher.MatchAll(fctx, rules, f)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, err
	}

	res := &fileResult{unresolvable: unresolvable, matched: len(matched)}
	if len(matched) == 0 {
		return res, nil
	}

	if dryRun {
		for _, rule := range matched {
			res.entries = append(res.entries, Entry{File: f.Filename(), Rule: rule.Name, Outcome: OutcomePlanned})
		}
		return res, nil
	}

	snap, err := resolver.Resolve(fctx, f, ruleset.TargetSelf)
	if err != nil {
		return nil, err
	}

	for _, rule := range matched {
		if ctx.Err() != nil {
			break
		}
		o := e.dispatcher.Dispatch(fctx, pass, rule, snap)
		res.entries = append(res.entries, Entry{
			File:     f.Filename(),
			Rule:     rule.Name,
			Outcome:  o.Status,
			Err:      o.Err,
			Duration: o.Duration,
			Time:     e.clock.Now(),
		})
		if o.Fatal() {
			return res, fmt.Errorf("%w: %w", ErrPassAborted, o.Err)
		}
		if o.Status == ledger.OutcomeSuccess && rule.Class == actions.Destructive {
			// Later rules must not act on a removed file.
			e.logger.DebugContext(fctx, "skipping remaining rules after destructive action", "rule", rule.Name)
			break
		}
	}
	return res, nil
}

// clearInterrupted marks pending marks of earlier passes as interrupted
// and returns them.
func (e *Engine) clearInterrupted(ctx context.Context, pass PassContext) ([]ledger.Mark, error) {
	if e.ledger == nil {
		return nil, nil
	}
	pending, err := e.ledger.PendingMarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending marks: %w", err)
	}

	var interrupted []ledger.Mark
	for _, m := range pending {
		if m.PassID == pass.ID {
			continue
		}
		if err := e.ledger.Resolve(ctx, m.PassID, m.File, m.Rule, ledger.MarkInterrupted); err != nil {
			return nil, fmt.Errorf("failed to clear mark: %w", err)
		}
		e.logger.WarnContext(ctx, "destructive action was interrupted",
			"file", m.File,
			"rule", m.Rule,
			"interrupted_pass", m.PassID,
		)
		interrupted = append(interrupted, m)
	}
	return interrupted, nil
}
