// Package engine evaluates lifecycle rules against SDS archive files and
// applies the actions of the rules that match.
//
// # Architecture
//
// A pass is built from four parts:
//
//  1. Resolver - Produces read-only file snapshots and memoizes every
//     backend lookup for the pass
//  2. Matcher - Evaluates rule conditions in order, failing closed
//  3. Dispatcher - Runs actions under a timeout, per-file locks and
//     two-phase marks for destructive actions
//  4. Engine - Fixes the pass start, fans files out to workers and
//     collects the report
//
// # Evaluation Flow
//
//	inventory entries
//	       ↓
//	Engine (pass start, fresh resolver)
//	       ↓
//	For each file (bounded worker pool):
//	  For each rule in table order:
//	    Evaluate conditions → all true?
//	      Yes → matched
//	  For each matched rule:
//	    Dispatch action → record outcome
//	    Fatal → cancel the pass
//	       ↓
//	Report (entries, unresolvable conditions, counts)
//
// # Basic Usage
//
//	table, err := ruleset.NewLoader(afero.NewOsFs(), nil).Load("rules.json", "sequence.json")
//	if err != nil {
//	    return err
//	}
//
//	eng, err := engine.NewEngine(engine.DefaultEngineConfig(), env, table,
//	    engine.WithLedger(store),
//	)
//	if err != nil {
//	    return err
//	}
//
//	entries, err := env.Archive.Collect(ctx, inventory.PastDays(time.Now(), 7))
//	if err != nil {
//	    return err
//	}
//	report, err := eng.RunPass(ctx, entries)
//
// # Failure Semantics
//
// Conditions fail closed. A condition whose previous or next file is
// missing is false, negated or not. A condition whose backend fails is
// false as well and is reported as ConditionUnresolvable.
//
// Action errors are recoverable unless the rule sets exitOnFailure, in
// which case the pass is cancelled and RunPass returns an error wrapping
// ErrPassAborted.
//
// # Thread Safety
//
// An Engine runs one pass at a time. Reload may be called while a pass is
// running; the pass keeps the table it started with.
package engine
