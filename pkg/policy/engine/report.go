package engine

import (
	"fmt"
	"io"
	"time"

	"mercator-hq/callisto/pkg/ledger"
)

// OutcomePlanned marks the entries of a dry run.
const OutcomePlanned ledger.Outcome = "planned"

// Entry is one (file, rule, outcome) triple of a pass.
type Entry struct {
	File     string
	Rule     string
	Outcome  ledger.Outcome
	Err      error
	Duration time.Duration
	Time     time.Time
}

// Report describes one pass or plan.
type Report struct {
	// PassID is the pass UUID.
	PassID string

	// Started is the pass reference instant.
	Started time.Time

	// Finished is when the last visited file was done.
	Finished time.Time

	// DryRun is set for plans.
	DryRun bool

	// Files is the number of files visited.
	Files int

	// Entries are ordered by input file, then by rule order.
	Entries []Entry

	// Unresolvable lists the conditions that failed closed.
	Unresolvable []*ConditionUnresolvable

	// Interrupted lists marks of earlier passes that never completed.
	Interrupted []ledger.Mark

	// Matched counts (file, rule) pairs whose conditions held.
	Matched int

	// Fatal is set when an exitOnFailure rule stopped the pass.
	Fatal bool
}

// Applied returns the number of successful actions.
func (r *Report) Applied() int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == ledger.OutcomeSuccess {
			n++
		}
	}
	return n
}

// Failed returns the number of failed, timed out or fatal actions.
func (r *Report) Failed() int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome.Failed() {
			n++
		}
	}
	return n
}

// Status returns "fatal", "failed" or "success".
func (r *Report) Status() string {
	switch {
	case r.Fatal:
		return "fatal"
	case r.Failed() > 0:
		return "failed"
	default:
		return "success"
	}
}

// Record converts the report into its ledger form. Unresolvable
// conditions and interrupted marks become entries of their own.
func (r *Report) Record() (*ledger.PassRecord, []ledger.Entry) {
	pass := &ledger.PassRecord{
		ID:           r.PassID,
		Started:      r.Started,
		Finished:     r.Finished,
		Files:        r.Files,
		Matched:      r.Matched,
		Applied:      r.Applied(),
		Failed:       r.Failed(),
		Unresolvable: len(r.Unresolvable),
		Fatal:        r.Fatal,
	}

	entries := make([]ledger.Entry, 0, len(r.Interrupted)+len(r.Entries)+len(r.Unresolvable))
	for _, m := range r.Interrupted {
		entries = append(entries, ledger.Entry{
			PassID:  r.PassID,
			File:    m.File,
			Rule:    m.Rule,
			Outcome: ledger.OutcomeInterrupted,
			Error:   fmt.Sprintf("mark of pass %s never completed", m.PassID),
			Time:    r.Started,
		})
	}
	for _, e := range r.Entries {
		le := ledger.Entry{
			PassID:   r.PassID,
			File:     e.File,
			Rule:     e.Rule,
			Outcome:  e.Outcome,
			Duration: e.Duration,
			Time:     e.Time,
		}
		if e.Err != nil {
			le.Error = e.Err.Error()
		}
		entries = append(entries, le)
	}
	for _, u := range r.Unresolvable {
		entries = append(entries, ledger.Entry{
			PassID:  r.PassID,
			File:    u.File,
			Rule:    u.Rule,
			Outcome: ledger.OutcomeUnresolvable,
			Error:   u.Error(),
			Time:    r.Finished,
		})
	}
	return pass, entries
}

// WriteText writes a human readable form of the report to w.
func (r *Report) WriteText(w io.Writer) error {
	kind := "pass"
	if r.DryRun {
		kind = "plan"
	}
	if _, err := fmt.Fprintf(w, "%s %s started %s\n", kind, r.PassID, r.Started.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	for _, m := range r.Interrupted {
		fmt.Fprintf(w, "  %-40s %-32s %s\n", m.File, m.Rule, ledger.OutcomeInterrupted)
	}
	for _, e := range r.Entries {
		line := fmt.Sprintf("  %-40s %-32s %s", e.File, e.Rule, e.Outcome)
		if e.Err != nil {
			line += ": " + e.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	for _, u := range r.Unresolvable {
		fmt.Fprintf(w, "  %-40s %-32s %s: %v\n", u.File, u.Rule, ledger.OutcomeUnresolvable, u.Cause)
	}
	_, err := fmt.Fprintf(w, "files=%d matched=%d applied=%d failed=%d unresolvable=%d status=%s\n",
		r.Files, r.Matched, r.Applied(), r.Failed(), len(r.Unresolvable), r.Status())
	return err
}
