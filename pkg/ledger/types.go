package ledger

import (
	"context"
	"time"
)

// Outcome is the result of applying one rule to one file.
type Outcome string

const (
	// OutcomeSuccess means the action completed or its effect already held.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure means the action reported a recoverable error.
	OutcomeFailure Outcome = "failure"

	// OutcomeTimeout means the action exceeded its time bound.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeFatal means an exitOnFailure action failed and the pass stopped.
	OutcomeFatal Outcome = "fatal"

	// OutcomeUnresolvable means a condition of the rule could not be
	// evaluated because a backend was unreachable.
	OutcomeUnresolvable Outcome = "unresolvable"

	// OutcomeInterrupted means a destructive action of an earlier pass never
	// confirmed its mark.
	OutcomeInterrupted Outcome = "interrupted"
)

// Failed reports whether o counts as a failed application.
func (o Outcome) Failed() bool {
	return o == OutcomeFailure || o == OutcomeTimeout || o == OutcomeFatal
}

// Entry is one (file, rule, outcome) row of a pass.
type Entry struct {
	PassID   string        `json:"pass_id"`
	File     string        `json:"file"`
	Rule     string        `json:"rule"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Time     time.Time     `json:"time"`
}

// PassRecord summarizes one execution pass.
type PassRecord struct {
	// ID is the pass UUID.
	ID string `json:"id"`

	// Started is the pass reference instant.
	Started time.Time `json:"started"`

	// Finished is when the last file was visited.
	Finished time.Time `json:"finished"`

	// Files is the number of files visited.
	Files int `json:"files"`

	// Matched, Applied and Failed count rule applications.
	Matched int `json:"matched"`
	Applied int `json:"applied"`
	Failed  int `json:"failed"`

	// Unresolvable counts conditions that failed closed.
	Unresolvable int `json:"unresolvable"`

	// Fatal is set when an exitOnFailure rule aborted the pass.
	Fatal bool `json:"fatal"`
}

// MarkState is the state of a destructive action mark.
type MarkState string

const (
	MarkPending     MarkState = "pending"
	MarkDone        MarkState = "done"
	MarkFailed      MarkState = "failed"
	MarkInterrupted MarkState = "interrupted"
)

// Mark records intent to run a destructive action on a file. A mark that is
// still pending when a later pass starts belongs to an interrupted action.
type Mark struct {
	PassID  string    `json:"pass_id"`
	File    string    `json:"file"`
	Rule    string    `json:"rule"`
	State   MarkState `json:"state"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// Deletion is an entry of the deletion database: a file scheduled for
// removal from every backend.
type Deletion struct {
	File      string    `json:"file"`
	Scheduled time.Time `json:"scheduled"`
}

// PassStore persists pass reports.
type PassStore interface {
	// SavePass writes a pass summary and its entries.
	SavePass(ctx context.Context, pass *PassRecord, entries []Entry) error

	// ListPasses returns up to limit passes, newest first. A limit of 0
	// returns every pass.
	ListPasses(ctx context.Context, limit int) ([]PassRecord, error)

	// PassEntries returns the entries of one pass in recorded order.
	PassEntries(ctx context.Context, passID string) ([]Entry, error)

	// CountPasses returns the number of stored passes.
	CountPasses(ctx context.Context) (int64, error)

	// DeletePassesBefore removes passes started before cutoff.
	DeletePassesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOldestPasses removes the oldest passes so that at most keep
	// remain.
	DeleteOldestPasses(ctx context.Context, keep int) (int64, error)
}

// MarkStore persists destructive action marks.
type MarkStore interface {
	// Mark records a pending mark.
	Mark(ctx context.Context, mark Mark) error

	// Resolve moves the mark for (passID, file, rule) to state.
	Resolve(ctx context.Context, passID, file, rule string, state MarkState) error

	// PendingMarks returns every mark still pending, oldest first.
	PendingMarks(ctx context.Context) ([]Mark, error)
}

// DeletionStore is the deletion database.
type DeletionStore interface {
	// ScheduleDeletion lists file for deletion. Scheduling twice is a no-op.
	ScheduleDeletion(ctx context.Context, file string, at time.Time) error

	// InDeletion reports whether file is listed.
	InDeletion(ctx context.Context, file string) (bool, error)

	// RemoveDeletion drops file from the list. Removing a missing entry is
	// not an error.
	RemoveDeletion(ctx context.Context, file string) error

	// ListDeletions returns every listed file, ordered by name.
	ListDeletions(ctx context.Context) ([]Deletion, error)
}

// Storage combines every ledger store. Implementations must be safe for
// concurrent use.
type Storage interface {
	PassStore
	MarkStore
	DeletionStore

	// Close releases any resources held by the backend.
	Close() error
}
