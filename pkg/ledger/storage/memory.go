package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"mercator-hq/callisto/pkg/ledger"
)

// MemoryStorage implements ledger.Storage in memory.
// It is intended for tests and dry runs.
type MemoryStorage struct {
	mu        sync.RWMutex
	passes    []ledger.PassRecord
	entries   map[string][]ledger.Entry
	marks     map[markKey]ledger.Mark
	deletions map[string]time.Time
	clock     clockwork.Clock
}

type markKey struct {
	passID, file, rule string
}

// NewMemoryStorage creates an empty in-memory ledger.
func NewMemoryStorage() *MemoryStorage {
	return NewMemoryStorageWithClock(nil)
}

// NewMemoryStorageWithClock creates an empty in-memory ledger that stamps
// resolved marks with clock. A nil clock uses the real clock.
func NewMemoryStorageWithClock(clock clockwork.Clock) *MemoryStorage {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStorage{
		entries:   make(map[string][]ledger.Entry),
		marks:     make(map[markKey]ledger.Mark),
		deletions: make(map[string]time.Time),
		clock:     clock,
	}
}

// SavePass stores a copy of the pass and its entries.
func (s *MemoryStorage) SavePass(ctx context.Context, pass *ledger.PassRecord, entries []ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[pass.ID]; ok {
		return ledger.NewStorageError("memory", "save_pass", fmt.Errorf("pass %s already stored", pass.ID))
	}

	s.passes = append(s.passes, *pass)
	stored := make([]ledger.Entry, len(entries))
	for i, e := range entries {
		e.PassID = pass.ID
		stored[i] = e
	}
	s.entries[pass.ID] = stored
	return nil
}

// ListPasses returns up to limit passes, newest first.
func (s *MemoryStorage) ListPasses(ctx context.Context, limit int) ([]ledger.PassRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.sortedPasses()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortedPasses returns a copy of the passes, newest first. The caller
// must hold the lock.
func (s *MemoryStorage) sortedPasses() []ledger.PassRecord {
	out := make([]ledger.PassRecord, len(s.passes))
	copy(out, s.passes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Started.After(out[j].Started)
	})
	return out
}

// PassEntries returns the entries of one pass.
func (s *MemoryStorage) PassEntries(ctx context.Context, passID string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Entry, len(s.entries[passID]))
	copy(out, s.entries[passID])
	return out, nil
}

// CountPasses returns the number of stored passes.
func (s *MemoryStorage) CountPasses(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.passes)), nil
}

// DeletePassesBefore removes passes started before cutoff.
func (s *MemoryStorage) DeletePassesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retain(func(p ledger.PassRecord, _ int) bool {
		return !p.Started.Before(cutoff)
	}), nil
}

// DeleteOldestPasses keeps only the newest keep passes.
func (s *MemoryStorage) DeleteOldestPasses(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passes = s.sortedPasses()
	return s.retain(func(_ ledger.PassRecord, i int) bool {
		return i < keep
	}), nil
}

// retain keeps the passes accepted by keep and returns how many were
// dropped. The caller must hold the write lock.
func (s *MemoryStorage) retain(keep func(ledger.PassRecord, int) bool) int64 {
	var kept []ledger.PassRecord
	var deleted int64
	for i, p := range s.passes {
		if keep(p, i) {
			kept = append(kept, p)
			continue
		}
		delete(s.entries, p.ID)
		deleted++
	}
	s.passes = kept
	return deleted
}

// Mark records a mark.
func (s *MemoryStorage) Mark(ctx context.Context, mark ledger.Mark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mark.State == "" {
		mark.State = ledger.MarkPending
	}
	if mark.Updated.IsZero() {
		mark.Updated = mark.Created
	}
	s.marks[markKey{mark.PassID, mark.File, mark.Rule}] = mark
	return nil
}

// Resolve moves a mark to state.
func (s *MemoryStorage) Resolve(ctx context.Context, passID, file, rule string, state ledger.MarkState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := markKey{passID, file, rule}
	mark, ok := s.marks[key]
	if !ok {
		return fmt.Errorf("%s/%s/%s: %w", passID, file, rule, ledger.ErrMarkNotFound)
	}
	mark.State = state
	mark.Updated = s.clock.Now()
	s.marks[key] = mark
	return nil
}

// PendingMarks returns every pending mark, oldest first.
func (s *MemoryStorage) PendingMarks(ctx context.Context) ([]ledger.Mark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []ledger.Mark{}
	for _, m := range s.marks {
		if m.State == ledger.MarkPending {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Rule < out[j].Rule
	})
	return out, nil
}

// Marks returns every mark regardless of state, ordered by file and rule.
func (s *MemoryStorage) Marks() []ledger.Mark {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Mark, 0, len(s.marks))
	for _, m := range s.marks {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Rule < out[j].Rule
	})
	return out
}

// ScheduleDeletion lists file for deletion.
func (s *MemoryStorage) ScheduleDeletion(ctx context.Context, file string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deletions[file]; !ok {
		s.deletions[file] = at
	}
	return nil
}

// InDeletion reports whether file is listed.
func (s *MemoryStorage) InDeletion(ctx context.Context, file string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.deletions[file]
	return ok, nil
}

// RemoveDeletion drops file from the list.
func (s *MemoryStorage) RemoveDeletion(ctx context.Context, file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.deletions, file)
	return nil
}

// ListDeletions returns every listed file ordered by name.
func (s *MemoryStorage) ListDeletions(ctx context.Context) ([]ledger.Deletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Deletion, 0, len(s.deletions))
	for file, at := range s.deletions {
		out = append(out, ledger.Deletion{File: file, Scheduled: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}
