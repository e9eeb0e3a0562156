package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"mercator-hq/callisto/pkg/ledger"
)

// backends returns a fresh instance of every ledger backend.
func backends(t *testing.T) map[string]ledger.Storage {
	t.Helper()
	return backendsWithClock(t, nil)
}

func backendsWithClock(t *testing.T, clock clockwork.Clock) map[string]ledger.Storage {
	t.Helper()

	sqlite, err := NewSQLiteStorage(&SQLiteConfig{
		Path:    filepath.Join(t.TempDir(), "ledger.db"),
		WALMode: true,
	}, clock)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]ledger.Storage{
		"memory": NewMemoryStorageWithClock(clock),
		"sqlite": sqlite,
	}
}

var base = time.Date(2024, 2, 12, 3, 0, 0, 0, time.UTC)

func pass(id string, offset time.Duration) *ledger.PassRecord {
	return &ledger.PassRecord{
		ID:       id,
		Started:  base.Add(offset),
		Finished: base.Add(offset + time.Minute),
		Files:    2,
		Matched:  3,
		Applied:  2,
		Failed:   1,
	}
}

func TestStorage_SaveAndListPasses(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			entries := []ledger.Entry{
				{File: "NL.HGN.02.BHZ.D.2024.041", Rule: "PRUNE", Outcome: ledger.OutcomeSuccess, Duration: 2 * time.Second, Time: base},
				{File: "NL.HGN.02.BHZ.D.2024.041", Rule: "INGEST", Outcome: ledger.OutcomeFailure, Error: "bucket unreachable", Time: base},
			}
			if err := s.SavePass(ctx, pass("p1", 0), entries); err != nil {
				t.Fatalf("SavePass() error = %v", err)
			}
			p2 := pass("p2", 24*time.Hour)
			p2.Fatal = true
			if err := s.SavePass(ctx, p2, nil); err != nil {
				t.Fatalf("SavePass() error = %v", err)
			}

			passes, err := s.ListPasses(ctx, 0)
			if err != nil {
				t.Fatalf("ListPasses() error = %v", err)
			}
			if len(passes) != 2 || passes[0].ID != "p2" || passes[1].ID != "p1" {
				t.Fatalf("ListPasses() = %+v, want p2, p1", passes)
			}
			if !passes[0].Fatal || passes[1].Fatal {
				t.Error("Fatal flag not persisted")
			}
			if !passes[1].Started.Equal(base) {
				t.Errorf("Started = %v, want %v", passes[1].Started, base)
			}

			limited, _ := s.ListPasses(ctx, 1)
			if len(limited) != 1 {
				t.Errorf("ListPasses(1) returned %d passes", len(limited))
			}

			got, err := s.PassEntries(ctx, "p1")
			if err != nil {
				t.Fatalf("PassEntries() error = %v", err)
			}
			for i := range entries {
				entries[i].PassID = "p1"
			}
			if diff := cmp.Diff(entries, got); diff != "" {
				t.Errorf("PassEntries() mismatch (-want +got):\n%s", diff)
			}

			count, _ := s.CountPasses(ctx)
			if count != 2 {
				t.Errorf("CountPasses() = %d, want 2", count)
			}
		})
	}
}

func TestStorage_DeletePasses(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"a", "b", "c", "d"} {
				entries := []ledger.Entry{{File: id, Rule: "R", Outcome: ledger.OutcomeSuccess, Time: base}}
				if err := s.SavePass(ctx, pass(id, time.Duration(i)*24*time.Hour), entries); err != nil {
					t.Fatal(err)
				}
			}

			deleted, err := s.DeletePassesBefore(ctx, base.Add(24*time.Hour))
			if err != nil {
				t.Fatalf("DeletePassesBefore() error = %v", err)
			}
			if deleted != 1 {
				t.Errorf("DeletePassesBefore() = %d, want 1", deleted)
			}
			if e, _ := s.PassEntries(ctx, "a"); len(e) != 0 {
				t.Error("entries of deleted pass remain")
			}

			deleted, err = s.DeleteOldestPasses(ctx, 2)
			if err != nil {
				t.Fatalf("DeleteOldestPasses() error = %v", err)
			}
			if deleted != 1 {
				t.Errorf("DeleteOldestPasses() = %d, want 1", deleted)
			}

			passes, _ := s.ListPasses(ctx, 0)
			var ids []string
			for _, p := range passes {
				ids = append(ids, p.ID)
			}
			if diff := cmp.Diff([]string{"d", "c"}, ids); diff != "" {
				t.Errorf("remaining passes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStorage_Marks(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i, file := range []string{"f1", "f2"} {
				err := s.Mark(ctx, ledger.Mark{PassID: "p1", File: file, Rule: "PURGE", Created: base.Add(time.Duration(i) * time.Second)})
				if err != nil {
					t.Fatalf("Mark() error = %v", err)
				}
			}

			pending, err := s.PendingMarks(ctx)
			if err != nil {
				t.Fatalf("PendingMarks() error = %v", err)
			}
			if len(pending) != 2 || pending[0].File != "f1" || pending[0].State != ledger.MarkPending {
				t.Fatalf("PendingMarks() = %+v", pending)
			}

			if err := s.Resolve(ctx, "p1", "f1", "PURGE", ledger.MarkDone); err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			pending, _ = s.PendingMarks(ctx)
			if len(pending) != 1 || pending[0].File != "f2" {
				t.Errorf("PendingMarks() after resolve = %+v", pending)
			}

			err = s.Resolve(ctx, "p9", "f1", "PURGE", ledger.MarkDone)
			if !errors.Is(err, ledger.ErrMarkNotFound) {
				t.Errorf("Resolve(unknown) error = %v, want ErrMarkNotFound", err)
			}
		})
	}
}

// resolvedAt returns the update time of a mark of any state.
func resolvedAt(t *testing.T, s ledger.Storage, passID, file, rule string) (ledger.MarkState, time.Time) {
	t.Helper()
	switch s := s.(type) {
	case *MemoryStorage:
		for _, m := range s.Marks() {
			if m.PassID == passID && m.File == file && m.Rule == rule {
				return m.State, m.Updated
			}
		}
	case *SQLiteStorage:
		var state string
		var updated int64
		err := s.db.QueryRow("SELECT state, updated FROM marks WHERE pass_id = ? AND file = ? AND rule = ?", passID, file, rule).Scan(&state, &updated)
		if err != nil {
			t.Fatalf("query mark: %v", err)
		}
		return ledger.MarkState(state), time.Unix(0, updated).UTC()
	}
	t.Fatalf("mark %s/%s/%s not found", passID, file, rule)
	return "", time.Time{}
}

func TestStorage_ResolveStampsClockTime(t *testing.T) {
	resolved := base.Add(90 * time.Minute)
	for name, s := range backendsWithClock(t, clockwork.NewFakeClockAt(resolved)) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Mark(ctx, ledger.Mark{PassID: "p1", File: "f1", Rule: "PURGE", Created: base}); err != nil {
				t.Fatalf("Mark() error = %v", err)
			}
			if err := s.Resolve(ctx, "p1", "f1", "PURGE", ledger.MarkFailed); err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}

			state, updated := resolvedAt(t, s, "p1", "f1", "PURGE")
			if state != ledger.MarkFailed {
				t.Errorf("state = %s, want %s", state, ledger.MarkFailed)
			}
			if !updated.Equal(resolved) {
				t.Errorf("updated = %v, want %v", updated, resolved)
			}
		})
	}
}

func TestStorage_Deletions(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.ScheduleDeletion(ctx, "NL.HGN.02.BHZ.Q.2024.041", base); err != nil {
				t.Fatalf("ScheduleDeletion() error = %v", err)
			}
			// Scheduling again keeps the original time.
			if err := s.ScheduleDeletion(ctx, "NL.HGN.02.BHZ.Q.2024.041", base.Add(time.Hour)); err != nil {
				t.Fatalf("ScheduleDeletion() error = %v", err)
			}
			if err := s.ScheduleDeletion(ctx, "NL.AAA.02.BHZ.Q.2024.041", base); err != nil {
				t.Fatal(err)
			}

			ok, err := s.InDeletion(ctx, "NL.HGN.02.BHZ.Q.2024.041")
			if err != nil || !ok {
				t.Errorf("InDeletion() = %v, %v; want true", ok, err)
			}

			list, _ := s.ListDeletions(ctx)
			want := []ledger.Deletion{
				{File: "NL.AAA.02.BHZ.Q.2024.041", Scheduled: base},
				{File: "NL.HGN.02.BHZ.Q.2024.041", Scheduled: base},
			}
			if diff := cmp.Diff(want, list); diff != "" {
				t.Errorf("ListDeletions() mismatch (-want +got):\n%s", diff)
			}

			if err := s.RemoveDeletion(ctx, "NL.HGN.02.BHZ.Q.2024.041"); err != nil {
				t.Fatal(err)
			}
			if err := s.RemoveDeletion(ctx, "NL.HGN.02.BHZ.Q.2024.041"); err != nil {
				t.Errorf("RemoveDeletion(missing) error = %v", err)
			}
			ok, _ = s.InDeletion(ctx, "NL.HGN.02.BHZ.Q.2024.041")
			if ok {
				t.Error("InDeletion() = true after removal")
			}
		})
	}
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage(&SQLiteConfig{}, nil)
	var se *ledger.StorageError
	if !errors.As(err, &se) {
		t.Errorf("NewSQLiteStorage() error = %v, want *StorageError", err)
	}
}
