package git

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// reloadRecorder reads rules.json on each reload and rejects "bad".
type reloadRecorder struct {
	repo  *Repository
	calls []string
}

func (r *reloadRecorder) reload() error {
	data, err := os.ReadFile(r.repo.Path("rules.json"))
	if err != nil {
		return err
	}
	r.calls = append(r.calls, string(data))
	if string(data) == "bad" {
		return errors.New("invalid rule table")
	}
	return nil
}

func newSyncedRepo(t *testing.T) (*origin, *Repository) {
	t.Helper()
	o := newOrigin(t)
	repo, err := NewRepository(o.config(t), nil)
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	if _, err := repo.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	return o, repo
}

func TestSyncer_Check(t *testing.T) {
	o, repo := newSyncedRepo(t)
	rec := &reloadRecorder{repo: repo}
	s := NewSyncer(repo, time.Minute, []string{"rules.json", "", "./sequence.json"}, rec.reload, nil)
	ctx := context.Background()
	initial, _ := repo.Head()

	// Nothing new.
	if err := s.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("unexpected reloads: %v", rec.calls)
	}

	// Unwatched files move the accepted commit without a reload.
	readme := o.commit("docs", map[string]string{"README": "more docs"})
	if err := s.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(rec.calls) != 0 || s.Accepted() != readme {
		t.Errorf("calls=%v accepted=%s, want no reload and %s (initial %s)", rec.calls, s.Accepted(), readme, initial)
	}

	// A watched change reloads.
	good := o.commit("new rules", map[string]string{"rules.json": "good"})
	if err := s.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if s.Accepted() != good || len(rec.calls) != 1 {
		t.Errorf("accepted=%s calls=%v, want %s and one reload", s.Accepted(), rec.calls, good)
	}

	// A rejected table resets the checkout.
	o.commit("broken rules", map[string]string{"rules.json": "bad"})
	if err := s.Check(ctx); err == nil {
		t.Fatal("expected the rejected reload to be reported")
	}
	if head, _ := repo.Head(); head != good {
		t.Errorf("checkout not reset: head %s, want %s", head, good)
	}
	if data, _ := os.ReadFile(repo.Path("rules.json")); string(data) != "good" {
		t.Errorf("rules.json = %q after rejection", data)
	}

	// The rejected commit is not retried.
	calls := len(rec.calls)
	if err := s.Check(ctx); err != nil {
		t.Fatalf("Check() on rejected commit error = %v", err)
	}
	if len(rec.calls) != calls {
		t.Errorf("rejected commit was reloaded again: %v", rec.calls)
	}
	if head, _ := repo.Head(); head != good {
		t.Errorf("head %s, want %s", head, good)
	}

	// A fix on top is picked up.
	fixed := o.commit("fix rules", map[string]string{"rules.json": "fixed"})
	if err := s.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if s.Accepted() != fixed {
		t.Errorf("accepted %s, want %s", s.Accepted(), fixed)
	}
}

func TestSyncer_Run(t *testing.T) {
	o, repo := newSyncedRepo(t)
	rec := &reloadRecorder{repo: repo}
	s := NewSyncer(repo, time.Minute, []string{"rules.json"}, rec.reload, nil)
	clock := clockwork.NewFakeClock()
	s.clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker not started: %v", err)
	}
	want := o.commit("new rules", map[string]string{"rules.json": "good"})
	clock.Advance(time.Minute)

	deadline := time.Now().Add(5 * time.Second)
	for s.Accepted() != want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Accepted() != want {
		t.Errorf("accepted %s, want %s", s.Accepted(), want)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestSyncer_RunRequiresSync(t *testing.T) {
	o := newOrigin(t)
	repo, _ := NewRepository(o.config(t), nil)
	s := NewSyncer(repo, time.Minute, []string{"rules.json"}, func() error { return nil }, nil)

	if err := s.Run(context.Background()); err == nil {
		t.Error("Run() on an unsynced repository should fail")
	}
}
