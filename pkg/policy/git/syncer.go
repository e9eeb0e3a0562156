package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ReloadFunc activates the rule files of the working copy. An error keeps
// the previous table active.
type ReloadFunc func() error

// Syncer polls a Repository and reloads the rules when they change.
type Syncer struct {
	repo     *Repository
	interval time.Duration
	watched  []string
	reload   ReloadFunc
	logger   *slog.Logger
	clock    clockwork.Clock

	mu       sync.Mutex
	accepted string
	rejected string
}

// NewSyncer creates a syncer. watched lists the repository-relative paths
// whose change triggers a reload.
func NewSyncer(repo *Repository, interval time.Duration, watched []string, reload ReloadFunc, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	clean := make([]string, 0, len(watched))
	for _, p := range watched {
		if p != "" {
			clean = append(clean, filepath.ToSlash(filepath.Clean(p)))
		}
	}
	return &Syncer{
		repo:     repo,
		interval: interval,
		watched:  clean,
		reload:   reload,
		logger:   logger.With("component", "policy.git"),
		clock:    clockwork.NewRealClock(),
	}
}

// Run polls until ctx is done. The current HEAD counts as accepted.
func (s *Syncer) Run(ctx context.Context) error {
	head, err := s.repo.Head()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.accepted = head
	s.mu.Unlock()

	s.logger.Info("rule repository polling started",
		"interval", s.interval,
		"commit", short(head),
	)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := s.Check(ctx); err != nil {
				s.logger.Error("rule repository sync failed", "error", err)
			}
		}
	}
}

// Check pulls once and reloads when a watched file changed.
func (s *Syncer) Check(ctx context.Context) error {
	res, err := s.repo.Sync(ctx)
	if err != nil {
		return err
	}
	if !res.Changed() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accepted == "" {
		s.accepted = res.From
	}

	if res.To == s.rejected {
		return s.repo.Reset(s.accepted)
	}
	if !s.touches(res.Files) {
		s.logger.Debug("rule repository moved without rule changes", "commit", short(res.To))
		s.accepted = res.To
		return nil
	}

	s.logger.Info("rule files changed", "from", short(res.From), "to", short(res.To), "files", res.Files)
	if err := s.reload(); err != nil {
		s.rejected = res.To
		if rerr := s.repo.Reset(s.accepted); rerr != nil {
			return fmt.Errorf("rules of %s rejected (%v) and reset failed: %w", short(res.To), err, rerr)
		}
		return fmt.Errorf("rules of %s rejected, kept %s: %w", short(res.To), short(s.accepted), err)
	}
	s.accepted = res.To
	s.rejected = ""
	return nil
}

// Accepted returns the commit of the active rule files.
func (s *Syncer) Accepted() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *Syncer) touches(files []string) bool {
	for _, f := range files {
		if slices.Contains(s.watched, filepath.ToSlash(f)) {
			return true
		}
	}
	return false
}
