package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"mercator-hq/callisto/pkg/config"
)

// SyncResult describes one sync of the working copy.
type SyncResult struct {
	// From is the commit before the sync, empty after a fresh clone.
	From string

	// To is the commit after the sync.
	To string

	// Files lists the paths changed between From and To, relative to the
	// repository root. A fresh clone lists nothing.
	Files []string
}

// Changed reports whether a pull moved the working copy.
func (r *SyncResult) Changed() bool {
	return r.From != "" && r.From != r.To
}

// Repository is a working copy of the rule repository.
type Repository struct {
	cfg  *config.RulesGitConfig
	auth transport.AuthMethod

	mu   sync.Mutex
	repo *gogit.Repository
}

// NewRepository creates a repository for cfg. Nothing is cloned until the
// first Sync.
func NewRepository(cfg *config.RulesGitConfig, auth transport.AuthMethod) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}
	if cfg.Checkout == "" {
		return nil, fmt.Errorf("checkout path cannot be empty")
	}
	return &Repository{cfg: cfg, auth: auth}, nil
}

// Dir returns the working copy directory.
func (r *Repository) Dir() string {
	return r.cfg.Checkout
}

// Path returns the absolute location of a repository-relative path.
func (r *Repository) Path(rel string) string {
	return filepath.Join(r.cfg.Checkout, rel)
}

// Sync clones the branch when there is no working copy yet and pulls it
// otherwise.
func (r *Repository) Sync(ctx context.Context) (*SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo == nil {
		opened, err := r.open(ctx)
		if err != nil {
			return nil, err
		}
		if !opened {
			head, err := r.head()
			if err != nil {
				return nil, err
			}
			return &SyncResult{To: head}, nil
		}
	}
	return r.pull(ctx)
}

// open opens an existing working copy or clones a new one. It reports
// whether the working copy existed.
func (r *Repository) open(ctx context.Context) (bool, error) {
	if _, err := os.Stat(filepath.Join(r.cfg.Checkout, ".git")); err == nil {
		repo, err := gogit.PlainOpen(r.cfg.Checkout)
		if err != nil {
			return false, fmt.Errorf("failed to open rule checkout: %w", err)
		}
		r.repo = repo
		return true, nil
	}

	if err := os.MkdirAll(r.cfg.Checkout, 0o755); err != nil {
		return false, fmt.Errorf("failed to create rule checkout: %w", err)
	}
	cloneCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, r.cfg.Checkout, false, &gogit.CloneOptions{
		URL:           r.cfg.Repository,
		Auth:          r.auth,
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
		Depth:         r.cfg.Depth,
	})
	if err != nil {
		return false, fmt.Errorf("failed to clone rule repository: %w", err)
	}
	r.repo = repo
	return false, nil
}

func (r *Repository) pull(ctx context.Context) (*SyncResult, error) {
	from, err := r.head()
	if err != nil {
		return nil, err
	}
	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	pullCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
		Auth:          r.auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("failed to pull rule repository: %w", err)
	}

	to, err := r.head()
	if err != nil {
		return nil, err
	}
	result := &SyncResult{From: from, To: to}
	if result.Changed() {
		if result.Files, err = r.changedFiles(from, to); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Head returns the commit of the working copy.
func (r *Repository) Head() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repo == nil {
		return "", fmt.Errorf("rule repository not synced")
	}
	return r.head()
}

func (r *Repository) head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// Reset moves the branch and the working copy back to commit sha.
func (r *Repository) Reset(sha string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repo == nil {
		return fmt.Errorf("rule repository not synced")
	}

	hash := plumbing.NewHash(sha)
	if _, err := r.repo.CommitObject(hash); err != nil {
		return fmt.Errorf("commit %s not found: %w", short(sha), err)
	}
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.Reset(&gogit.ResetOptions{Commit: hash, Mode: gogit.HardReset}); err != nil {
		return fmt.Errorf("failed to reset to %s: %w", short(sha), err)
	}
	return nil
}

func (r *Repository) changedFiles(from, to string) ([]string, error) {
	fromCommit, err := r.repo.CommitObject(plumbing.NewHash(from))
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", short(from), err)
	}
	toCommit, err := r.repo.CommitObject(plumbing.NewHash(to))
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", short(to), err)
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree: %w", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}
	files := make([]string, 0, len(changes))
	for _, change := range changes {
		if change.To.Name != "" {
			files = append(files, change.To.Name)
		} else {
			files = append(files, change.From.Name)
		}
	}
	return files, nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.Timeout)
}

// short abbreviates a commit hash for messages.
func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
