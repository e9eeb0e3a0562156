package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockRetry is the polling interval while waiting for a lock file.
const lockRetry = 50 * time.Millisecond

// fileLocks serializes mutating and destructive actions per file window.
// Within the process a keyed mutex is used; with a lock directory a lock
// file additionally excludes other processes.
type fileLocks struct {
	dir string

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newFileLocks(dir string) *fileLocks {
	return &fileLocks{dir: dir, locks: make(map[string]*keyLock)}
}

// Lock acquires the lock for key and returns its release function.
func (l *fileLocks) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, kl)
		return nil, ctx.Err()
	}

	var fl *flock.Flock
	if l.dir != "" {
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			l.release(key, kl)
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
		fl = flock.New(filepath.Join(l.dir, lockFileName(key)))
		locked, err := fl.TryLockContext(ctx, lockRetry)
		if err != nil || !locked {
			l.release(key, kl)
			if err == nil {
				err = ctx.Err()
			}
			return nil, fmt.Errorf("failed to lock %s: %w", key, err)
		}
	}

	return func() {
		if fl != nil {
			_ = fl.Unlock()
		}
		l.release(key, kl)
	}, nil
}

func (l *fileLocks) release(key string, kl *keyLock) {
	<-kl.ch
	l.drop(key, kl)
}

func (l *fileLocks) drop(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func lockFileName(key string) string {
	return strings.ReplaceAll(key, string(os.PathSeparator), "_") + ".lock"
}
