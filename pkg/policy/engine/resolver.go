package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/inventory"
	"mercator-hq/callisto/pkg/policy/actions"
	"mercator-hq/callisto/pkg/policy/ruleset"
	"mercator-hq/callisto/pkg/quality"
	"mercator-hq/callisto/pkg/sds"
)

// PassContext identifies the pass an evaluation belongs to.
type PassContext struct {
	// ID is the pass UUID.
	ID string

	// Start is the reference instant of every time threshold in the pass.
	Start time.Time
}

// Resolver produces file snapshots for one pass. Every backend lookup is
// memoized for the lifetime of the resolver and concurrent identical
// lookups are merged.
type Resolver struct {
	env  *backend.Env
	pass PassContext

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]memoEntry

	lookups atomic.Int64
	hits    atomic.Int64
}

type memoEntry struct {
	val any
	err error
}

// ResolverStats counts resolver lookups.
type ResolverStats struct {
	// Lookups is the number of backend calls made.
	Lookups int64

	// Hits is the number of lookups answered from the memo.
	Hits int64
}

// NewResolver creates a resolver for the pass.
func NewResolver(env *backend.Env, pass PassContext) *Resolver {
	return &Resolver{
		env:  env,
		pass: pass,
		memo: make(map[string]memoEntry),
	}
}

// Pass returns the pass the resolver belongs to.
func (r *Resolver) Pass() PassContext {
	return r.pass
}

// Env returns the backends the resolver queries.
func (r *Resolver) Env() *backend.Env {
	return r.env
}

// Stats returns the lookup counters.
func (r *Resolver) Stats() ResolverStats {
	return ResolverStats{Lookups: r.lookups.Load(), Hits: r.hits.Load()}
}

// Seed records entries collected from the archive so that resolving them
// does not stat the filesystem again.
func (r *Resolver) Seed(entries []inventory.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.memo[statKey(e.File)] = memoEntry{val: e}
	}
}

func statKey(f sds.File) string {
	return memoKey("stat", f)
}

// do runs fn once per key for the pass.
func (r *Resolver) do(key string, fn func() (any, error)) (any, error) {
	r.mu.Lock()
	if e, ok := r.memo[key]; ok {
		r.mu.Unlock()
		r.hits.Add(1)
		return e.val, e.err
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.Lock()
		if e, ok := r.memo[key]; ok {
			r.mu.Unlock()
			r.hits.Add(1)
			return e.val, e.err
		}
		r.mu.Unlock()

		r.lookups.Add(1)
		v, err := fn()
		// Cancellation belongs to the caller, not to the file state.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			r.mu.Lock()
			r.memo[key] = memoEntry{val: v, err: err}
			r.mu.Unlock()
		}
		return v, err
	})
	return v, err
}

func (r *Resolver) doBool(key string, fn func() (bool, error)) (bool, error) {
	v, err := r.do(key, func() (any, error) { return fn() })
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Resolve returns the snapshot of the file selected by target relative to
// f. A missing neighbor yields ErrNoNeighbor.
func (r *Resolver) Resolve(ctx context.Context, f sds.File, target ruleset.Target) (*Snapshot, error) {
	subject, stat := f, func() (any, error) { return r.env.Archive.Stat(f) }
	switch target {
	case ruleset.TargetPrevious:
		subject = f.Previous()
		stat = func() (any, error) { return r.env.Archive.Neighbor(f, inventory.Previous) }
	case ruleset.TargetNext:
		subject = f.Next()
		stat = func() (any, error) { return r.env.Archive.Neighbor(f, inventory.Next) }
	}

	v, err := r.do(statKey(subject), stat)
	if err != nil {
		if target != ruleset.TargetSelf && errors.Is(err, inventory.ErrNotFound) {
			return nil, fmt.Errorf("%s of %s: %w", target, f, ErrNoNeighbor)
		}
		return nil, err
	}
	return &Snapshot{Entry: v.(inventory.Entry), Target: target, resolver: r}, nil
}

// Snapshot is the read-only view of one file during a pass.
type Snapshot struct {
	// Entry is the archive entry of the file.
	Entry inventory.Entry

	// Target is the selector the snapshot was resolved with.
	Target ruleset.Target

	resolver *Resolver
}

// File returns the file identity.
func (s *Snapshot) File() sds.File {
	return s.Entry.File
}

// Quality returns the file quality.
func (s *Snapshot) Quality() quality.Quality {
	return s.Entry.File.Quality
}

// ModTime returns the filesystem modification time.
func (s *Snapshot) ModTime() time.Time {
	return s.Entry.ModTime
}

// Size returns the file size in bytes.
func (s *Snapshot) Size() int64 {
	return s.Entry.Size
}

// DataStart returns the start of the data window.
func (s *Snapshot) DataStart() time.Time {
	return s.Entry.File.Start()
}

// DataEnd returns the exclusive end of the data window.
func (s *Snapshot) DataEnd() time.Time {
	return s.Entry.File.End()
}

// Checksum returns the file checksum.
func (s *Snapshot) Checksum(ctx context.Context) (string, error) {
	f := s.File()
	v, err := s.resolver.do(memoKey("checksum", f), func() (any, error) {
		return s.resolver.env.Archive.Checksum(ctx, f)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// verified returns the checksum to compare against, or "" when verify is
// false.
func (s *Snapshot) verified(ctx context.Context, verify bool) (string, error) {
	if !verify {
		return "", nil
	}
	return s.Checksum(ctx)
}

// ObjectExists reports whether the file is in the object store under
// prefix.
func (s *Snapshot) ObjectExists(ctx context.Context, prefix string, verify bool) (bool, error) {
	checksum, err := s.verified(ctx, verify)
	if err != nil {
		return false, err
	}
	key := actions.ObjectKey(s.File(), prefix)
	return s.resolver.doBool(memoKey("object", s.File(), key, checksum), func() (bool, error) {
		return s.resolver.env.ObjectStore.Exists(ctx, key, checksum)
	})
}

// CatalogExists reports whether a catalog document of kind exists.
func (s *Snapshot) CatalogExists(ctx context.Context, kind backend.Kind, verify bool) (bool, error) {
	checksum, err := s.verified(ctx, verify)
	if err != nil {
		return false, err
	}
	id := s.File().Filename()
	return s.resolver.doBool(memoKey("catalog", s.File(), string(kind), checksum), func() (bool, error) {
		return s.resolver.env.Catalog.Exists(ctx, kind, id, checksum)
	})
}

// PIDAssigned reports whether the file has a persistent identifier.
func (s *Snapshot) PIDAssigned(ctx context.Context) (bool, error) {
	return s.resolver.doBool(memoKey("pid", s.File()), func() (bool, error) {
		_, found, err := s.resolver.env.PIDs.Lookup(ctx, s.File().ObjectKey())
		return found, err
	})
}

// Replicated reports whether the file is replicated under root.
func (s *Snapshot) Replicated(ctx context.Context, root string, verify bool) (bool, error) {
	checksum, err := s.verified(ctx, verify)
	if err != nil {
		return false, err
	}
	return s.resolver.doBool(memoKey("replica", s.File(), root, checksum), func() (bool, error) {
		return s.resolver.env.Replicator.ReplicaExists(ctx, s.File().ObjectKey(), root, checksum)
	})
}

// PrunedExists reports whether the pruned sibling is in the archive.
func (s *Snapshot) PrunedExists(ctx context.Context) (bool, error) {
	pruned := s.File().WithQuality(quality.Pruned)
	return s.resolver.doBool(memoKey("pruned", s.File()), func() (bool, error) {
		return s.resolver.env.Archive.Exists(pruned)
	})
}

// InDeletion reports whether the file is in the deletion ledger.
func (s *Snapshot) InDeletion(ctx context.Context) (bool, error) {
	return s.resolver.doBool(memoKey("deletion", s.File()), func() (bool, error) {
		return s.resolver.env.Deletions.InDeletion(ctx, s.File().Filename())
	})
}

// memoKey identifies a lookup by probe, file and parameters.
func memoKey(probe string, f sds.File, params ...string) string {
	return strings.Join(append([]string{probe, f.Filename()}, params...), "|")
}
