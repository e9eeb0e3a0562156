package mocks

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/inventory"
)

// calls counts calls per method name.
type calls struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *calls) add(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[method]++
}

// Calls returns how often method was called.
func (c *calls) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[method]
}

// ObjectStore is an in-memory backend.ObjectStore.
type ObjectStore struct {
	calls
	mu      sync.Mutex
	objects map[string]object

	// Err is returned by every call when set.
	Err error
}

type object struct {
	data     []byte
	checksum string
}

// NewObjectStore returns an empty object store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string]object)}
}

// Exists implements backend.ObjectStore.
func (s *ObjectStore) Exists(ctx context.Context, key, checksum string) (bool, error) {
	s.add("Exists")
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	return ok && (checksum == "" || obj.checksum == checksum), nil
}

// Put implements backend.ObjectStore.
func (s *ObjectStore) Put(ctx context.Context, key string, r io.Reader, checksum string) error {
	s.add("Put")
	if s.Err != nil {
		return s.Err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: data, checksum: checksum}
	return nil
}

// Delete implements backend.ObjectStore.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	s.add("Delete")
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Keys returns the stored keys, sorted.
func (s *ObjectStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Catalog is an in-memory backend.Catalog.
type Catalog struct {
	calls
	mu   sync.Mutex
	docs map[string][]backend.Document

	// Err is returned by every call when set.
	Err error
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{docs: make(map[string][]backend.Document)}
}

func docKey(kind backend.Kind, fileID string) string {
	return string(kind) + "/" + fileID
}

// Exists implements backend.Catalog.
func (c *Catalog) Exists(ctx context.Context, kind backend.Kind, fileID, checksum string) (bool, error) {
	c.add("Exists")
	if c.Err != nil {
		return false, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	docs := c.docs[docKey(kind, fileID)]
	if len(docs) == 0 {
		return false, nil
	}
	return checksum == "" || docs[0].Checksum == checksum, nil
}

// Put implements backend.Catalog.
func (c *Catalog) Put(ctx context.Context, docs ...backend.Document) error {
	c.add("Put")
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	replaced := make(map[string]bool)
	for _, d := range docs {
		k := docKey(d.Kind, d.FileID)
		if !replaced[k] {
			c.docs[k] = nil
			replaced[k] = true
		}
		c.docs[k] = append(c.docs[k], d)
	}
	return nil
}

// Get implements backend.Catalog.
func (c *Catalog) Get(ctx context.Context, kind backend.Kind, fileID string) ([]backend.Document, error) {
	c.add("Get")
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]backend.Document(nil), c.docs[docKey(kind, fileID)]...), nil
}

// Delete implements backend.Catalog.
func (c *Catalog) Delete(ctx context.Context, kind backend.Kind, fileID string) error {
	c.add("Delete")
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, docKey(kind, fileID))
	return nil
}

// SetPID implements backend.Catalog.
func (c *Catalog) SetPID(ctx context.Context, kind backend.Kind, fileID, pid string) error {
	c.add("SetPID")
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	docs := c.docs[docKey(kind, fileID)]
	if len(docs) == 0 {
		return fmt.Errorf("no %s document for %s", kind, fileID)
	}
	for i := range docs {
		docs[i].PID = pid
	}
	return nil
}

// PIDRegistry is an in-memory backend.PIDRegistry.
type PIDRegistry struct {
	calls
	mu   sync.Mutex
	pids map[string]string

	// Err is returned by every call when set.
	Err error
}

// NewPIDRegistry returns an empty registry.
func NewPIDRegistry() *PIDRegistry {
	return &PIDRegistry{pids: make(map[string]string)}
}

// Lookup implements backend.PIDRegistry.
func (r *PIDRegistry) Lookup(ctx context.Context, key string) (string, bool, error) {
	r.add("Lookup")
	if r.Err != nil {
		return "", false, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, ok := r.pids[key]
	return pid, ok, nil
}

// Assign implements backend.PIDRegistry.
func (r *PIDRegistry) Assign(ctx context.Context, key, checksum string) (string, error) {
	r.add("Assign")
	if r.Err != nil {
		return "", r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if pid, ok := r.pids[key]; ok {
		return pid, nil
	}
	pid := fmt.Sprintf("21.T11/%04d", len(r.pids)+1)
	r.pids[key] = pid
	return pid, nil
}

// Replicator is an in-memory backend.Replicator.
type Replicator struct {
	calls
	mu       sync.Mutex
	replicas map[string]bool

	// Err is returned by every call when set.
	Err error
}

// NewReplicator returns a replicator without replicas.
func NewReplicator() *Replicator {
	return &Replicator{replicas: make(map[string]bool)}
}

// ReplicaExists implements backend.Replicator. Checksums are not tracked.
func (r *Replicator) ReplicaExists(ctx context.Context, key, root, checksum string) (bool, error) {
	r.add("ReplicaExists")
	if r.Err != nil {
		return false, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replicas[root+"|"+key], nil
}

// Replicate implements backend.Replicator.
func (r *Replicator) Replicate(ctx context.Context, key, root string) error {
	r.add("Replicate")
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replicas[root+"|"+key] = true
	return nil
}

// Repacker is a backend.Repacker that concatenates its inputs from the
// archive filesystem.
type Repacker struct {
	calls

	// Archive provides the input files.
	Archive *inventory.Archive

	// Delay makes Repack wait on Clock before writing.
	Delay time.Duration

	// Clock is used for Delay. Defaults to the real clock.
	Clock clockwork.Clock

	// Started is signalled when a delayed Repack begins waiting.
	Started chan struct{}

	// Err is returned when set.
	Err error

	mu       sync.Mutex
	requests []backend.RepackRequest
}

// Repack implements backend.Repacker.
func (r *Repacker) Repack(ctx context.Context, req backend.RepackRequest, w io.Writer) error {
	r.add("Repack")
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if r.Delay > 0 {
		clock := r.Clock
		if clock == nil {
			clock = clockwork.NewRealClock()
		}
		timer := clock.After(r.Delay)
		if r.Started != nil {
			r.Started <- struct{}{}
		}
		select {
		case <-timer:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.Err != nil {
		return r.Err
	}

	for _, p := range req.Inputs {
		f, err := r.Archive.Fs().Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Requests returns the requests received so far.
func (r *Repacker) Requests() []backend.RepackRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]backend.RepackRequest(nil), r.requests...)
}

// PSDComputer returns a fixed number of segments per file.
type PSDComputer struct {
	calls

	// Segments is the number of documents produced per file.
	Segments int

	// Err is returned when set.
	Err error
}

// Compute implements backend.PSDComputer.
func (p *PSDComputer) Compute(ctx context.Context, entry inventory.Entry, checksum string) ([]backend.Document, error) {
	p.add("Compute")
	if p.Err != nil {
		return nil, p.Err
	}
	docs := make([]backend.Document, p.Segments)
	for i := range docs {
		docs[i] = backend.Document{
			Kind:     backend.KindPPSD,
			FileID:   entry.File.Filename(),
			Segment:  i,
			Checksum: checksum,
			Body:     map[string]any{"segment": i},
		}
	}
	return docs, nil
}
