package mocks

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/backend/metadata"
	"mercator-hq/callisto/pkg/inventory"
	"mercator-hq/callisto/pkg/ledger/storage"
	"mercator-hq/callisto/pkg/sds"
)

// ArchiveRoot is the archive root used by Backends.
const ArchiveRoot = "/data/archive"

// Backends bundles in-memory backends around a memory filesystem archive.
type Backends struct {
	Fs          afero.Fs
	Archive     *inventory.Archive
	ObjectStore *ObjectStore
	Catalog     *Catalog
	PIDs        *PIDRegistry
	Replicator  *Replicator
	Repacker    *Repacker
	PSD         *PSDComputer
	Ledger      *storage.MemoryStorage
}

// NewBackends returns a fresh set of backends.
func NewBackends() *Backends {
	fs := afero.NewMemMapFs()
	archive := inventory.NewArchive(fs, ArchiveRoot)
	return &Backends{
		Fs:          fs,
		Archive:     archive,
		ObjectStore: NewObjectStore(),
		Catalog:     NewCatalog(),
		PIDs:        NewPIDRegistry(),
		Replicator:  NewReplicator(),
		Repacker:    &Repacker{Archive: archive},
		PSD:         &PSDComputer{Segments: 2},
		Ledger:      storage.NewMemoryStorage(),
	}
}

// Env returns the backends as a backend.Env.
func (b *Backends) Env() *backend.Env {
	return &backend.Env{
		Archive:     b.Archive,
		ObjectStore: b.ObjectStore,
		Catalog:     b.Catalog,
		PIDs:        b.PIDs,
		Replicator:  b.Replicator,
		Repacker:    b.Repacker,
		Extractor:   metadata.New(metadata.Config{}),
		PSD:         b.PSD,
		Deletions:   b.Ledger,
	}
}

// AddFile writes name into the archive with the given content and
// modification time.
func (b *Backends) AddFile(t testing.TB, name, content string, modTime time.Time) sds.File {
	t.Helper()
	f := sds.MustParse(name)
	p := b.Archive.Path(f)
	if err := afero.WriteFile(b.Fs, p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	if err := b.Fs.Chtimes(p, modTime, modTime); err != nil {
		t.Fatalf("chtimes %s: %v", p, err)
	}
	return f
}

// Entry returns the archive entry of f.
func (b *Backends) Entry(t testing.TB, f sds.File) inventory.Entry {
	t.Helper()
	e, err := b.Archive.Stat(f)
	if err != nil {
		t.Fatalf("stat %s: %v", f, err)
	}
	return e
}
