package backend

import (
	"context"
	"io"
	"time"

	"mercator-hq/callisto/pkg/inventory"
	"mercator-hq/callisto/pkg/ledger"
	"mercator-hq/callisto/pkg/quality"
)

// Kind names a metadata catalog collection.
type Kind string

const (
	// KindWaveform is the waveform catalog (WFCatalog) collection.
	KindWaveform Kind = "waveform"

	// KindDublinCore is the Dublin Core collection.
	KindDublinCore Kind = "dublincore"

	// KindPPSD is the statistical summary (PPSD) collection. A file may
	// have several segments.
	KindPPSD Kind = "ppsd"
)

// Document is one metadata catalog document.
type Document struct {
	// Kind is the collection the document belongs to.
	Kind Kind `json:"kind"`

	// FileID is the SDS file name the document describes.
	FileID string `json:"file_id"`

	// Segment numbers documents of the same file. It is 0 for single
	// document kinds.
	Segment int `json:"segment"`

	// Checksum is the checksum of the file at the time of writing.
	Checksum string `json:"checksum"`

	// PID is the persistent identifier, if one was assigned.
	PID string `json:"pid,omitempty"`

	// Body is the document content.
	Body map[string]any `json:"body"`

	// Updated is when the document was written.
	Updated time.Time `json:"updated"`
}

// ObjectStore is the long term object storage.
type ObjectStore interface {
	// Exists reports whether key is stored. A non-empty checksum
	// additionally requires the stored checksum to match.
	Exists(ctx context.Context, key, checksum string) (bool, error)

	// Put uploads r under key and records checksum with the object.
	Put(ctx context.Context, key string, r io.Reader, checksum string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Catalog is the metadata catalog.
type Catalog interface {
	// Exists reports whether a document of kind exists for fileID. A
	// non-empty checksum additionally requires the document checksum to
	// match.
	Exists(ctx context.Context, kind Kind, fileID, checksum string) (bool, error)

	// Put replaces every document of the documents' kind and file.
	Put(ctx context.Context, docs ...Document) error

	// Get returns the documents of kind for fileID, ordered by segment.
	Get(ctx context.Context, kind Kind, fileID string) ([]Document, error)

	// Delete removes every document of kind for fileID.
	Delete(ctx context.Context, kind Kind, fileID string) error

	// SetPID writes pid into the documents of kind for fileID.
	SetPID(ctx context.Context, kind Kind, fileID, pid string) error
}

// PIDRegistry assigns persistent identifiers.
type PIDRegistry interface {
	// Lookup returns the PID registered for key.
	Lookup(ctx context.Context, key string) (pid string, found bool, err error)

	// Assign registers a PID for key. If one exists it is returned.
	Assign(ctx context.Context, key, checksum string) (pid string, err error)
}

// Replicator copies objects to federated replication roots.
type Replicator interface {
	// ReplicaExists reports whether key is replicated under root. A
	// non-empty checksum additionally requires the replica to match.
	ReplicaExists(ctx context.Context, key, root, checksum string) (bool, error)

	// Replicate copies key to root.
	Replicate(ctx context.Context, key, root string) error
}

// RepackRequest describes one repack of a daily file.
type RepackRequest struct {
	// Inputs are the files read, the target and its neighbours.
	Inputs []string

	// Start and End bound the output in miniSEED tool notation.
	Start, End string

	// CutBoundaries trims records to the day window.
	CutBoundaries bool

	// Repack re-blocks the output into records of RecordLength bytes.
	Repack       bool
	RecordLength int

	// RemoveOverlap prunes overlapping samples.
	RemoveOverlap bool

	// Quality is the quality written into the output records.
	Quality quality.Quality
}

// Repacker produces a pruned file from raw inputs.
type Repacker interface {
	// Repack writes the repacked data to w.
	Repack(ctx context.Context, req RepackRequest, w io.Writer) error
}

// MetadataExtractor builds catalog documents for archive files.
type MetadataExtractor interface {
	// Waveform builds the waveform catalog document.
	Waveform(ctx context.Context, entry inventory.Entry, checksum string) (Document, error)

	// DublinCore builds the Dublin Core document.
	DublinCore(ctx context.Context, entry inventory.Entry, checksum, pid string) (Document, error)
}

// PSDComputer computes statistical summary segments for a file.
type PSDComputer interface {
	Compute(ctx context.Context, entry inventory.Entry, checksum string) ([]Document, error)
}

// Capability names a backend an operation depends on.
type Capability string

const (
	CapArchive     Capability = "archive"
	CapObjectStore Capability = "object_store"
	CapCatalog     Capability = "catalog"
	CapPID         Capability = "pid"
	CapReplication Capability = "replication"
	CapRepack      Capability = "repack"
	CapMetadata    Capability = "metadata"
	CapPSD         Capability = "psd"
	CapDeletions   Capability = "deletions"
)

// Env bundles the backends available to predicates and actions. Nil
// fields are backends that are not configured.
type Env struct {
	Archive     *inventory.Archive
	ObjectStore ObjectStore
	Catalog     Catalog
	PIDs        PIDRegistry
	Replicator  Replicator
	Repacker    Repacker
	Extractor   MetadataExtractor
	PSD         PSDComputer
	Deletions   ledger.DeletionStore
}

// Has reports whether the backend for c is configured.
func (e *Env) Has(c Capability) bool {
	if e == nil {
		return false
	}
	switch c {
	case CapArchive:
		return e.Archive != nil
	case CapObjectStore:
		return e.ObjectStore != nil
	case CapCatalog:
		return e.Catalog != nil
	case CapPID:
		return e.PIDs != nil
	case CapReplication:
		return e.Replicator != nil
	case CapRepack:
		return e.Repacker != nil
	case CapMetadata:
		return e.Extractor != nil
	case CapPSD:
		return e.PSD != nil
	case CapDeletions:
		return e.Deletions != nil
	default:
		return false
	}
}

// Missing returns the capabilities of reqs that are not configured.
func (e *Env) Missing(reqs ...Capability) []Capability {
	var missing []Capability
	for _, c := range reqs {
		if !e.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}
