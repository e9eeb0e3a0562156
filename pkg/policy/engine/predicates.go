package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/quality"
)

const day = 24 * time.Hour

// Predicate is one condition variant. Evaluate never reads the wall clock:
// time thresholds are relative to pass.Start.
type Predicate interface {
	Evaluate(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error)

// Evaluate calls f.
func (f PredicateFunc) Evaluate(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error) {
	return f(ctx, snap, pass)
}

// PredicateSpec describes a registered predicate.
type PredicateSpec struct {
	// Name is the functionName used in rule tables.
	Name string

	// Requires lists the backends the predicate queries.
	Requires []backend.Capability

	// New builds the predicate from its options. Unknown options are an
	// error.
	New func(options map[string]any) (Predicate, error)
}

// PredicateRegistry maps predicate names to specs.
type PredicateRegistry struct {
	specs map[string]PredicateSpec
}

// NewPredicateRegistry returns an empty registry.
func NewPredicateRegistry() *PredicateRegistry {
	return &PredicateRegistry{specs: make(map[string]PredicateSpec)}
}

// Register adds spec, replacing any predicate of the same name.
func (r *PredicateRegistry) Register(spec PredicateSpec) {
	r.specs[spec.Name] = spec
}

// Lookup returns the spec called name.
func (r *PredicateRegistry) Lookup(name string) (PredicateSpec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns the registered names, sorted.
func (r *PredicateRegistry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultPredicates returns the built-in predicate vocabulary.
func DefaultPredicates() *PredicateRegistry {
	r := NewPredicateRegistry()
	r.Register(PredicateSpec{Name: "assertQualityPolicy", New: newQualityPredicate})
	r.Register(PredicateSpec{Name: "assertModificationTimePolicy", New: newAgePredicate((*Snapshot).ModTime)})
	r.Register(PredicateSpec{Name: "assertDataTimePolicy", New: newAgePredicate((*Snapshot).DataStart)})
	objectStore := PredicateSpec{Name: "assertObjectStoreExistsPolicy", Requires: []backend.Capability{backend.CapObjectStore}, New: newObjectStorePredicate}
	r.Register(objectStore)
	objectStore.Name = "assertS3ExistsPolicy"
	r.Register(objectStore)
	r.Register(PredicateSpec{Name: "assertWFCatalogExistsPolicy", Requires: []backend.Capability{backend.CapCatalog}, New: newCatalogPredicate(backend.KindWaveform, true)})
	r.Register(PredicateSpec{Name: "assertDCMetadataExistsPolicy", Requires: []backend.Capability{backend.CapCatalog}, New: newCatalogPredicate(backend.KindDublinCore, true)})
	r.Register(PredicateSpec{Name: "assertPPSDMetadataExistsPolicy", Requires: []backend.Capability{backend.CapCatalog}, New: newCatalogPredicate(backend.KindPPSD, false)})
	r.Register(PredicateSpec{Name: "assertPIDPolicy", Requires: []backend.Capability{backend.CapPID}, New: newPIDPredicate})
	r.Register(PredicateSpec{Name: "assertReplicationPolicy", Requires: []backend.Capability{backend.CapReplication}, New: newReplicationPredicate})
	r.Register(PredicateSpec{Name: "assertPrunedFileExistsPolicy", New: newPrunedPredicate})
	r.Register(PredicateSpec{Name: "assertDeletionPolicy", Requires: []backend.Capability{backend.CapDeletions}, New: newDeletionPredicate})
	return r
}

// decodeOptions decodes predicate options strictly: every key must be a
// field of out.
func decodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

type qualityOptions struct {
	Qualities []string `mapstructure:"qualities"`
}

func newQualityPredicate(options map[string]any) (Predicate, error) {
	var opts qualityOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if len(opts.Qualities) == 0 {
		return nil, errors.New("qualities must not be empty")
	}
	set := make(qualitySet, len(opts.Qualities))
	for _, tag := range opts.Qualities {
		q, err := quality.Parse(tag)
		if err != nil {
			return nil, err
		}
		set[q] = true
	}
	return set, nil
}

// qualitySet holds when the snapshot quality is in the set.
type qualitySet map[quality.Quality]bool

func (s qualitySet) Evaluate(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error) {
	return s[snap.Quality()], nil
}

type ageOptions struct {
	NewerThan *float64 `mapstructure:"newerThan"`
	OlderThan *float64 `mapstructure:"olderThan"`
}

// newAgePredicate compares the age of a snapshot timestamp at pass start
// against thresholds in days. Negative thresholds lie in the future.
func newAgePredicate(timestamp func(*Snapshot) time.Time) func(map[string]any) (Predicate, error) {
	return func(options map[string]any) (Predicate, error) {
		var opts ageOptions
		if err := decodeOptions(options, &opts); err != nil {
			return nil, err
		}
		if opts.NewerThan == nil && opts.OlderThan == nil {
			return nil, errors.New("newerThan or olderThan is required")
		}
		for _, n := range []*float64{opts.NewerThan, opts.OlderThan} {
			if n != nil && (math.IsNaN(*n) || math.IsInf(*n, 0)) {
				return nil, fmt.Errorf("invalid day threshold %v", *n)
			}
		}

		// Ages are compared in float seconds: a threshold in days does not
		// always fit a time.Duration.
		return PredicateFunc(func(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error) {
			age := pass.Start.Sub(timestamp(snap)).Seconds()
			if opts.NewerThan != nil && !(age < daySeconds(*opts.NewerThan)) {
				return false, nil
			}
			if opts.OlderThan != nil && !(age > daySeconds(*opts.OlderThan)) {
				return false, nil
			}
			return true, nil
		}), nil
	}
}

func daySeconds(n float64) float64 {
	return n * day.Seconds()
}

type existsOptions struct {
	VerifyChecksum bool `mapstructure:"verifyChecksum"`
}

type objectStoreOptions struct {
	VerifyChecksum bool   `mapstructure:"verifyChecksum"`
	Prefix         string `mapstructure:"prefix"`
}

func newObjectStorePredicate(options map[string]any) (Predicate, error) {
	var opts objectStoreOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return PredicateFunc(func(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error) {
		return snap.ObjectExists(ctx, opts.Prefix, opts.VerifyChecksum)
	}), nil
}

// newCatalogPredicate checks for a catalog document of kind. verifiable
// kinds accept verifyChecksum.
func newCatalogPredicate(kind backend.Kind, verifiable bool) func(map[string]any) (Predicate, error) {
	return func(options map[string]any) (Predicate, error) {
		var opts existsOptions
		if verifiable {
			if err := decodeOptions(options, &opts); err != nil {
				return nil, err
			}
		} else if err := decodeOptions(options, &struct{}{}); err != nil {
			return nil, err
		}
		return PredicateFunc(func(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error) {
			return snap.CatalogExists(ctx, kind, opts.VerifyChecksum)
		}), nil
	}
}

func newPIDPredicate(options map[string]any) (Predicate, error) {
	if err := decodeOptions(options, &struct{}{}); err != nil {
		return nil, err
	}
	return PredicateFunc(func(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error) {
		return snap.PIDAssigned(ctx)
	}), nil
}

type replicationOptions struct {
	ReplicationRoot string `mapstructure:"replicationRoot"`
	VerifyChecksum  bool   `mapstructure:"verifyChecksum"`
}

func newReplicationPredicate(options map[string]any) (Predicate, error) {
	var opts replicationOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.ReplicationRoot == "" {
		return nil, errors.New("replicationRoot is required")
	}
	return PredicateFunc(func(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error) {
		return snap.Replicated(ctx, opts.ReplicationRoot, opts.VerifyChecksum)
	}), nil
}

func newPrunedPredicate(options map[string]any) (Predicate, error) {
	if err := decodeOptions(options, &struct{}{}); err != nil {
		return nil, err
	}
	return PredicateFunc(func(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error) {
		return snap.PrunedExists(ctx)
	}), nil
}

func newDeletionPredicate(options map[string]any) (Predicate, error) {
	if err := decodeOptions(options, &struct{}{}); err != nil {
		return nil, err
	}
	return PredicateFunc(func(ctx context.Context, snap *Snapshot, pass PassContext) (bool, error) {
		return snap.InDeletion(ctx)
	}), nil
}
