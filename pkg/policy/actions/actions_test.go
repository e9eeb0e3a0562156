package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"mercator-hq/callisto/internal/mocks"
	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/inventory"
	"mercator-hq/callisto/pkg/quality"
	"mercator-hq/callisto/pkg/sds"
)

var modTime = time.Date(2024, 2, 12, 6, 0, 0, 0, time.UTC)

// noRemoveFs refuses to remove files.
type noRemoveFs struct {
	afero.Fs
}

func (noRemoveFs) Remove(name string) error {
	return errors.New("operation not permitted")
}

func build(t *testing.T, name string, options map[string]any) Action {
	t.Helper()
	spec, ok := Default().Lookup(name)
	if !ok {
		t.Fatalf("action %q not registered", name)
	}
	action, err := spec.New(options)
	if err != nil {
		t.Fatalf("%s: New() error = %v", name, err)
	}
	return action
}

func subject(t *testing.T, b *mocks.Backends, f sds.File) Subject {
	t.Helper()
	return Subject{File: f, Entry: b.Entry(t, f), Env: b.Env()}
}

// applyTwice applies the action twice; both must succeed.
func applyTwice(t *testing.T, a Action, s Subject) {
	t.Helper()
	for i := 0; i < 2; i++ {
		if err := a.Apply(context.Background(), s); err != nil {
			t.Fatalf("Apply() #%d error = %v", i+1, err)
		}
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	tests := []struct {
		name  string
		class Class
	}{
		{"pruneRule", Mutating},
		{"ingestionS3Rule", External},
		{"ingestionObjectStoreRule", External},
		{"ingestionIrodsRule", External},
		{"purgeRule", Destructive},
		{"quarantineRawFileRule", Destructive},
		{"quarantinePrunedFileRule", Destructive},
		{"deleteArchiveRule", Destructive},
		{"removeFromDeletionDatabaseRule", External},
	}
	for _, tt := range tests {
		spec, ok := r.Lookup(tt.name)
		if !ok {
			t.Errorf("%s not registered", tt.name)
			continue
		}
		if spec.Class != tt.class {
			t.Errorf("%s class = %v, want %v", tt.name, spec.Class, tt.class)
		}
	}
	if err := r.Register(Spec{Name: "pruneRule", New: newPurge}); err == nil {
		t.Error("duplicate registration accepted")
	}
}

func TestFactoryOptions(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		options map[string]any
		wantErr bool
	}{
		{"prune defaults", "pruneRule", nil, false},
		{"prune weak types", "pruneRule", map[string]any{"repack": "true", "repackRecordSize": "512"}, false},
		{"prune repack without size", "pruneRule", map[string]any{"repack": true}, true},
		{"prune bad type", "pruneRule", map[string]any{"repackRecordSize": map[string]any{"size": 1}}, true},
		{"federated without root", "federatedIngestionRule", map[string]any{}, true},
		{"replication without root", "replicationRule", map[string]any{}, true},
		{"quarantine without path", "quarantineRawFileRule", map[string]any{"dry_run": true}, true},
		{"quarantine", "quarantinePrunedFileRule", map[string]any{"quarantine_path": "/q", "exitOnFailure": true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, _ := Default().Lookup(tt.action)
			_, err := spec.New(tt.options)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	opts, err := ParseCommonOptions(map[string]any{"exitOnFailure": "true", "other": 1})
	if err != nil || !opts.ExitOnFailure {
		t.Errorf("ParseCommonOptions() = %+v, %v", opts, err)
	}
}

func TestPrune(t *testing.T) {
	b := mocks.NewBackends()
	prev := b.AddFile(t, "NL.HGN.02.BHZ.D.2024.040", "a", modTime)
	f := b.AddFile(t, "NL.HGN.02.BHZ.D.2024.041", "b", modTime)

	action := build(t, "pruneRule", map[string]any{"cut_boundaries": true, "removeOverlap": true})
	applyTwice(t, action, subject(t, b, f))

	pruned := f.WithQuality(quality.Pruned)
	data, err := afero.ReadFile(b.Fs, b.Archive.Path(pruned))
	if err != nil {
		t.Fatalf("pruned file missing: %v", err)
	}
	if string(data) != "ab" {
		t.Errorf("pruned content = %q, want %q", data, "ab")
	}

	reqs := b.Repacker.Requests()
	if len(reqs) != 1 {
		t.Fatalf("Repack called %d times, want 1", len(reqs))
	}
	want := backend.RepackRequest{
		Inputs:        []string{b.Archive.Path(prev), b.Archive.Path(f)},
		Start:         "2024,041,00,00,00.000000",
		End:           "2024,041,23,59,59.999999",
		CutBoundaries: true,
		RemoveOverlap: true,
		Quality:       quality.Pruned,
	}
	if diff := cmp.Diff(want, reqs[0]); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestPrune_FailureLeavesNoFile(t *testing.T) {
	b := mocks.NewBackends()
	f := b.AddFile(t, "NL.HGN.02.BHZ.D.2024.041", "b", modTime)
	b.Repacker.Err = errors.New("dataselect crashed")

	err := build(t, "pruneRule", nil).Apply(context.Background(), subject(t, b, f))
	if err == nil {
		t.Fatal("Apply() succeeded")
	}
	if ok, _ := b.Archive.Exists(f.WithQuality(quality.Pruned)); ok {
		t.Error("pruned file created after failure")
	}
}

func TestIngest(t *testing.T) {
	b := mocks.NewBackends()
	f := b.AddFile(t, "NL.HGN.02.BHZ.Q.2024.041", "data", modTime)
	s := subject(t, b, f)

	applyTwice(t, build(t, "ingestionS3Rule", nil), s)
	if got := b.ObjectStore.Calls("Put"); got != 1 {
		t.Errorf("Put called %d times, want 1", got)
	}

	applyTwice(t, build(t, "federatedIngestionRule", map[string]any{"remoteRoot": "/federated/zone"}), s)
	want := []string{"2024/NL/HGN/BHZ.Q/NL.HGN.02.BHZ.Q.2024.041", "federated/zone/2024/NL/HGN/BHZ.Q/NL.HGN.02.BHZ.Q.2024.041"}
	if diff := cmp.Diff(want, b.ObjectStore.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	applyTwice(t, build(t, "deleteArchiveRule", nil), s)
	if diff := cmp.Diff(want[1:], b.ObjectStore.Keys()); diff != "" {
		t.Errorf("keys after delete mismatch (-want +got):\n%s", diff)
	}
}

func TestIngestResource(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		wantKey string
	}{
		{"default resource", nil, "compResc/2024/NL/HGN/BHZ.Q/NL.HGN.02.BHZ.Q.2024.041"},
		{"named resource", map[string]any{"rescName": "/tapeResc/", "purgeCache": true}, "tapeResc/2024/NL/HGN/BHZ.Q/NL.HGN.02.BHZ.Q.2024.041"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mocks.NewBackends()
			f := b.AddFile(t, "NL.HGN.02.BHZ.Q.2024.041", "data", modTime)

			applyTwice(t, build(t, "ingestionIrodsRule", tt.options), subject(t, b, f))
			if diff := cmp.Diff([]string{tt.wantKey}, b.ObjectStore.Keys()); diff != "" {
				t.Errorf("keys mismatch (-want +got):\n%s", diff)
			}
			if got := b.ObjectStore.Calls("Put"); got != 1 {
				t.Errorf("Put called %d times, want 1", got)
			}
		})
	}

	spec, _ := Default().Lookup("ingestionIrodsRule")
	if _, err := spec.New(map[string]any{"purgeCache": "sometimes"}); err == nil {
		t.Error("expected an invalid purgeCache to be rejected")
	}
}

func TestIngest_BackendError(t *testing.T) {
	b := mocks.NewBackends()
	f := b.AddFile(t, "NL.HGN.02.BHZ.Q.2024.041", "data", modTime)
	b.ObjectStore.Err = errors.New("credentials expired")

	if err := build(t, "ingestionS3Rule", nil).Apply(context.Background(), subject(t, b, f)); err == nil {
		t.Error("Apply() succeeded with failing object store")
	}
}

func TestIdentityAndMetadata(t *testing.T) {
	b := mocks.NewBackends()
	f := b.AddFile(t, "NL.HGN.02.BHZ.Q.2024.041", "data", modTime)
	s := subject(t, b, f)
	ctx := context.Background()

	if err := build(t, "dcMetadataRule", nil).Apply(ctx, s); !errors.Is(err, ErrNoPID) {
		t.Errorf("dcMetadataRule without pid error = %v, want ErrNoPID", err)
	}

	applyTwice(t, build(t, "pidRule", nil), s)
	if got := b.PIDs.Calls("Assign"); got != 2 {
		t.Errorf("Assign called %d times", got)
	}

	applyTwice(t, build(t, "waveformMetadataRule", nil), s)
	if got := b.Catalog.Calls("Put"); got != 1 {
		t.Errorf("waveform Put called %d times, want 1", got)
	}
	applyTwice(t, build(t, "addPidToWFCatalogRule", nil), s)
	applyTwice(t, build(t, "dcMetadataRule", nil), s)
	applyTwice(t, build(t, "ppsdMetadataRule", nil), s)

	wf, _ := b.Catalog.Get(ctx, backend.KindWaveform, f.Filename())
	if len(wf) != 1 || wf[0].PID == "" {
		t.Fatalf("waveform documents = %+v", wf)
	}
	dc, _ := b.Catalog.Get(ctx, backend.KindDublinCore, f.Filename())
	if len(dc) != 1 || dc[0].PID != wf[0].PID {
		t.Errorf("dublin core documents = %+v", dc)
	}
	ppsd, _ := b.Catalog.Get(ctx, backend.KindPPSD, f.Filename())
	if len(ppsd) != 2 {
		t.Errorf("ppsd documents = %d, want 2", len(ppsd))
	}

	for _, name := range []string{"deleteWaveformMetadataRule", "deleteDCMetadataRule", "deletePPSDMetadataRule"} {
		applyTwice(t, build(t, name, nil), s)
	}
	for _, kind := range []backend.Kind{backend.KindWaveform, backend.KindDublinCore, backend.KindPPSD} {
		if ok, _ := b.Catalog.Exists(ctx, kind, f.Filename(), ""); ok {
			t.Errorf("%s document left after delete", kind)
		}
	}

	applyTwice(t, build(t, "replicationRule", map[string]any{"replicationRoot": "/eudat"}), s)
	if got := b.Replicator.Calls("Replicate"); got != 1 {
		t.Errorf("Replicate called %d times, want 1", got)
	}
}

func TestPurgeAndDeletions(t *testing.T) {
	b := mocks.NewBackends()
	f := b.AddFile(t, "NL.HGN.02.BHZ.D.2024.041", "data", modTime)
	s := subject(t, b, f)
	ctx := context.Background()

	if err := b.Ledger.ScheduleDeletion(ctx, f.Filename(), modTime); err != nil {
		t.Fatal(err)
	}
	applyTwice(t, build(t, "removeFromDeletionDatabaseRule", nil), s)
	if in, _ := b.Ledger.InDeletion(ctx, f.Filename()); in {
		t.Error("file still in deletion ledger")
	}

	applyTwice(t, build(t, "purgeRule", nil), s)
	if ok, _ := b.Archive.Exists(f); ok {
		t.Error("file not purged")
	}
}

func TestQuarantineRaw(t *testing.T) {
	b := mocks.NewBackends()
	f := b.AddFile(t, "NL.HGN.02.BHZ.D.2024.041", "data", modTime)
	s := subject(t, b, f)

	applyTwice(t, build(t, "quarantineRawFileRule", map[string]any{"quarantine_path": "/data/quarantine", "dry_run": true}), s)
	if ok, _ := b.Archive.Exists(f); !ok {
		t.Fatal("dry run moved the file")
	}

	applyTwice(t, build(t, "quarantineRawFileRule", map[string]any{"quarantine_path": "/data/quarantine"}), s)
	if ok, _ := b.Archive.Exists(f); ok {
		t.Error("file still in archive")
	}
	if _, err := b.Fs.Stat(f.Path("/data/quarantine")); err != nil {
		t.Errorf("file not in quarantine: %v", err)
	}
}

func TestQuarantinePruned(t *testing.T) {
	b := mocks.NewBackends()
	daily := b.AddFile(t, "NL.HGN.02.BHZ.D.2024.041", "raw", modTime)
	pruned := b.AddFile(t, "NL.HGN.02.BHZ.Q.2024.041", "pruned", modTime)

	action := build(t, "quarantinePrunedFileRule", map[string]any{"quarantine_path": "/data/quarantine"})
	applyTwice(t, action, subject(t, b, pruned))

	for _, f := range []sds.File{daily, pruned} {
		if ok, _ := b.Archive.Exists(f); ok {
			t.Errorf("%s still in archive", f)
		}
	}
	if _, err := b.Fs.Stat(daily.Path("/data/quarantine")); err != nil {
		t.Errorf("daily file not quarantined: %v", err)
	}
}

func TestQuarantinePruned_RestoresOnFailure(t *testing.T) {
	b := mocks.NewBackends()
	daily := b.AddFile(t, "NL.HGN.02.BHZ.D.2024.041", "raw", modTime)
	pruned := b.AddFile(t, "NL.HGN.02.BHZ.Q.2024.041", "pruned", modTime)
	s := subject(t, b, pruned)

	env := *b.Env()
	env.Archive = inventory.NewArchive(noRemoveFs{b.Fs}, mocks.ArchiveRoot)
	s.Env = &env

	action := build(t, "quarantinePrunedFileRule", map[string]any{"quarantine_path": "/data/quarantine"})
	if err := action.Apply(context.Background(), s); err == nil {
		t.Fatal("Apply() succeeded")
	}
	if ok, _ := b.Archive.Exists(daily); !ok {
		t.Error("daily file not restored")
	}
	if ok, _ := b.Archive.Exists(pruned); !ok {
		t.Error("pruned file removed")
	}
}

func TestDefault_ProducedQualities(t *testing.T) {
	r := Default()
	tests := []struct {
		name string
		want quality.Quality
	}{
		{"pruneRule", quality.Pruned},
		{"purgeRule", quality.Purged},
		{"quarantineRawFileRule", quality.Quarantined},
		{"quarantinePrunedFileRule", quality.Quarantined},
		{"deleteArchiveRule", ""},
		{"ingestionS3Rule", ""},
		{"waveformMetadataRule", ""},
	}
	for _, tt := range tests {
		spec, ok := r.Lookup(tt.name)
		if !ok {
			t.Errorf("%s not registered", tt.name)
			continue
		}
		if spec.Produces != tt.want {
			t.Errorf("%s produces %q, want %q", tt.name, spec.Produces, tt.want)
		}
	}
}

func TestIsPreview(t *testing.T) {
	path := map[string]any{"quarantine_path": "/data/quarantine"}
	dryRun := map[string]any{"quarantine_path": "/data/quarantine", "dry_run": true}

	tests := []struct {
		name    string
		action  string
		options map[string]any
		want    bool
	}{
		{"raw quarantine", "quarantineRawFileRule", path, false},
		{"raw quarantine dry run", "quarantineRawFileRule", dryRun, true},
		{"pruned quarantine", "quarantinePrunedFileRule", path, false},
		{"pruned quarantine dry run", "quarantinePrunedFileRule", dryRun, true},
		{"purge", "purgeRule", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPreview(build(t, tt.action, tt.options)); got != tt.want {
				t.Errorf("IsPreview() = %v, want %v", got, tt.want)
			}
		})
	}
}
