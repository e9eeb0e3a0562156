package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"mercator-hq/callisto/pkg/backend"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	return openTestStoreWithClock(t, nil)
}

func openTestStoreWithClock(t *testing.T, clock clockwork.Clock) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"), clock)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutExists(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	const id = "NL.HGN.02.BHZ.Q.2024.041"

	ok, err := s.Exists(ctx, backend.KindWaveform, id, "")
	if err != nil || ok {
		t.Fatalf("Exists() on empty catalog = %v, %v", ok, err)
	}

	doc := backend.Document{
		Kind:     backend.KindWaveform,
		FileID:   id,
		Checksum: "sha2:abc",
		Body:     map[string]any{"fileId": id, "nseg": float64(1)},
		Updated:  time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC),
	}
	if err := s.Put(ctx, doc); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	tests := []struct {
		name     string
		kind     backend.Kind
		checksum string
		want     bool
	}{
		{"present", backend.KindWaveform, "", true},
		{"checksum match", backend.KindWaveform, "sha2:abc", true},
		{"checksum mismatch", backend.KindWaveform, "sha2:zzz", false},
		{"other kind", backend.KindDublinCore, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Exists(ctx, tt.kind, id, tt.checksum)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Exists() = %v, want %v", got, tt.want)
			}
		})
	}

	docs, err := s.Get(ctx, backend.KindWaveform, id)
	if err != nil || len(docs) != 1 {
		t.Fatalf("Get() = %v, %v", docs, err)
	}
	if docs[0].Body["nseg"] != float64(1) || !docs[0].Updated.Equal(doc.Updated) {
		t.Errorf("Get() = %+v", docs[0])
	}
}

func TestStore_PutReplacesSegments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	const id = "NL.HGN.02.BHZ.Q.2024.041"

	var segs []backend.Document
	for i := 0; i < 3; i++ {
		segs = append(segs, backend.Document{Kind: backend.KindPPSD, FileID: id, Segment: i, Checksum: "sha2:a", Body: map[string]any{}})
	}
	if err := s.Put(ctx, segs...); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, backend.Document{Kind: backend.KindPPSD, FileID: id, Checksum: "sha2:b", Body: map[string]any{}}); err != nil {
		t.Fatal(err)
	}

	docs, _ := s.Get(ctx, backend.KindPPSD, id)
	if len(docs) != 1 || docs[0].Checksum != "sha2:b" {
		t.Errorf("Get() after replace = %+v", docs)
	}

	if err := s.Delete(ctx, backend.KindPPSD, id); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, backend.KindPPSD, id, ""); ok {
		t.Error("Exists() after Delete() = true")
	}
}

func TestStore_SetPID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	const id = "NL.HGN.02.BHZ.Q.2024.041"

	err := s.SetPID(ctx, backend.KindWaveform, id, "21.T11/abc")
	if !errors.Is(err, ErrNoDocument) {
		t.Errorf("SetPID() without document error = %v, want ErrNoDocument", err)
	}

	if err := s.Put(ctx, backend.Document{Kind: backend.KindWaveform, FileID: id, Checksum: "sha2:a", Body: map[string]any{}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPID(ctx, backend.KindWaveform, id, "21.T11/abc"); err != nil {
		t.Fatalf("SetPID() error = %v", err)
	}
	docs, _ := s.Get(ctx, backend.KindWaveform, id)
	if docs[0].PID != "21.T11/abc" {
		t.Errorf("PID = %q", docs[0].PID)
	}
}

func TestStore_PutStampsUpdateTime(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)
	s := openTestStoreWithClock(t, clockwork.NewFakeClockAt(now))
	explicit := time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		updated time.Time
		want    time.Time
	}{
		{"unset", time.Time{}, now},
		{"explicit", explicit, explicit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := "NL.HGN.02.BHZ.Q.2024." + tt.name
			doc := backend.Document{Kind: backend.KindWaveform, FileID: id, Checksum: "sha2:a", Body: map[string]any{}, Updated: tt.updated}
			if err := s.Put(ctx, doc); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			docs, err := s.Get(ctx, backend.KindWaveform, id)
			if err != nil || len(docs) != 1 {
				t.Fatalf("Get() = %+v, %v", docs, err)
			}
			if diff := cmp.Diff(tt.want, docs[0].Updated); diff != "" {
				t.Errorf("Updated mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
