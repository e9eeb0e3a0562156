package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/inventory"
	"mercator-hq/callisto/pkg/sds"
)

func entry() inventory.Entry {
	return inventory.Entry{
		File:    sds.MustParse("NL.HGN.02.BHZ.D.2024.041"),
		Path:    "/archive/2024/NL/HGN/BHZ.D/NL.HGN.02.BHZ.D.2024.041",
		ModTime: time.Date(2024, 2, 11, 3, 0, 0, 0, time.UTC),
		Size:    4096,
	}
}

func TestWaveform(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	e := New(Config{Clock: clockwork.NewFakeClockAt(now)})

	doc, err := e.Waveform(context.Background(), entry(), "sha2:abc")
	if err != nil {
		t.Fatalf("Waveform() error = %v", err)
	}
	if doc.Kind != backend.KindWaveform || doc.FileID != "NL.HGN.02.BHZ.D.2024.041" {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Checksum != "sha2:abc" || !doc.Updated.Equal(now) {
		t.Errorf("checksum/updated = %q, %v", doc.Checksum, doc.Updated)
	}
	if got := doc.Body["start_time"]; got != "2024-02-10T00:00:00Z" {
		t.Errorf("start_time = %v", got)
	}
	if got := doc.Body["qlt"]; got != "D" {
		t.Errorf("qlt = %v", got)
	}
}

func TestDublinCore(t *testing.T) {
	e := New(Config{Publisher: "Test DC"})
	ctx := context.Background()

	if _, err := e.DublinCore(ctx, entry(), "sha2:abc", ""); !errors.Is(err, ErrNoPID) {
		t.Errorf("DublinCore() without pid error = %v, want ErrNoPID", err)
	}

	doc, err := e.DublinCore(ctx, entry(), "sha2:abc", "21.T11/XYZ")
	if err != nil {
		t.Fatalf("DublinCore() error = %v", err)
	}
	if doc.PID != "21.T11/XYZ" || doc.Body["dc_identifier"] != "21.T11/XYZ" {
		t.Errorf("pid not written: %+v", doc)
	}
	if doc.Body["dc_publisher"] != "Test DC" {
		t.Errorf("dc_publisher = %v", doc.Body["dc_publisher"])
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Config{}).Waveform(ctx, entry(), ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Waveform() error = %v, want context.Canceled", err)
	}
}
