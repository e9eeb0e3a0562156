package sds

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/quality"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    File
		wantErr bool
	}{
		{
			name:  "daily file",
			input: "NL.HGN.02.BHZ.D.2024.042",
			want:  File{Network: "NL", Station: "HGN", Location: "02", Channel: "BHZ", Quality: quality.Daily, Year: 2024, Day: 42},
		},
		{
			name:  "empty location",
			input: "NL.HGN..BHZ.Q.2024.001",
			want:  File{Network: "NL", Station: "HGN", Channel: "BHZ", Quality: quality.Pruned, Year: 2024, Day: 1},
		},
		{
			name:  "with directory",
			input: "/data/2024/NL/HGN/BHZ.D/NL.HGN.02.BHZ.D.2024.366",
			want:  File{Network: "NL", Station: "HGN", Location: "02", Channel: "BHZ", Quality: quality.Daily, Year: 2024, Day: 366},
		},
		{name: "too few fields", input: "NL.HGN.02.BHZ.D.2024", wantErr: true},
		{name: "unknown quality", input: "NL.HGN.02.BHZ.X.2024.001", wantErr: true},
		{name: "removed state is not a tag", input: "NL.HGN.02.BHZ.purged.2024.001", wantErr: true},
		{name: "day zero", input: "NL.HGN.02.BHZ.D.2024.000", wantErr: true},
		{name: "day 366 in common year", input: "NL.HGN.02.BHZ.D.2023.366", wantErr: true},
		{name: "short year", input: "NL.HGN.02.BHZ.D.24.001", wantErr: true},
		{name: "missing station", input: "NL...BHZ.D.2024.001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("Parse(%q) error = %v, want *ParseError", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	for _, name := range []string{"NL.HGN.02.BHZ.D.2024.042", "NL.HGN..BHZ.Q.1970.001"} {
		if got := MustParse(name).Filename(); got != name {
			t.Errorf("Filename() = %q, want %q", got, name)
		}
	}
}

func TestNeighbours(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		previous string
		next     string
	}{
		{"mid year", "NL.HGN.02.BHZ.D.2024.042", "NL.HGN.02.BHZ.D.2024.041", "NL.HGN.02.BHZ.D.2024.043"},
		{"year start", "NL.HGN.02.BHZ.D.1970.001", "NL.HGN.02.BHZ.D.1969.365", "NL.HGN.02.BHZ.D.1970.002"},
		{"leap year end", "NL.HGN.02.BHZ.Q.2024.366", "NL.HGN.02.BHZ.Q.2024.365", "NL.HGN.02.BHZ.Q.2025.001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := MustParse(tt.file)
			if got := f.Previous().Filename(); got != tt.previous {
				t.Errorf("Previous() = %q, want %q", got, tt.previous)
			}
			if got := f.Next().Filename(); got != tt.next {
				t.Errorf("Next() = %q, want %q", got, tt.next)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	f := MustParse("NL.HGN.02.BHZ.D.2024.042")

	wantStart := time.Date(2024, time.February, 11, 0, 0, 0, 0, time.UTC)
	if !f.Start().Equal(wantStart) {
		t.Errorf("Start() = %v, want %v", f.Start(), wantStart)
	}
	if f.End().Sub(f.Start()) != Day {
		t.Errorf("window length = %v, want %v", f.End().Sub(f.Start()), Day)
	}
	if got := f.SampleStart(); got != "2024,042,00,00,00.000000" {
		t.Errorf("SampleStart() = %q", got)
	}
	if got := f.SampleEnd(); got != "2024,042,23,59,59.999999" {
		t.Errorf("SampleEnd() = %q", got)
	}
}

func TestLayout(t *testing.T) {
	f := MustParse("NL.HGN.02.BHZ.D.2024.042")

	if got := f.Directory(); got != "2024/NL/HGN/BHZ.D" {
		t.Errorf("Directory() = %q", got)
	}
	if got := f.ObjectKey(); got != "2024/NL/HGN/BHZ.D/NL.HGN.02.BHZ.D.2024.042" {
		t.Errorf("ObjectKey() = %q", got)
	}
	want := filepath.Join("/archive", "2024", "NL", "HGN", "BHZ.D", "NL.HGN.02.BHZ.D.2024.042")
	if got := f.Path("/archive"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	q := f.WithQuality(quality.Pruned)
	if q.Directory() != "2024/NL/HGN/BHZ.Q" {
		t.Errorf("sibling Directory() = %q", q.Directory())
	}
	if q.WindowKey() != f.WindowKey() {
		t.Errorf("siblings have different window keys: %q vs %q", q.WindowKey(), f.WindowKey())
	}
	if f.StreamID() != "NL.HGN.02.BHZ" {
		t.Errorf("StreamID() = %q", f.StreamID())
	}
}

func TestLess(t *testing.T) {
	a := MustParse("NL.HGN.02.BHZ.D.2023.365")
	b := MustParse("NL.HGN.02.BHZ.D.2024.001")
	c := MustParse("NL.HGN.02.BHZ.Q.2024.001")
	d := MustParse("NL.WIT.02.BHZ.D.2020.001")

	if !Less(a, b) || Less(b, a) {
		t.Error("expected year ordering")
	}
	if !Less(b, c) {
		t.Error("expected quality ordering within a day")
	}
	if !Less(c, d) {
		t.Error("expected stream ordering before time")
	}
}
