package repack

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/quality"
)

type call struct {
	Name string
	Args []string
}

// fakeRunner records calls. dataselect emits "records", msrepack upper
// cases its input.
type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	fail  string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	r.mu.Lock()
	r.calls = append(r.calls, call{Name: name, Args: args})
	r.mu.Unlock()

	if name == r.fail {
		return &CommandError{Name: name, Args: args, Stderr: "bad record", Cause: errors.New("exit status 1")}
	}
	switch name {
	case "dataselect":
		_, err := io.WriteString(stdout, "records")
		return err
	case "msrepack":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		_, err = stdout.Write(bytes.ToUpper(data))
		return err
	}
	return nil
}

func request() backend.RepackRequest {
	return backend.RepackRequest{
		Inputs:        []string{"/a/prev", "/a/file", "/a/next"},
		Start:         "2024,041,00,00,00.000000",
		End:           "2024,041,23,59,59.999999",
		CutBoundaries: true,
		RemoveOverlap: true,
		Quality:       quality.Pruned,
	}
}

func TestDataselectArgs(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*backend.RepackRequest)
		want   []string
	}{
		{
			name: "all options",
			want: []string{"-Ps", "-Q", "Q", "-ts", "2024,041,00,00,00.000000", "-te", "2024,041,23,59,59.999999", "-o", "-", "/a/prev", "/a/file", "/a/next"},
		},
		{
			name: "no cut and no overlap removal",
			modify: func(r *backend.RepackRequest) {
				r.CutBoundaries = false
				r.RemoveOverlap = false
			},
			want: []string{"-Q", "Q", "-o", "-", "/a/prev", "/a/file", "/a/next"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request()
			if tt.modify != nil {
				tt.modify(&req)
			}
			if diff := cmp.Diff(tt.want, DataselectArgs(req)); diff != "" {
				t.Errorf("DataselectArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRepack(t *testing.T) {
	t.Run("dataselect only", func(t *testing.T) {
		runner := &fakeRunner{}
		var out bytes.Buffer
		if err := New(Config{Runner: runner}).Repack(context.Background(), request(), &out); err != nil {
			t.Fatalf("Repack() error = %v", err)
		}
		if out.String() != "records" {
			t.Errorf("output = %q", out.String())
		}
		if len(runner.calls) != 1 || runner.calls[0].Name != "dataselect" {
			t.Errorf("calls = %v", runner.calls)
		}
	})

	t.Run("piped into msrepack", func(t *testing.T) {
		runner := &fakeRunner{}
		req := request()
		req.Repack = true
		req.RecordLength = 512

		var out bytes.Buffer
		if err := New(Config{Runner: runner}).Repack(context.Background(), req, &out); err != nil {
			t.Fatalf("Repack() error = %v", err)
		}
		if out.String() != "RECORDS" {
			t.Errorf("output = %q", out.String())
		}
		if len(runner.calls) != 2 {
			t.Fatalf("calls = %v", runner.calls)
		}
		for _, c := range runner.calls {
			if c.Name == "msrepack" {
				if diff := cmp.Diff([]string{"-R", "512", "-o", "-", "-"}, c.Args); diff != "" {
					t.Errorf("msrepack args mismatch (-want +got):\n%s", diff)
				}
			}
		}
	})

	t.Run("command failure", func(t *testing.T) {
		runner := &fakeRunner{fail: "dataselect"}
		req := request()
		req.Repack = true
		req.RecordLength = 4096

		err := New(Config{Runner: runner}).Repack(context.Background(), req, io.Discard)
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) || cmdErr.Name != "dataselect" {
			t.Fatalf("Repack() error = %v, want dataselect CommandError", err)
		}
		if !strings.Contains(err.Error(), "bad record") {
			t.Errorf("error %q does not include stderr", err)
		}
	})

	t.Run("invalid requests", func(t *testing.T) {
		r := New(Config{Runner: &fakeRunner{}})
		if err := r.Repack(context.Background(), backend.RepackRequest{}, io.Discard); err == nil {
			t.Error("expected error for missing inputs")
		}
		req := request()
		req.Repack = true
		if err := r.Repack(context.Background(), req, io.Discard); err == nil {
			t.Error("expected error for missing record length")
		}
	})
}
