package repack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"mercator-hq/callisto/pkg/backend"
)

const (
	// DefaultDataselect is the default dataselect executable.
	DefaultDataselect = "dataselect"

	// DefaultMsrepack is the default msrepack executable.
	DefaultMsrepack = "msrepack"
)

// Config configures a Dataselect repacker.
type Config struct {
	// DataselectPath is the dataselect executable.
	DataselectPath string

	// MsrepackPath is the msrepack executable.
	MsrepackPath string

	// Runner runs the commands. Defaults to ExecRunner.
	Runner Runner
}

// Dataselect implements backend.Repacker with the dataselect and msrepack
// command line tools. dataselect always sorts records; msrepack only runs
// when the request asks for re-blocking.
type Dataselect struct {
	dataselect string
	msrepack   string
	runner     Runner
	logger     *slog.Logger
}

var _ backend.Repacker = (*Dataselect)(nil)

// New creates a Dataselect repacker.
func New(cfg Config) *Dataselect {
	if cfg.DataselectPath == "" {
		cfg.DataselectPath = DefaultDataselect
	}
	if cfg.MsrepackPath == "" {
		cfg.MsrepackPath = DefaultMsrepack
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	return &Dataselect{
		dataselect: cfg.DataselectPath,
		msrepack:   cfg.MsrepackPath,
		runner:     cfg.Runner,
		logger:     slog.Default().With("component", "backend.repack"),
	}
}

// Repack writes the pruned data for req to w.
func (d *Dataselect) Repack(ctx context.Context, req backend.RepackRequest, w io.Writer) error {
	if len(req.Inputs) == 0 {
		return errors.New("repack: no input files")
	}
	if req.Repack && req.RecordLength <= 0 {
		return fmt.Errorf("repack: invalid record length %d", req.RecordLength)
	}

	selectArgs := DataselectArgs(req)
	d.logger.Debug("running dataselect", "inputs", len(req.Inputs), "repack", req.Repack)

	if !req.Repack {
		return d.runner.Run(ctx, d.dataselect, selectArgs, nil, w)
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := d.runner.Run(gctx, d.dataselect, selectArgs, nil, pw)
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := d.runner.Run(gctx, d.msrepack, MsrepackArgs(req), pr, w)
		pr.CloseWithError(err)
		return err
	})
	return g.Wait()
}

// DataselectArgs returns the dataselect arguments for req. Output goes to
// standard output.
func DataselectArgs(req backend.RepackRequest) []string {
	var args []string
	if req.RemoveOverlap {
		args = append(args, "-Ps")
	}
	if req.Quality != "" {
		args = append(args, "-Q", string(req.Quality))
	}
	if req.CutBoundaries {
		args = append(args, "-ts", req.Start, "-te", req.End)
	}
	args = append(args, "-o", "-")
	return append(args, req.Inputs...)
}

// MsrepackArgs returns the msrepack arguments for req, reading standard
// input and writing standard output.
func MsrepackArgs(req backend.RepackRequest) []string {
	return []string{"-R", strconv.Itoa(req.RecordLength), "-o", "-", "-"}
}
