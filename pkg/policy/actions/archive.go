package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/quality"
	"mercator-hq/callisto/pkg/sds"
)

type pruneOptions struct {
	CutBoundaries    bool `mapstructure:"cut_boundaries"`
	Repack           bool `mapstructure:"repack"`
	RepackRecordSize int  `mapstructure:"repackRecordSize"`
	RemoveOverlap    bool `mapstructure:"removeOverlap"`
}

// newPrune repacks a raw file and its neighbours into the pruned sibling.
func newPrune(options map[string]any) (Action, error) {
	var opts pruneOptions
	if err := Decode(options, &opts); err != nil {
		return nil, err
	}
	if opts.Repack && opts.RepackRecordSize <= 0 {
		return nil, fmt.Errorf("repackRecordSize must be positive when repack is set")
	}

	return Func(func(ctx context.Context, s Subject) error {
		archive := s.Env.Archive
		pruned := s.File.WithQuality(quality.Pruned)
		if ok, err := archive.Exists(pruned); err != nil {
			return err
		} else if ok {
			s.logger().Debug("pruned file already exists", "pruned", pruned.Filename())
			return nil
		}

		var inputs []string
		for _, f := range []sds.File{s.File.Previous(), s.File, s.File.Next()} {
			ok, err := archive.Exists(f)
			if err != nil {
				return err
			}
			if ok {
				inputs = append(inputs, archive.Path(f))
			}
		}
		if len(inputs) == 0 {
			return fmt.Errorf("%s is not in the archive", s.File)
		}

		var buf bytes.Buffer
		err := s.Env.Repacker.Repack(ctx, backend.RepackRequest{
			Inputs:        inputs,
			Start:         s.File.SampleStart(),
			End:           s.File.SampleEnd(),
			CutBoundaries: opts.CutBoundaries,
			Repack:        opts.Repack,
			RecordLength:  opts.RepackRecordSize,
			RemoveOverlap: opts.RemoveOverlap,
			Quality:       quality.Pruned,
		}, &buf)
		if err != nil {
			return fmt.Errorf("failed to prune %s: %w", s.File, err)
		}
		if buf.Len() == 0 {
			return fmt.Errorf("failed to prune %s: no data selected", s.File)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := archive.Create(pruned, &buf); err != nil {
			return err
		}
		s.logger().Info("pruned file", "pruned", pruned.Filename(), "inputs", len(inputs))
		return nil
	}), nil
}

// newPurge removes the file from the temporary archive.
func newPurge(options map[string]any) (Action, error) {
	return Func(func(ctx context.Context, s Subject) error {
		if err := s.Env.Archive.Remove(s.File); err != nil {
			return err
		}
		s.logger().Info("purged file from archive")
		return nil
	}), nil
}

type quarantineOptions struct {
	QuarantinePath string `mapstructure:"quarantine_path"`
	DryRun         bool   `mapstructure:"dry_run"`
}

func decodeQuarantine(options map[string]any) (quarantineOptions, error) {
	var opts quarantineOptions
	if err := Decode(options, &opts); err != nil {
		return opts, err
	}
	if opts.QuarantinePath == "" {
		return opts, errors.New("quarantine_path is required")
	}
	return opts, nil
}

// quarantine moves f below root. A file that is already quarantined and no
// longer in the archive is left alone.
func quarantine(s Subject, f sds.File, root string) error {
	archive := s.Env.Archive
	inArchive, err := archive.Exists(f)
	if err != nil {
		return err
	}
	if !inArchive {
		if _, err := archive.Fs().Stat(f.Path(root)); err == nil {
			return nil
		}
		return fmt.Errorf("%s is not in the archive", f)
	}
	return archive.Move(f, root)
}

// newQuarantineRaw moves the file to the quarantine area.
func newQuarantineRaw(options map[string]any) (Action, error) {
	opts, err := decodeQuarantine(options)
	if err != nil {
		return nil, err
	}

	return previewFunc{dryRun: opts.DryRun, Func: func(ctx context.Context, s Subject) error {
		dest := s.File.Path(opts.QuarantinePath)
		if opts.DryRun {
			s.logger().Info("would quarantine file", "source", s.Env.Archive.Path(s.File), "destination", dest)
			return nil
		}
		if err := quarantine(s, s.File, opts.QuarantinePath); err != nil {
			return fmt.Errorf("failed to quarantine %s: %w", s.File, err)
		}
		s.logger().Info("quarantined file", "destination", dest)
		return nil
	}}, nil
}

// newQuarantinePruned is applied to a pruned file. It quarantines the raw
// daily sibling and removes the pruned file. If the pruned file cannot be
// removed the daily file is restored.
func newQuarantinePruned(options map[string]any) (Action, error) {
	opts, err := decodeQuarantine(options)
	if err != nil {
		return nil, err
	}

	return previewFunc{dryRun: opts.DryRun, Func: func(ctx context.Context, s Subject) error {
		archive := s.Env.Archive
		daily := s.File.WithQuality(quality.Daily)
		if opts.DryRun {
			s.logger().Info("would quarantine daily file and remove pruned file",
				"daily", archive.Path(daily),
				"destination", daily.Path(opts.QuarantinePath),
				"pruned", archive.Path(s.File),
			)
			return nil
		}

		movedNow, err := archive.Exists(daily)
		if err != nil {
			return err
		}
		if err := quarantine(s, daily, opts.QuarantinePath); err != nil {
			return fmt.Errorf("failed to quarantine %s: %w", daily, err)
		}

		if err := archive.Remove(s.File); err != nil {
			if movedNow {
				if rerr := archive.Restore(daily, opts.QuarantinePath); rerr != nil {
					return errors.Join(err, fmt.Errorf("failed to restore %s: %w", daily, rerr))
				}
			}
			return err
		}
		s.logger().Info("quarantined daily file and removed pruned file", "daily", daily.Filename())
		return nil
	}}, nil
}
