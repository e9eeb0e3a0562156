package actions

import (
	"context"
	"fmt"

	"mercator-hq/callisto/pkg/backend"
)

// newWaveformMetadata writes the waveform catalog document.
func newWaveformMetadata(options map[string]any) (Action, error) {
	return Func(func(ctx context.Context, s Subject) error {
		checksum, err := s.checksum(ctx)
		if err != nil {
			return err
		}
		if ok, err := s.Env.Catalog.Exists(ctx, backend.KindWaveform, s.File.Filename(), checksum); err != nil {
			return err
		} else if ok {
			return nil
		}

		doc, err := s.Env.Extractor.Waveform(ctx, s.Entry, checksum)
		if err != nil {
			return fmt.Errorf("failed to extract waveform metadata: %w", err)
		}
		if err := s.Env.Catalog.Put(ctx, doc); err != nil {
			return err
		}
		s.logger().Info("saved waveform metadata")
		return nil
	}), nil
}

// newDublinCore writes the Dublin Core document. The file must have a PID.
func newDublinCore(options map[string]any) (Action, error) {
	return Func(func(ctx context.Context, s Subject) error {
		checksum, err := s.checksum(ctx)
		if err != nil {
			return err
		}
		pid, err := lookupPID(ctx, s)
		if err != nil {
			return err
		}

		doc, err := s.Env.Extractor.DublinCore(ctx, s.Entry, checksum, pid)
		if err != nil {
			return fmt.Errorf("failed to extract dublin core metadata: %w", err)
		}
		if err := s.Env.Catalog.Put(ctx, doc); err != nil {
			return err
		}
		s.logger().Info("saved dublin core metadata", "pid", pid)
		return nil
	}), nil
}

// newPPSD computes and writes the PPSD segments.
func newPPSD(options map[string]any) (Action, error) {
	return Func(func(ctx context.Context, s Subject) error {
		checksum, err := s.checksum(ctx)
		if err != nil {
			return err
		}
		docs, err := s.Env.PSD.Compute(ctx, s.Entry, checksum)
		if err != nil {
			return fmt.Errorf("failed to compute ppsd: %w", err)
		}
		if len(docs) == 0 {
			return s.Env.Catalog.Delete(ctx, backend.KindPPSD, s.File.Filename())
		}
		if err := s.Env.Catalog.Put(ctx, docs...); err != nil {
			return err
		}
		s.logger().Info("saved ppsd metadata", "segments", len(docs))
		return nil
	}), nil
}

// deleteMetadata returns a factory for an action removing documents of kind.
func deleteMetadata(kind backend.Kind) Factory {
	return func(options map[string]any) (Action, error) {
		return Func(func(ctx context.Context, s Subject) error {
			if err := s.Env.Catalog.Delete(ctx, kind, s.File.Filename()); err != nil {
				return err
			}
			s.logger().Info("deleted metadata", "kind", string(kind))
			return nil
		}), nil
	}
}
