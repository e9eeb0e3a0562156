package actions

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/callisto/pkg/backend"
)

// ErrNoPID is returned by actions that need a PID the file does not have.
var ErrNoPID = errors.New("file has no pid")

// lookupPID returns the PID of the subject or ErrNoPID.
func lookupPID(ctx context.Context, s Subject) (string, error) {
	pid, found, err := s.Env.PIDs.Lookup(ctx, s.File.ObjectKey())
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%s: %w", s.File, ErrNoPID)
	}
	return pid, nil
}

// newPID assigns a persistent identifier.
func newPID(options map[string]any) (Action, error) {
	return Func(func(ctx context.Context, s Subject) error {
		checksum, err := s.checksum(ctx)
		if err != nil {
			return err
		}
		pid, err := s.Env.PIDs.Assign(ctx, s.File.ObjectKey(), checksum)
		if err != nil {
			return fmt.Errorf("failed to assign pid: %w", err)
		}
		s.logger().Info("pid assigned", "pid", pid)
		return nil
	}), nil
}

// newAddPIDToCatalog writes the PID into the waveform catalog document.
func newAddPIDToCatalog(options map[string]any) (Action, error) {
	return Func(func(ctx context.Context, s Subject) error {
		pid, err := lookupPID(ctx, s)
		if err != nil {
			return err
		}
		if err := s.Env.Catalog.SetPID(ctx, backend.KindWaveform, s.File.Filename(), pid); err != nil {
			return err
		}
		s.logger().Info("waveform catalog updated with pid", "pid", pid)
		return nil
	}), nil
}

type replicationOptions struct {
	ReplicationRoot string `mapstructure:"replicationRoot"`
}

// newReplication replicates the file to a federated root.
func newReplication(options map[string]any) (Action, error) {
	var opts replicationOptions
	if err := Decode(options, &opts); err != nil {
		return nil, err
	}
	if opts.ReplicationRoot == "" {
		return nil, errors.New("replicationRoot is required")
	}

	return Func(func(ctx context.Context, s Subject) error {
		checksum, err := s.checksum(ctx)
		if err != nil {
			return err
		}
		key := s.File.ObjectKey()
		if ok, err := s.Env.Replicator.ReplicaExists(ctx, key, opts.ReplicationRoot, checksum); err != nil {
			return err
		} else if ok {
			return nil
		}
		if err := s.Env.Replicator.Replicate(ctx, key, opts.ReplicationRoot); err != nil {
			return fmt.Errorf("failed to replicate to %s: %w", opts.ReplicationRoot, err)
		}
		return nil
	}), nil
}
