package actions

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"mercator-hq/callisto/pkg/sds"
)

type ingestOptions struct {
	Prefix string `mapstructure:"prefix"`
}

type federatedOptions struct {
	RemoteRoot string `mapstructure:"remoteRoot"`
}

// DefaultResource is the storage resource of iRODS style ingestion when
// rescName is not set.
const DefaultResource = "compResc"

type resourceOptions struct {
	Resource   string `mapstructure:"rescName"`
	PurgeCache bool   `mapstructure:"purgeCache"`
}

// ObjectKey returns the object store key of f under prefix.
func ObjectKey(f sds.File, prefix string) string {
	key := f.ObjectKey()
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = path.Join(prefix, key)
	}
	return key
}

// upload stores the file under key unless a verified copy is present.
func upload(ctx context.Context, s Subject, key string) error {
	checksum, err := s.checksum(ctx)
	if err != nil {
		return err
	}
	store := s.Env.ObjectStore
	if ok, err := store.Exists(ctx, key, checksum); err != nil {
		return err
	} else if ok {
		s.logger().Debug("object already stored", "key", key)
		return nil
	}

	r, err := s.Env.Archive.Open(s.File)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := store.Put(ctx, key, r, checksum); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	s.logger().Info("uploaded file", "key", key, "checksum", checksum)
	return nil
}

// newIngest uploads the file to the object store.
func newIngest(options map[string]any) (Action, error) {
	var opts ingestOptions
	if err := Decode(options, &opts); err != nil {
		return nil, err
	}
	return Func(func(ctx context.Context, s Subject) error {
		return upload(ctx, s, ObjectKey(s.File, opts.Prefix))
	}), nil
}

// newFederatedIngest uploads the file under a remote root collection.
func newFederatedIngest(options map[string]any) (Action, error) {
	var opts federatedOptions
	if err := Decode(options, &opts); err != nil {
		return nil, err
	}
	if strings.Trim(opts.RemoteRoot, "/") == "" {
		return nil, errors.New("remoteRoot is required")
	}
	return Func(func(ctx context.Context, s Subject) error {
		return upload(ctx, s, ObjectKey(s.File, opts.RemoteRoot))
	}), nil
}

// newResourceIngest uploads the file under the key prefix of a storage
// resource. The object store keeps no cache tier, so purgeCache only shows
// in the log.
func newResourceIngest(options map[string]any) (Action, error) {
	var opts resourceOptions
	if err := Decode(options, &opts); err != nil {
		return nil, err
	}
	opts.Resource = strings.Trim(opts.Resource, "/")
	if opts.Resource == "" {
		opts.Resource = DefaultResource
	}
	return Func(func(ctx context.Context, s Subject) error {
		key := ObjectKey(s.File, opts.Resource)
		if err := upload(ctx, s, key); err != nil {
			return err
		}
		s.logger().Debug("ingested into resource", "resource", opts.Resource, "purge_cache", opts.PurgeCache)
		return nil
	}), nil
}

// newDeleteArchive removes the file from the object store.
func newDeleteArchive(options map[string]any) (Action, error) {
	var opts ingestOptions
	if err := Decode(options, &opts); err != nil {
		return nil, err
	}
	return Func(func(ctx context.Context, s Subject) error {
		key := ObjectKey(s.File, opts.Prefix)
		if err := s.Env.ObjectStore.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
		s.logger().Info("deleted object", "key", key)
		return nil
	}), nil
}
