package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets
	_ "gocloud.dev/blob/s3blob"   // s3:// buckets
	"gocloud.dev/gcerrors"
)

// ChecksumKey is the object metadata key holding the file checksum.
const ChecksumKey = "sha256"

// Store implements backend.ObjectStore on a gocloud blob bucket.
type Store struct {
	bucket *blob.Bucket
	logger *slog.Logger
}

// Open opens the bucket at url. A non-empty prefix scopes every key.
//
// Supported schemes: file://, mem:// and s3://.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %q: %w", url, err)
	}
	if prefix != "" {
		bucket = blob.PrefixedBucket(bucket, prefix)
	}
	return New(bucket), nil
}

// New wraps an open bucket.
func New(bucket *blob.Bucket) *Store {
	return &Store{
		bucket: bucket,
		logger: slog.Default().With("component", "backend.objectstore"),
	}
}

// Exists reports whether key is stored, and with checksum when one is
// given.
func (s *Store) Exists(ctx context.Context, key, checksum string) (bool, error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to read attributes of %s: %w", key, err)
	}
	if checksum == "" {
		return true, nil
	}
	return attrs.Metadata[ChecksumKey] == checksum, nil
}

// Put uploads r under key with checksum in the object metadata.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, checksum string) error {
	opts := &blob.WriterOptions{
		ContentType: "application/vnd.fdsn.mseed",
		Metadata:    map[string]string{ChecksumKey: checksum},
	}
	if err := s.bucket.Upload(ctx, key, r, opts); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	s.logger.Debug("object uploaded", "key", key)
	return nil
}

// Delete removes key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	s.logger.Debug("object deleted", "key", key)
	return nil
}

// Close closes the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}
