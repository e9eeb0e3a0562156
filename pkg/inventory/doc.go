// Package inventory gives read and write access to the files of an SDS
// archive.
//
// An Archive wraps an afero filesystem so that production code runs on the
// OS filesystem and tests run on an in-memory one:
//
//	archive := inventory.NewArchive(afero.NewMemMapFs(), "/archive")
//	entries, err := archive.Collect(ctx, inventory.PastDays(time.Now(), 7))
//
// Writes go through a temporary file and a rename. Checksums are sha256
// digests encoded as "sha2:" followed by standard base64.
package inventory
