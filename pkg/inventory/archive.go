package inventory

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"mercator-hq/callisto/pkg/sds"
)

// ErrNotFound is returned when a file is not present in the archive.
var ErrNotFound = errors.New("file not found in archive")

// ChecksumPrefix tags checksums computed with sha256.
const ChecksumPrefix = "sha2:"

// Entry describes a file that is present in the archive.
type Entry struct {
	// File is the parsed identity.
	File sds.File

	// Path is the full path of the file under the archive root.
	Path string

	// ModTime is the filesystem modification time.
	ModTime time.Time

	// Size is the file size in bytes.
	Size int64
}

// Archive is an SDS directory tree on an afero filesystem.
type Archive struct {
	fs   afero.Fs
	root string
}

// NewArchive returns an archive rooted at root on fsys.
func NewArchive(fsys afero.Fs, root string) *Archive {
	return &Archive{fs: fsys, root: filepath.Clean(root)}
}

// NewOSArchive returns an archive on the local filesystem.
func NewOSArchive(root string) *Archive {
	return NewArchive(afero.NewOsFs(), root)
}

// Root returns the archive root directory.
func (a *Archive) Root() string {
	return a.root
}

// Fs returns the underlying filesystem.
func (a *Archive) Fs() afero.Fs {
	return a.fs
}

// Path returns the location of f in the archive.
func (a *Archive) Path(f sds.File) string {
	return f.Path(a.root)
}

// Stat returns the archive entry for f, or ErrNotFound.
func (a *Archive) Stat(f sds.File) (Entry, error) {
	p := a.Path(f)
	info, err := a.fs.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("%s: %w", f, ErrNotFound)
		}
		return Entry{}, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	if !info.Mode().IsRegular() {
		return Entry{}, fmt.Errorf("%s is not a regular file", p)
	}
	return Entry{File: f, Path: p, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// Direction selects a neighbor of a file.
type Direction int

const (
	Previous Direction = -1
	Next     Direction = 1
)

// Neighbor returns the entry of the file one day before or after f in the
// same stream and quality, or ErrNotFound.
func (a *Archive) Neighbor(f sds.File, dir Direction) (Entry, error) {
	switch dir {
	case Previous:
		return a.Stat(f.Previous())
	case Next:
		return a.Stat(f.Next())
	default:
		return Entry{}, fmt.Errorf("invalid neighbor direction %d", dir)
	}
}

// Exists reports whether f is present.
func (a *Archive) Exists(f sds.File) (bool, error) {
	_, err := a.Stat(f)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Checksum returns the sha256 checksum of f as "sha2:" + base64.
func (a *Archive) Checksum(ctx context.Context, f sds.File) (string, error) {
	r, err := a.Open(f)
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, contextReader{ctx: ctx, r: r}); err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", f, err)
	}
	return ChecksumPrefix + base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// Open opens f for reading.
func (a *Archive) Open(f sds.File) (afero.File, error) {
	r, err := a.fs.Open(a.Path(f))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", f, ErrNotFound)
		}
		return nil, err
	}
	return r, nil
}

// Create writes f from r through a temporary file and a rename, so that a
// partially written file is never visible under its final name.
func (a *Archive) Create(f sds.File, r io.Reader) error {
	p := a.Path(f)
	if err := a.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f, err)
	}

	tmp := p + ".tmp"
	w, err := a.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		_ = a.fs.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", f, err)
	}
	if err := w.Close(); err != nil {
		_ = a.fs.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := a.fs.Rename(tmp, p); err != nil {
		_ = a.fs.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

// Remove deletes f. Removing a missing file is not an error.
func (a *Archive) Remove(f sds.File) error {
	err := a.fs.Remove(a.Path(f))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", f, err)
	}
	return nil
}

// Move relocates f into the same SDS layout under destRoot. It fails if the
// destination already exists.
func (a *Archive) Move(f sds.File, destRoot string) error {
	return a.rename(a.Path(f), f.Path(destRoot))
}

// Restore moves f back from srcRoot into the archive.
func (a *Archive) Restore(f sds.File, srcRoot string) error {
	return a.rename(f.Path(srcRoot), a.Path(f))
}

func (a *Archive) rename(from, to string) error {
	if _, err := a.fs.Stat(to); err == nil {
		return fmt.Errorf("destination %s already exists", to)
	}
	if err := a.fs.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(to), err)
	}
	if err := a.fs.Rename(from, to); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", from, to, err)
	}
	return nil
}

// Collect walks the archive and returns the entries accepted by filter,
// sorted by stream then time. Files whose names are not SDS names are
// skipped.
func (a *Archive) Collect(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter == nil {
		filter = All()
	}

	if _, err := a.fs.Stat(a.root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var entries []Entry
	err := afero.Walk(a.fs, a.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, perr := sds.Parse(info.Name())
		if perr != nil {
			return nil
		}
		// A file is only part of the archive at its canonical location.
		if p != a.Path(f) || !filter(f) {
			return nil
		}
		entries = append(entries, Entry{File: f, Path: p, ModTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk archive %s: %w", a.root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return sds.Less(entries[i].File, entries[j].File)
	})
	return entries, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
