package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ErrAtomicWriteDirSync indicates the parent directory could not be synced
// after rename.
//
// When returned, the new file is in place but its directory entry's
// durability is not guaranteed. Callers can detect this with
// errors.Is(err, ErrAtomicWriteDirSync).
var ErrAtomicWriteDirSync = errors.New("dir sync")

// AtomicWriter writes whole files atomically: data goes to a temp file in
// the target's directory, is fsync'd, renamed over the target, and the
// parent directory is fsync'd. A crash at any point leaves either the old
// file or the new one, never a torn mix. bldmsfmt uses this to lay out
// backing images.
type AtomicWriter struct {
	fs FS
}

// NewAtomicWriter creates an AtomicWriter that uses the given filesystem.
// Panics if fs is nil.
func NewAtomicWriter(fs FS) *AtomicWriter {
	if fs == nil {
		panic("fs is nil")
	}

	return &AtomicWriter{fs: fs}
}

// AtomicWriteOptions configures Write behavior.
type AtomicWriteOptions struct {
	// SyncDir controls whether the parent directory is synced after rename.
	SyncDir bool

	// Perm specifies the file permissions. Must be non-zero. The file is
	// always explicitly chmod'd to this mode, regardless of umask.
	Perm os.FileMode
}

// DefaultOptions returns the default atomic write options: directory sync
// on, mode 0644.
func (*AtomicWriter) DefaultOptions() AtomicWriteOptions {
	return AtomicWriteOptions{
		SyncDir: true,
		Perm:    0o644,
	}
}

// Write writes data from reader to path atomically and durably.
//
// If only the directory sync step fails, the returned error satisfies
// errors.Is(err, ErrAtomicWriteDirSync) and the file content itself is
// already in place.
func (w *AtomicWriter) Write(path string, reader io.Reader, opts AtomicWriteOptions) error {
	if reader == nil {
		panic("reader is nil")
	}

	if path == "" {
		return errors.New("path is empty")
	}

	if opts.Perm == 0 {
		return errors.New("opts.Perm must be non-zero")
	}

	dir, base := filepath.Split(path)
	if base == "" || base == string(os.PathSeparator) || base == "." {
		return fmt.Errorf("path is invalid: %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)

	tmpFile, tmpPath, err := w.createTemp(dir, base, opts.Perm)
	if err != nil {
		return err
	}

	cleanup := func() error {
		closeErr := tmpFile.Close()

		removeErr := w.fs.Remove(tmpPath)
		if removeErr != nil && os.IsNotExist(removeErr) {
			removeErr = nil
		}

		return errors.Join(closeErr, removeErr)
	}

	if err := tmpFile.Chmod(opts.Perm); err != nil {
		return errors.Join(
			fmt.Errorf("chmod temp file %q: %w", tmpPath, err),
			cleanup(),
		)
	}

	if _, err := io.Copy(tmpFile, reader); err != nil {
		return errors.Join(
			fmt.Errorf("write temp file %q: %w", tmpPath, err),
			cleanup(),
		)
	}

	if err := tmpFile.Sync(); err != nil {
		return errors.Join(
			fmt.Errorf("sync temp file %q: %w", tmpPath, err),
			cleanup(),
		)
	}

	if err := w.fs.Rename(tmpPath, path); err != nil {
		return errors.Join(
			fmt.Errorf("rename: %w", err),
			cleanup(),
		)
	}

	cleanupErr := cleanup()

	if opts.SyncDir {
		if err := w.syncDir(dir); err != nil {
			return errors.Join(err, cleanupErr)
		}
	}

	// Don't surface cleanup errors if all main operations worked.
	return nil
}

const atomicWriteMaxAttempts = 10000

var atomicWriteCounter atomic.Uint64

// createTemp opens an exclusive temp file next to the target so the final
// rename never crosses a filesystem boundary.
func (w *AtomicWriter) createTemp(dir, base string, perm os.FileMode) (File, string, error) {
	for range atomicWriteMaxAttempts {
		seq := atomicWriteCounter.Add(1)
		path := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, seq))

		file, err := w.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return file, path, nil
		}

		if os.IsExist(err) {
			continue
		}

		return nil, "", fmt.Errorf("create temp file: %w", err)
	}

	return nil, "", fmt.Errorf("exhausted temp file attempts in %q", dir)
}

func (w *AtomicWriter) syncDir(dir string) error {
	dirFd, err := w.fs.Open(dir)
	if err != nil {
		return errors.Join(ErrAtomicWriteDirSync, fmt.Errorf("open dir %q: %w", dir, err))
	}

	syncErr := dirFd.Sync()
	closeErr := dirFd.Close()

	if syncErr == nil && closeErr == nil {
		return nil
	}

	if syncErr != nil {
		syncErr = fmt.Errorf("%q: %w", dir, syncErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("close dir %q: %w", dir, closeErr)
	}

	return errors.Join(ErrAtomicWriteDirSync, syncErr, closeErr)
}
