package fs

import (
	"errors"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection. Partially initialized configs
// only inject faults for the specified rates; unset fields default to 0.0.
//
// Fault injection is enabled by default ([ChaosModeActive]). Use
// [Chaos.SetMode] with [ChaosModeNoOp] to disable injection and pass
// all operations through to the underlying filesystem.
type ChaosConfig struct {
	// OpenFailRate controls how often FS.Open and FS.OpenFile fail.
	// For read-only opens: EACCES, EIO, EMFILE, ENFILE, ENOTDIR. For write
	// opens (O_WRONLY, O_RDWR, O_CREATE, ...): adds ENOSPC, EDQUOT, EROFS.
	OpenFailRate float64

	// ReadFailRate controls how often File.ReadAt fails entirely, returning
	// zero bytes and EIO.
	ReadFailRate float64

	// PartialReadRate controls how often File.ReadAt returns a short read
	// (n < len(buf), err == nil) by limiting the underlying read window.
	// This is valid io.ReaderAt progress, not an error, and tests that
	// callers correctly loop until the block is complete.
	PartialReadRate float64

	// WriteFailRate controls how often File.Write and File.WriteAt fail
	// entirely, writing zero bytes and returning an error (EIO, ENOSPC,
	// EDQUOT, or EROFS).
	WriteFailRate float64

	// PartialWriteRate controls how often File.Write and File.WriteAt write
	// only some bytes before failing. Returns n > 0 bytes written along with
	// an error. The error type is controlled by ShortWriteRate.
	PartialWriteRate float64

	// ShortWriteRate controls the error type for partial writes. This
	// fraction of partial writes return io.ErrShortWrite (a write that
	// stopped early without a syscall error). The remainder return
	// *fs.PathError with an errno.
	ShortWriteRate float64

	// SyncFailRate controls how often File.Sync (fsync) fails. Returns EIO,
	// ENOSPC, EDQUOT, or EROFS. Sync failures can surface delayed write
	// errors that weren't reported during Write.
	SyncFailRate float64

	// CloseFailRate controls how often File.Close reports an error. The
	// underlying file descriptor is always closed (to avoid leaks) even when
	// an error is returned. Returns EIO.
	CloseFailRate float64

	// FileStatFailRate controls how often File.Stat fails on an open file
	// handle, returning EIO. Distinct from StatFailRate, which controls
	// FS.Stat on paths.
	FileStatFailRate float64

	// ChmodFailRate controls how often File.Chmod fails, returning EACCES,
	// EPERM, EIO, or EROFS.
	ChmodFailRate float64

	// StatFailRate controls how often FS.Stat fails on a path. Returns
	// EACCES or EIO.
	StatFailRate float64

	// MkdirAllFailRate controls how often FS.MkdirAll fails. Returns EACCES,
	// EIO, ENOSPC, EDQUOT, EROFS, or ENOTDIR.
	MkdirAllFailRate float64

	// RemoveFailRate controls how often FS.Remove fails. Returns EACCES,
	// EPERM, EBUSY, EIO, or EROFS.
	RemoveFailRate float64

	// RenameFailRate controls how often FS.Rename fails. Returns an
	// *os.LinkError (not *fs.PathError) with EACCES, EIO, ENOSPC, EXDEV,
	// EROFS, or EPERM.
	RenameFailRate float64
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails     int64
	ReadFails     int64
	PartialReads  int64
	WriteFails    int64
	PartialWrites int64
	SyncFails     int64
	CloseFails    int64
	FileStatFails int64
	ChmodFails    int64
	StatFails     int64
	MkdirAllFails int64
	RemoveFails   int64
	RenameFails   int64
}

// chaosError marks an error as intentionally injected by [Chaos].
//
// It wraps the underlying error so errors.Is/As continue to work. For
// errno-style errors, [Chaos] wraps an [*fs.PathError] (or [*os.LinkError]
// for rename) with a [syscall.Errno] in PathError.Err, so os.IsNotExist /
// os.IsPermission keep working via unwrapping, while [IsChaosErr] can still
// distinguish chaos vs real OS errors in tests.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err (or any wrapped error) was injected by
// [Chaos]. Returns false if err is nil.
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and injects random failures for testing.
//
// The fault model aims to match the surface semantics of Go's os package on
// Unix-ish systems, without overfitting to edge/undefined kernel behavior.
// It is a "real filesystem + fault injection" wrapper, not a filesystem
// simulator. Chaos keeps no per-path "sticky" fault state; each call
// independently decides whether to inject.
//
// Error model:
//   - Injected filesystem errors are an [*fs.PathError] with a real
//     [syscall.Errno] in PathError.Err; rename failures are an
//     [*os.LinkError], like [os.Rename].
//   - Injected errors are marked so tests can distinguish injected vs real
//     filesystem errors using [IsChaosErr].
//   - Chaos never injects ENOENT (any os.IsNotExist result originates from
//     the wrapped [FS]) and never injects EINTR (the stdlib generally
//     retries EINTR internally).
//
// Return-shape constraints:
//   - File.ReadAt injected failures return n==0 with a non-nil error.
//   - File.Write/WriteAt may return n>0 with a non-nil error (partial
//     progress).
//   - File.Close injected failures still close the underlying file to avoid
//     descriptor leaks in tests.
//   - Chaos does not inject impossible anomalies like n>len(data); EOF is
//     not treated as an injected failure and comes from the wrapped
//     filesystem as-is.
//
// Use [Chaos.SetMode] to control behavior and [Chaos.Stats] to inspect how
// many faults were injected.
type Chaos struct {
	fs     FS
	rng    *rand.Rand
	config ChaosConfig
	mode   atomic.Uint32

	rngMu sync.Mutex

	openFails     atomic.Int64
	readFails     atomic.Int64
	partialReads  atomic.Int64
	writeFails    atomic.Int64
	partialWrites atomic.Int64
	syncFails     atomic.Int64
	closeFails    atomic.Int64
	fileStatFails atomic.Int64
	chmodFails    atomic.Int64
	statFails     atomic.Int64
	mkdirAllFails atomic.Int64
	removeFails   atomic.Int64
	renameFails   atomic.Int64
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config *ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Chaos{
		fs:     underlying,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		config: *config,
	}
}

// SetMode updates [Chaos] behavior.
//
// SetMode is safe to call concurrently with filesystem operations.
//
// Modes:
//   - [ChaosModeActive]: inject random failures according to [ChaosConfig].
//     This is the default.
//   - [ChaosModeNoOp]: pass all operations to the underlying filesystem.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:     c.openFails.Load(),
		ReadFails:     c.readFails.Load(),
		PartialReads:  c.partialReads.Load(),
		WriteFails:    c.writeFails.Load(),
		PartialWrites: c.partialWrites.Load(),
		SyncFails:     c.syncFails.Load(),
		CloseFails:    c.closeFails.Load(),
		FileStatFails: c.fileStatFails.Load(),
		ChmodFails:    c.chmodFails.Load(),
		StatFails:     c.statFails.Load(),
		MkdirAllFails: c.mkdirAllFails.Load(),
		RemoveFails:   c.removeFails.Load(),
		RenameFails:   c.renameFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.OpenFails + s.ReadFails + s.PartialReads + s.WriteFails +
		s.PartialWrites + s.SyncFails + s.CloseFails + s.FileStatFails +
		s.ChmodFails + s.StatFails + s.MkdirAllFails + s.RemoveFails +
		s.RenameFails
}

// Open opens a file for reading with fault injection.
func (c *Chaos) Open(path string) (File, error) {
	return c.openWithChaos(path, false, func() (File, error) {
		return c.fs.Open(path)
	})
}

// OpenFile opens a file with the specified flags and permissions with fault
// injection.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	forWrite := flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0

	return c.openWithChaos(path, forWrite, func() (File, error) {
		return c.fs.OpenFile(path, flag, perm)
	})
}

// Stat returns file info with fault injection.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	mode := c.getMode()
	if c.should(mode, c.config.StatFailRate) {
		c.statFails.Add(1)

		// EACCES: permission denied. EIO: device/filesystem failure.
		return nil, pathError("stat", path, c.pickRandom(
			syscall.EACCES, syscall.EIO))
	}

	return c.fs.Stat(path)
}

// MkdirAll creates a directory and parents with fault injection.
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	mode := c.getMode()
	if c.should(mode, c.config.MkdirAllFailRate) {
		c.mkdirAllFails.Add(1)

		return pathError("mkdirall", path, c.pickRandom(
			syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EDQUOT,
			syscall.EROFS, syscall.ENOTDIR))
	}

	return c.fs.MkdirAll(path, perm)
}

// Remove removes a file with fault injection.
func (c *Chaos) Remove(path string) error {
	mode := c.getMode()
	if c.should(mode, c.config.RemoveFailRate) {
		c.removeFails.Add(1)

		return pathError("remove", path, c.pickRandom(
			syscall.EACCES, syscall.EPERM, syscall.EBUSY, syscall.EIO,
			syscall.EROFS))
	}

	return c.fs.Remove(path)
}

// Rename renames a file with fault injection.
func (c *Chaos) Rename(oldpath, newpath string) error {
	mode := c.getMode()
	if c.should(mode, c.config.RenameFailRate) {
		c.renameFails.Add(1)

		le := &os.LinkError{Op: "rename", Old: oldpath, New: newpath,
			Err: c.pickRandom(syscall.EACCES, syscall.EIO, syscall.ENOSPC,
				syscall.EXDEV, syscall.EROFS, syscall.EPERM)}

		return &chaosError{Err: le}
	}

	return c.fs.Rename(oldpath, newpath)
}

// getMode returns the current ChaosMode safely.
func (c *Chaos) getMode() ChaosMode {
	v := c.mode.Load()
	if v > uint32(ChaosModeNoOp) {
		return ChaosModeActive
	}

	return ChaosMode(v)
}

// openWithChaos wraps file-open operations with fault injection. forWrite
// selects the errno set: write opens can additionally fail with
// space/quota/read-only errors.
func (c *Chaos) openWithChaos(path string, forWrite bool, openFn func() (File, error)) (File, error) {
	mode := c.getMode()
	if c.should(mode, c.config.OpenFailRate) {
		c.openFails.Add(1)

		// EACCES: permission denied. EIO: device failure. EMFILE/ENFILE:
		// process/system FD limits. ENOTDIR: a path component is not a
		// directory. Write opens add ENOSPC/EDQUOT/EROFS.
		errnos := []syscall.Errno{
			syscall.EACCES, syscall.EIO, syscall.EMFILE, syscall.ENFILE,
			syscall.ENOTDIR,
		}
		if forWrite {
			errnos = append(errnos, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS)
		}

		return nil, pathError("open", path, c.pickRandom(errnos...))
	}

	file, err := openFn()
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: file, chaos: c, path: path}, nil
}

// should returns true with the given probability when chaos is injecting.
func (c *Chaos) should(mode ChaosMode, rate float64) bool {
	if mode != ChaosModeActive {
		return false
	}

	return c.randFloat() < rate
}

// randFloat returns a random float64 in [0.0, 1.0) (thread-safe).
func (c *Chaos) randFloat() float64 {
	c.rngMu.Lock()
	result := c.rng.Float64()
	c.rngMu.Unlock()

	return result
}

// randIntn returns a random int in [0, n) (thread-safe).
func (c *Chaos) randIntn(n int) int {
	c.rngMu.Lock()
	result := c.rng.IntN(n)
	c.rngMu.Unlock()

	return result
}

// pickRandom selects a random errno from the list.
func (c *Chaos) pickRandom(errnos ...syscall.Errno) syscall.Errno {
	return errnos[c.randIntn(len(errnos))]
}

// pathError creates an injected [*fs.PathError] wrapped in [chaosError] so
// [IsChaosErr] can identify it while [errors.As] and helpers like
// [os.IsPermission] still work via unwrapping.
func pathError(op, path string, errno syscall.Errno) error {
	return &chaosError{Err: &fs.PathError{Op: op, Path: path, Err: errno}}
}

// chaosFile wraps a [File] and injects faults on its operations.
type chaosFile struct {
	f     File
	chaos *Chaos
	path  string
}

// Interface compliance.
var _ File = (*chaosFile)(nil)

func (cf *chaosFile) ReadAt(buf []byte, off int64) (int, error) {
	mode := cf.chaos.getMode()

	if cf.chaos.should(mode, cf.chaos.config.ReadFailRate) {
		cf.chaos.readFails.Add(1)

		// EIO only: post-open read failures shouldn't surface EACCES/ENOENT,
		// matching os.File.Read's shape on Unix-ish systems.
		return 0, pathError("read", cf.path, syscall.EIO)
	}

	// Partial read: shrink the requested window so the caller sees a short
	// read at this offset without skipping bytes. Legal io.ReaderAt
	// progress, not an error; callers must loop.
	if cf.chaos.should(mode, cf.chaos.config.PartialReadRate) && len(buf) > 1 {
		cf.chaos.partialReads.Add(1)
		cutoff := cf.chaos.randIntn(len(buf)-1) + 1 // [1, len(buf)-1]

		return cf.f.ReadAt(buf[:cutoff], off)
	}

	return cf.f.ReadAt(buf, off)
}

func (cf *chaosFile) WriteAt(data []byte, off int64) (int, error) {
	return cf.writeWithChaos(data, func(p []byte) (int, error) {
		return cf.f.WriteAt(p, off)
	})
}

func (cf *chaosFile) Write(data []byte) (int, error) {
	return cf.writeWithChaos(data, cf.f.Write)
}

// writeWithChaos implements the shared Write/WriteAt fault model: full
// failure, partial progress with an errno, or partial progress with a bare
// io.ErrShortWrite (the stdlib's "n != len(b) without a syscall error"
// outcome).
func (cf *chaosFile) writeWithChaos(data []byte, writeFn func([]byte) (int, error)) (int, error) {
	mode := cf.chaos.getMode()

	if cf.chaos.should(mode, cf.chaos.config.WriteFailRate) {
		cf.chaos.writeFails.Add(1)

		// Post-open write failures: EIO, ENOSPC, EDQUOT, EROFS.
		// Avoid EACCES/ENOENT post-open.
		return 0, pathError("write", cf.path, cf.chaos.pickRandom(
			syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS))
	}

	if cf.chaos.should(mode, cf.chaos.config.PartialWriteRate) && len(data) > 1 {
		cf.chaos.partialWrites.Add(1)
		cutoff := cf.chaos.randIntn(len(data)-1) + 1 // [1, len(data)-1]

		wrote, err := writeFn(data[:cutoff])
		if err != nil {
			return wrote, err
		}

		if cf.chaos.randFloat() < cf.chaos.config.ShortWriteRate {
			return wrote, &chaosError{Err: io.ErrShortWrite}
		}

		return wrote, pathError("write", cf.path, cf.chaos.pickRandom(
			syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS))
	}

	return writeFn(data)
}

func (cf *chaosFile) Close() error {
	mode := cf.chaos.getMode()
	injectClose := cf.chaos.should(mode, cf.chaos.config.CloseFailRate)

	// Always close the underlying file to avoid descriptor leaks, even when
	// returning an injected error.
	err := cf.f.Close()
	if err != nil {
		return err
	}

	if injectClose {
		cf.chaos.closeFails.Add(1)

		return pathError("close", cf.path, syscall.EIO)
	}

	return nil
}

func (cf *chaosFile) Fd() uintptr {
	return cf.f.Fd()
}

func (cf *chaosFile) Stat() (os.FileInfo, error) {
	mode := cf.chaos.getMode()
	if cf.chaos.should(mode, cf.chaos.config.FileStatFailRate) {
		cf.chaos.fileStatFails.Add(1)

		return nil, pathError("stat", cf.path, syscall.EIO)
	}

	return cf.f.Stat()
}

func (cf *chaosFile) Sync() error {
	mode := cf.chaos.getMode()
	if cf.chaos.should(mode, cf.chaos.config.SyncFailRate) {
		cf.chaos.syncFails.Add(1)

		// fsync can surface delayed write failures: EIO, ENOSPC, EDQUOT,
		// EROFS.
		return pathError("sync", cf.path, cf.chaos.pickRandom(
			syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS))
	}

	return cf.f.Sync()
}

func (cf *chaosFile) Chmod(mode os.FileMode) error {
	m := cf.chaos.getMode()
	if cf.chaos.should(m, cf.chaos.config.ChmodFailRate) {
		cf.chaos.chmodFails.Add(1)

		return pathError("chmod", cf.path, cf.chaos.pickRandom(
			syscall.EACCES, syscall.EPERM, syscall.EIO, syscall.EROFS))
	}

	return cf.f.Chmod(mode)
}

var _ FS = (*Chaos)(nil)
