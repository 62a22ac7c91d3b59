package bldms

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"bldms.dev/bldms/pkg/fs"
)

// processBound enforces the engine-wide singleton: at most one bound
// instance per process, regardless of how many Binder values exist or which
// image path each one targets. A plain per-Binder mutex only serializes
// Bind/Unbind on that one Binder; it does nothing to stop a second,
// independent Binder from binding a second image concurrently. This flag is
// the process-wide gate in front of that per-Binder bookkeeping.
var processBound atomic.Bool

// Binder manages the bind/unbind lifecycle of a single backing image.
//
// The library supports exactly one bound instance at a time, process-wide:
// a second Bind, whether from this Binder value, another Binder in the same
// process, or another process entirely, fails with ErrBusy until Unbind
// completes. The in-process half of that guarantee is the package-level
// processBound flag; the cross-process half is an advisory flock on
// "<path>.lock" via pkg/fs.Locker.
type Binder struct {
	fsys   fs.FS
	locker *fs.Locker

	mu     sync.Mutex
	bound  bool
	engine *Engine
	file   fs.File
	lock   *fs.Lock
}

// NewBinder creates a Binder that opens images through fsys.
func NewBinder(fsys fs.FS) *Binder {
	return &Binder{
		fsys:   fsys,
		locker: fs.NewLocker(fsys),
	}
}

// Bind opens path, validates its superblock and inode, scans every data
// block to populate the metadata table, rebuilds the valid index in
// timestamp order, and returns a ready-to-use Engine.
//
// Bind fails with ErrBusy if this process (any Binder, any path) already
// has an image bound, or if another process holds path+".lock".
func (b *Binder) Bind(path string, opts Options) (*Engine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound {
		return nil, ErrBusy
	}

	if !processBound.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: another image is already bound in this process", ErrBusy)
	}

	lock, err := b.locker.TryLock(path + ".lock")
	if err != nil {
		processBound.Store(false)

		if errors.Is(err, fs.ErrWouldBlock) {
			return nil, fmt.Errorf("%w: image already bound by another process", ErrBusy)
		}

		return nil, fmt.Errorf("%w: acquiring lock: %v", ErrIoError, err)
	}

	file, err := b.fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		_ = lock.Close()
		processBound.Store(false)

		return nil, fmt.Errorf("%w: opening image: %v", ErrIoError, err)
	}

	engine, err := bindEngine(file, opts)
	if err != nil {
		_ = file.Close()
		_ = lock.Close()
		processBound.Store(false)

		return nil, err
	}

	b.engine = engine
	b.file = file
	b.lock = lock
	b.bound = true

	return engine, nil
}

// Unbind releases the backing store and the cross-process lock. Idempotent:
// calling Unbind when nothing is bound returns ErrNotBound.
func (b *Binder) Unbind() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.bound {
		return ErrNotBound
	}

	// Drain writers: taking the writer lock after flipping unbound means any
	// in-flight Append/Invalidate has finished before the file closes; later
	// calls fail fast with ErrNotBound.
	b.engine.unbound.Store(true)
	b.engine.mu.Lock()
	b.engine.mu.Unlock() //nolint:staticcheck // empty critical section is the drain

	closeErr := b.file.Close()
	unlockErr := b.lock.Close()

	b.engine = nil
	b.file = nil
	b.lock = nil
	b.bound = false

	processBound.Store(false)

	return errors.Join(closeErr, unlockErr)
}

// bindEngine performs the read-and-validate sequence of Bind against an
// already-opened, already-locked file.
func bindEngine(file fs.File, opts Options) (*Engine, error) {
	store := newBackingStore(file)

	sbBlock, err := store.readBlock(sbBlockNumber)
	if err != nil {
		return nil, err
	}

	sb, err := decodeSuperblock(sbBlock)
	if err != nil {
		return nil, err
	}

	if sb.magic != magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrBadFormat, sb.magic)
	}

	inodeBlock, err := store.readBlock(inodeBlockNumber)
	if err != nil {
		return nil, err
	}

	ino, err := decodeInode(inodeBlock)
	if err != nil {
		return nil, err
	}

	if ino.fileSize%BlockSize != 0 {
		return nil, fmt.Errorf("%w: file_size %d not a multiple of BlockSize", ErrBadFormat, ino.fileSize)
	}

	n := ino.fileSize / BlockSize

	if n > opts.maxBlocks() {
		return nil, fmt.Errorf("%w: N=%d exceeds MaxBlocks=%d", ErrTooBig, n, opts.maxBlocks())
	}

	meta := newMetaTable(n)
	index := newValidIndex()

	for i := uint64(0); i < n; i++ {
		block, err := store.readBlock(dataBlockOffset + i)
		if err != nil {
			return nil, err
		}

		nsec, isValid, validBytes := decodeHeader(block)

		meta.set(i, metaEntry{valid: isValid, validBytes: validBytes, nsec: nsec})

		if isValid {
			index.insertInOrder(validNode{blockIndex: i, validBytes: validBytes, nsec: nsec})
		}
	}

	var lastWritten uint64
	if n > 0 {
		lastWritten = n - 1
	}

	if snap := index.Snapshot(); len(snap) > 0 {
		lastWritten = snap[len(snap)-1].blockIndex
	}

	return &Engine{
		store:       store,
		meta:        meta,
		index:       index,
		n:           n,
		lastWritten: lastWritten,
		opts:        opts,
	}, nil
}
