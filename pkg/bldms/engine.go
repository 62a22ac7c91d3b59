package bldms

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// WritebackMode controls durability guarantees for Append and Invalidate.
type WritebackMode int

const (
	// WritebackNone lets writes be buffered by the OS; append/invalidate
	// return as soon as the backing store accepts the write.
	WritebackNone WritebackMode = iota

	// WritebackSync flushes the backing store before append/invalidate
	// return, the Go-native rendering of SYNCHRONOUS_APPEND.
	WritebackSync
)

// Options configures a bound Engine. The zero value is valid: it uses
// DefaultMaxBlocks, WritebackNone, no audit tracing, and the system clock.
type Options struct {
	// MaxBlocks bounds N at bind time; Bind fails with ErrTooBig if the
	// image's inode reports more data blocks than this. Zero means
	// DefaultMaxBlocks.
	MaxBlocks int

	// Writeback controls whether Append/Invalidate flush before returning.
	Writeback WritebackMode

	// Audit, when non-nil, receives verbose tracing of engine operations.
	// Purely diagnostic; has no effect on semantics or correctness.
	Audit *slog.Logger

	// Clock returns the current timestamp in nanoseconds. Nil means
	// time.Now().UnixNano(). Tests inject a deterministic, strictly
	// increasing clock to make monotone-stamp assertions exact.
	Clock func() uint64
}

func (o Options) maxBlocks() uint64 {
	if o.MaxBlocks <= 0 {
		return DefaultMaxBlocks
	}

	if o.MaxBlocks > maxBlocksHardLimit {
		return maxBlocksHardLimit
	}

	return uint64(o.MaxBlocks)
}

func (o Options) clock() func() uint64 {
	if o.Clock != nil {
		return o.Clock
	}

	return func() uint64 { return uint64(time.Now().UnixNano()) }
}

func (o Options) audit() *slog.Logger {
	return o.Audit
}

// Engine implements the three mutating primitives plus streaming iteration
// over one bound image. All exported methods are safe for concurrent use:
// Append and Invalidate serialize on a single writer lock; ReadBlock and the
// streaming iterator never block on it.
//
// An Engine is built only by Binder.Bind; there is no exported constructor.
type Engine struct {
	mu sync.Mutex // writer lock: serializes Append and Invalidate only

	store *backingStore
	meta  *metaTable
	index *validIndex

	n           uint64
	lastWritten uint64

	// unbound flips once, when the owning Binder unbinds. Operations on an
	// unbound Engine fail with ErrNotBound instead of surfacing I/O errors
	// from a closed file.
	unbound atomic.Bool

	opts Options
}

// Append writes payload into the first free block after the rotor hint
// (LastWritten), wrapping around, publishes it to the valid index, and
// returns the chosen block index.
func (e *Engine) Append(payload []byte) (uint64, error) {
	if e.unbound.Load() {
		return 0, ErrNotBound
	}

	if len(payload) > MaxPayloadSize {
		return 0, fmt.Errorf("%w: payload %d exceeds max %d", ErrTooBig, len(payload), MaxPayloadSize)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	chosen, ok := e.meta.findFree(e.lastWritten)
	if !ok {
		return 0, ErrNoSpace
	}

	nsec := e.opts.clock()()

	// Stamps stay strictly ascending even when the clock lags the stamps
	// already on the image: a rebound image may carry stamps written by
	// another machine or epoch.
	if snap := e.index.Snapshot(); len(snap) > 0 {
		if tail := snap[len(snap)-1]; nsec <= tail.nsec {
			nsec = tail.nsec + 1
		}
	}

	block, err := encodeDataBlock(nsec, true, payload)
	if err != nil {
		return 0, err
	}

	if err := e.store.writeBlock(dataBlockOffset+chosen, block); err != nil {
		return 0, err
	}

	if e.opts.Writeback == WritebackSync {
		if err := e.store.flush(); err != nil {
			return 0, err
		}
	}

	validBytes := uint16(len(payload))

	e.index.insertInOrder(validNode{blockIndex: chosen, validBytes: validBytes, nsec: nsec})
	e.meta.set(chosen, metaEntry{valid: true, validBytes: validBytes, nsec: nsec})
	e.lastWritten = chosen

	if l := e.opts.audit(); l != nil {
		l.Debug("append", "block", chosen, "nsec", nsec, "bytes", len(payload))
	}

	return chosen, nil
}

// ReadBlock copies up to len(buf) payload bytes from block i if it is
// currently valid, returning the number of bytes copied.
func (e *Engine) ReadBlock(i uint64, buf []byte) (int, error) {
	if e.unbound.Load() {
		return 0, ErrNotBound
	}

	if i >= e.n {
		return 0, fmt.Errorf("%w: block %d >= N %d", ErrTooBig, i, e.n)
	}

	snap := e.index.Snapshot()

	node, ok := findByIndex(snap, i)
	if !ok {
		return 0, ErrNoData
	}

	block, err := e.store.readBlock(dataBlockOffset + i)
	if err != nil {
		return 0, err
	}

	want := int(node.validBytes)
	if len(buf) < want {
		want = len(buf)
	}

	n := copy(buf[:want], block[HeaderSize:HeaderSize+int(node.validBytes)])

	if l := e.opts.audit(); l != nil {
		l.Debug("read_block", "block", i, "bytes", n)
	}

	return n, nil
}

// Invalidate removes block i from the valid index and rewrites its
// persistent header with is_valid=false.
func (e *Engine) Invalidate(i uint64) error {
	if e.unbound.Load() {
		return ErrNotBound
	}

	if i >= e.n {
		return fmt.Errorf("%w: block %d >= N %d", ErrTooBig, i, e.n)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.index.unlink(i) {
		return ErrNoData
	}

	e.meta.set(i, metaEntry{valid: false})

	// Grace period: the snapshot swap in unlink already means no reader can
	// acquire a new reference to the removed node, and readers holding an
	// older snapshot keep its backing array alive on their own, so the node
	// needs no explicit reclamation wait. The header rewrite below only
	// touches the header bytes, so a reader mid-copy of this block's payload
	// is unaffected. It stays inside the writer lock so a concurrent Append
	// cannot reuse the block and then have its fresh header clobbered.
	block, err := e.store.readBlock(dataBlockOffset + i)
	if err != nil {
		return err
	}

	header, err := encodeHeader(0, false, 0)
	if err != nil {
		return err
	}

	copy(block[:HeaderSize], header[:])

	if err := e.store.writeBlock(dataBlockOffset+i, block); err != nil {
		return err
	}

	if e.opts.Writeback == WritebackSync {
		if err := e.store.flush(); err != nil {
			return err
		}
	}

	if l := e.opts.audit(); l != nil {
		l.Debug("invalidate", "block", i)
	}

	return nil
}

// next implements one step of the streaming iterator for a session,
// delivering the payload of the first valid block with nsec strictly
// greater than expectedNsec. Returns (bytesCopied, nextExpectedNsec, found).
func (e *Engine) next(expectedNsec uint64, buf []byte) (int, uint64, bool, error) {
	if e.unbound.Load() {
		return 0, expectedNsec, false, ErrNotBound
	}

	snap := e.index.Snapshot()

	node, ok := findNextAfter(snap, expectedNsec)
	if !ok {
		return 0, expectedNsec, false, nil
	}

	block, err := e.store.readBlock(dataBlockOffset + node.blockIndex)
	if err != nil {
		return 0, expectedNsec, false, err
	}

	want := int(node.validBytes)
	if len(buf) < want {
		want = len(buf)
	}

	n := copy(buf[:want], block[HeaderSize:HeaderSize+int(node.validBytes)])

	return n, node.nsec, true, nil
}

// N returns the number of data blocks in the bound image.
func (e *Engine) N() uint64 {
	return e.n
}

// LastWritten returns the rotor hint: the block index the next free-block
// search starts after. Advisory only; it may be stale by the time the caller
// looks at it.
func (e *Engine) LastWritten() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastWritten
}
