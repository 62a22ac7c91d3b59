package bldms

import "errors"

// Sentinel errors returned by bldms operations.
//
// Callers should classify errors with [errors.Is]:
//
//	if errors.Is(err, bldms.ErrNoSpace) {
//	    // ring is full, invalidate something first
//	}
var (
	// ErrNotBound indicates the engine has no backing image bound.
	ErrNotBound = errors.New("bldms: not bound")

	// ErrBadFormat indicates the backing image failed magic or layout
	// validation during Bind (rebuild-class: reformat the image).
	ErrBadFormat = errors.New("bldms: bad format")

	// ErrBusy indicates a conflicting Bind is already active, either in this
	// process or another one holding the image's lock file.
	ErrBusy = errors.New("bldms: busy")

	// ErrTooBig indicates a payload exceeds the per-block capacity, or a
	// block index is out of range.
	ErrTooBig = errors.New("bldms: too big")

	// ErrNoSpace indicates no free block was found for an Append.
	ErrNoSpace = errors.New("bldms: no space")

	// ErrNoData indicates the requested block index is not currently valid.
	ErrNoData = errors.New("bldms: no data")

	// ErrInvalidArgument indicates an invalid Seek or similar caller error.
	ErrInvalidArgument = errors.New("bldms: invalid argument")

	// ErrOutOfMemory indicates an allocation failed before any I/O was
	// attempted.
	ErrOutOfMemory = errors.New("bldms: out of memory")

	// ErrIoError indicates the backing store reported a failure. No
	// automatic retry is attempted; the caller decides.
	ErrIoError = errors.New("bldms: io error")

	// ErrClosed indicates the Session has already been closed. An Engine
	// or Binder used after Unbind reports ErrNotBound instead.
	ErrClosed = errors.New("bldms: closed")
)
