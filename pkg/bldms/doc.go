// Package bldms implements a block-level append-and-invalidate message
// store layered over a fixed-size backing image.
//
// Each block of the image holds at most one user message plus a small
// header. Three primitives operate on blocks (Append, ReadBlock, and
// Invalidate), plus a streaming iterator (Session.Next, or the io.Reader
// exposed by StreamFile) that delivers every currently valid message in the
// order it was appended.
//
// # Basic usage
//
//	binder := bldms.NewBinder(fs.NewReal())
//	engine, err := binder.Bind("/var/lib/bldms.img", bldms.Options{})
//	if err != nil {
//	    // handle ErrBadFormat by reformatting with pkg/bldmsfmt
//	}
//	defer binder.Unbind()
//
//	idx, err := engine.Append([]byte("hello"))
//
//	buf := make([]byte, 64)
//	n, err := engine.ReadBlock(idx, buf)
//
//	err = engine.Invalidate(idx)
//
//	sess := engine.OpenSession()
//	defer sess.Close()
//	n, ok, err := sess.Next(buf) // delivers messages in timestamp order
//
// # Concurrency
//
// Append and Invalidate serialize on a single writer lock. ReadBlock and
// streaming iteration never block on that lock or on each other; they
// traverse a lock-free, copy-on-write snapshot of the valid index.
//
// # Error handling
//
// Errors are sentinels in this package; callers should classify with
// errors.Is. ErrBadFormat indicates the image needs reformatting.
// ErrBusy indicates a conflicting Bind is active. ErrIoError indicates the
// backing store failed; there is no automatic retry.
package bldms
