package bldms

import (
	"fmt"
	"io"
)

// StreamFile adapts a Session to io.Reader, io.Seeker, and io.Closer, the
// Go-native rendering of the VFS-facing read/seek/close surface a real
// single-file mount would route into the streaming iterator.
//
// Read delivers one message per call: a single call to Read may return
// fewer bytes than len(p) to respect message boundaries, and never spans two
// messages. If the message is longer than len(p), only its first len(p)
// bytes are returned and the next Read moves on to the following message.
// At end-of-stream, Read returns (0, io.EOF).
//
// Seek only supports (0, io.SeekStart), mirroring seek(session, 0, SET) →
// rewind; any other offset/whence combination fails with
// ErrInvalidArgument.
type StreamFile struct {
	session *Session
}

// NewStreamFile wraps sess for use as an io.Reader/io.Seeker/io.Closer.
func NewStreamFile(sess *Session) *StreamFile {
	return &StreamFile{session: sess}
}

func (f *StreamFile) Read(p []byte) (int, error) {
	n, ok, err := f.session.Next(p)
	if err != nil {
		return 0, err
	}

	if !ok {
		return 0, io.EOF
	}

	return n, nil
}

func (f *StreamFile) Seek(offset int64, whence int) (int64, error) {
	if offset != 0 || whence != io.SeekStart {
		return 0, fmt.Errorf("%w: only Seek(0, io.SeekStart) is supported", ErrInvalidArgument)
	}

	if err := f.session.Rewind(); err != nil {
		return 0, err
	}

	return 0, nil
}

func (f *StreamFile) Close() error {
	return f.session.Close()
}
