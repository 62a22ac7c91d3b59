package bldms

import "sync"

// Session is per-open streaming-reader state: the timestamp of the next
// message this session expects to deliver. It holds no reference to any
// valid-index node, only a stamp, so it survives concurrent invalidation of
// the block it is about to (or just did) deliver.
//
// A Session is owned by its opener. Its methods are internally serialized,
// but interleaving Next calls from multiple goroutines gives each caller an
// unpredictable subsequence of the stream, so keep one Session per reader.
type Session struct {
	mu           sync.Mutex
	engine       *Engine
	expectedNsec uint64
	closed       bool
}

// OpenSession creates a new streaming-reader session in the FRESH state
// (expected_nsec = 0).
func (e *Engine) OpenSession() *Session {
	return &Session{engine: e}
}

// Next delivers the next message in timestamp order into buf, returning the
// number of bytes copied. ok is false at end-of-stream (no error).
func (s *Session) Next(buf []byte) (n int, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, false, ErrClosed
	}

	n, nextNsec, found, err := s.engine.next(s.expectedNsec, buf)
	if err != nil {
		return 0, false, err
	}

	if !found {
		return 0, false, nil
	}

	s.expectedNsec = nextNsec

	return n, true, nil
}

// Rewind resets the session to FRESH (expected_nsec = 0). Per spec, rewind
// is the only permitted seek; any other seek must fail with
// ErrInvalidArgument at the caller (see StreamFile.Seek).
func (s *Session) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.expectedNsec = 0

	return nil
}

// Close terminates the session. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}
