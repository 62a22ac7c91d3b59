package bldms

import (
	"fmt"

	"bldms.dev/bldms/pkg/fs"
)

// backingStore abstracts a random-access, fixed-size image of BlockSize
// blocks. It hides whether the underlying file is regular or a device node.
//
// Operations use ReadAt/WriteAt rather than Seek+Read/Write so that
// concurrent callers sharing one open fs.File never race on a shared file
// offset; positional I/O is what lets readers issue their block reads
// without taking the engine's writer lock, which serializes only the
// mutators' writes.
type backingStore struct {
	file fs.File
}

func newBackingStore(f fs.File) *backingStore {
	return &backingStore{file: f}
}

// readBlock returns exactly BlockSize bytes from logical block i.
func (s *backingStore) readBlock(i uint64) ([]byte, error) {
	buf := make([]byte, BlockSize)
	off := int64(i) * BlockSize

	for read := 0; read < len(buf); {
		n, err := s.file.ReadAt(buf[read:], off+int64(read))
		read += n

		if err != nil && read < len(buf) {
			return nil, fmt.Errorf("%w: read block %d: %v", ErrIoError, i, err)
		}
	}

	return buf, nil
}

// writeBlock replaces logical block i. len(data) must equal BlockSize.
func (s *backingStore) writeBlock(i uint64, data []byte) error {
	if len(data) != BlockSize {
		return fmt.Errorf("%w: write block %d: expected %d bytes, got %d", ErrIoError, i, BlockSize, len(data))
	}

	off := int64(i) * BlockSize

	for written := 0; written < len(data); {
		n, err := s.file.WriteAt(data[written:], off+int64(written))
		written += n

		if err != nil && written < len(data) {
			return fmt.Errorf("%w: write block %d: %v", ErrIoError, i, err)
		}
	}

	return nil
}

// flush durably commits all pending writes.
func (s *backingStore) flush() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrIoError, err)
	}

	return nil
}
