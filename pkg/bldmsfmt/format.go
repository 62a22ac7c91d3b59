// Package bldmsfmt lays out a fresh bldms backing image: a valid
// superblock, the single-file inode, and N zeroed (invalid) data blocks.
//
// It is the Go rendering of the original BLDMS project's bldmsmakefs tool;
// bldms itself never creates images from nothing, it only binds to
// already-formatted ones, so this package is what produces the first one.
package bldmsfmt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"bldms.dev/bldms/pkg/bldms"
	"bldms.dev/bldms/pkg/fs"
)

const (
	offSBVersion = 0
	offSBMagic   = 8
	magic        = 0x30303030

	offInodeMode            = 0
	offInodeInodeNo         = 8
	offInodeDataBlockNumber = 16
	offInodeFileSize        = 24

	singleFileInodeNumber = 1
	dataBlockNumber       = 2

	sIFREG = 0o100000
)

// Options configures Format.
type Options struct {
	// NumBlocks is the number of data blocks the image should contain.
	NumBlocks uint64

	// Seed, if non-nil, maps a data block index to a payload that should be
	// written as an already-valid message at format time, the Go analogue
	// of bldmsmakefs's FILL_DEV build. Timestamps come from Nsec, keyed by
	// the same block index, so a caller can reproduce fixtures with
	// deliberately out-of-order on-disk timestamps.
	Seed map[uint64][]byte
	Nsec map[uint64]uint64
}

// Format writes a complete image to path: superblock, inode, then
// opts.NumBlocks data blocks (seeded ones marked valid, the rest zeroed and
// invalid).
func Format(fsys fs.FS, path string, opts Options) error {
	writer := fs.NewAtomicWriter(fsys)

	buf := make([]byte, 0, bldms.BlockSize*(2+opts.NumBlocks))

	buf = append(buf, encodeSuperblock()...)
	buf = append(buf, encodeInode(opts.NumBlocks*bldms.BlockSize)...)

	for i := uint64(0); i < opts.NumBlocks; i++ {
		payload, seeded := opts.Seed[i]

		var (
			nsec    uint64
			isValid bool
		)

		if seeded {
			nsec = opts.Nsec[i]
			isValid = true
		}

		block, err := encodeDataBlock(nsec, isValid, payload)
		if err != nil {
			return fmt.Errorf("formatting block %d: %w", i, err)
		}

		buf = append(buf, block...)
	}

	return writer.Write(path, bytes.NewReader(buf), writer.DefaultOptions())
}

func encodeSuperblock() []byte {
	buf := make([]byte, bldms.BlockSize)
	binary.LittleEndian.PutUint64(buf[offSBVersion:], 1)
	binary.LittleEndian.PutUint64(buf[offSBMagic:], magic)

	return buf
}

func encodeInode(fileSize uint64) []byte {
	buf := make([]byte, bldms.BlockSize)
	binary.LittleEndian.PutUint32(buf[offInodeMode:], sIFREG)
	binary.LittleEndian.PutUint64(buf[offInodeInodeNo:], singleFileInodeNumber)
	binary.LittleEndian.PutUint64(buf[offInodeDataBlockNumber:], dataBlockNumber)
	binary.LittleEndian.PutUint64(buf[offInodeFileSize:], fileSize)

	return buf
}

// encodeDataBlock mirrors bldms's own (unexported) codec so bldmsfmt does
// not need to depend on bldms internals beyond its exported constants.
func encodeDataBlock(nsec uint64, isValid bool, payload []byte) ([]byte, error) {
	if len(payload) > bldms.MaxPayloadSize {
		return nil, fmt.Errorf("payload %d exceeds max %d", len(payload), bldms.MaxPayloadSize)
	}

	buf := make([]byte, bldms.BlockSize)

	binary.LittleEndian.PutUint64(buf[0:], nsec)

	word := uint16(len(payload)) << 1
	if isValid {
		word |= 1
	}

	binary.LittleEndian.PutUint16(buf[8:], word)
	copy(buf[bldms.HeaderSize:], payload)

	return buf, nil
}
