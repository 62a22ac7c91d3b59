package bldms

import (
	"encoding/binary"
	"fmt"
)

// Data block header field offsets (bytes from the start of the block).
const (
	offHeaderNsec  = 0 // uint64
	offHeaderFlags = 8 // uint16: bit0 = is_valid, bits1..15 = valid_bytes
)

// maxValidBytes is the largest value valid_bytes can carry in its 15 bits.
const maxValidBytes = 1<<15 - 1

// encodeHeader serializes a data block header into a HeaderSize-byte slice.
//
// validBytes must fit in 15 bits; callers should have already bounded it by
// MaxPayloadSize, which is itself well under maxValidBytes.
func encodeHeader(nsec uint64, isValid bool, validBytes uint16) ([HeaderSize]byte, error) {
	var buf [HeaderSize]byte

	if validBytes > maxValidBytes {
		return buf, fmt.Errorf("%w: valid_bytes %d exceeds 15 bits", ErrTooBig, validBytes)
	}

	binary.LittleEndian.PutUint64(buf[offHeaderNsec:], nsec)

	word := validBytes << 1
	if isValid {
		word |= 1
	}

	binary.LittleEndian.PutUint16(buf[offHeaderFlags:], word)

	return buf, nil
}

// decodeHeader deserializes a HeaderSize-byte block prefix.
func decodeHeader(buf []byte) (nsec uint64, isValid bool, validBytes uint16) {
	nsec = binary.LittleEndian.Uint64(buf[offHeaderNsec:])

	word := binary.LittleEndian.Uint16(buf[offHeaderFlags:])
	isValid = word&1 != 0
	validBytes = word >> 1

	return nsec, isValid, validBytes
}

// Superblock field offsets.
const (
	offSBVersion = 0 // uint64
	offSBMagic   = 8 // uint64
	sbEncodedLen = 16
)

type superblock struct {
	version uint64
	magic   uint64
}

func encodeSuperblock(sb superblock) []byte {
	buf := make([]byte, BlockSize)
	binary.LittleEndian.PutUint64(buf[offSBVersion:], sb.version)
	binary.LittleEndian.PutUint64(buf[offSBMagic:], sb.magic)

	return buf
}

func decodeSuperblock(buf []byte) (superblock, error) {
	if len(buf) < sbEncodedLen {
		return superblock{}, fmt.Errorf("%w: superblock block shorter than %d bytes", ErrBadFormat, sbEncodedLen)
	}

	return superblock{
		version: binary.LittleEndian.Uint64(buf[offSBVersion:]),
		magic:   binary.LittleEndian.Uint64(buf[offSBMagic:]),
	}, nil
}

// Inode field offsets.
const (
	offInodeMode            = 0  // uint32
	offInodeInodeNo         = 8  // uint64
	offInodeDataBlockNumber = 16 // uint64
	offInodeFileSize        = 24 // uint64
	inodeEncodedLen         = 32
)

type inode struct {
	mode            uint32
	inodeNo         uint64
	dataBlockNumber uint64
	fileSize        uint64
}

func encodeInode(ino inode) []byte {
	buf := make([]byte, BlockSize)
	binary.LittleEndian.PutUint32(buf[offInodeMode:], ino.mode)
	binary.LittleEndian.PutUint64(buf[offInodeInodeNo:], ino.inodeNo)
	binary.LittleEndian.PutUint64(buf[offInodeDataBlockNumber:], ino.dataBlockNumber)
	binary.LittleEndian.PutUint64(buf[offInodeFileSize:], ino.fileSize)

	return buf
}

func decodeInode(buf []byte) (inode, error) {
	if len(buf) < inodeEncodedLen {
		return inode{}, fmt.Errorf("%w: inode block shorter than %d bytes", ErrBadFormat, inodeEncodedLen)
	}

	return inode{
		mode:            binary.LittleEndian.Uint32(buf[offInodeMode:]),
		inodeNo:         binary.LittleEndian.Uint64(buf[offInodeInodeNo:]),
		dataBlockNumber: binary.LittleEndian.Uint64(buf[offInodeDataBlockNumber:]),
		fileSize:        binary.LittleEndian.Uint64(buf[offInodeFileSize:]),
	}, nil
}

// encodeDataBlock builds a full BlockSize buffer: header followed by payload
// followed by zero padding.
func encodeDataBlock(nsec uint64, isValid bool, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload %d exceeds max %d", ErrTooBig, len(payload), MaxPayloadSize)
	}

	header, err := encodeHeader(nsec, isValid, uint16(len(payload)))
	if err != nil {
		return nil, err
	}

	buf := make([]byte, BlockSize)
	copy(buf[:HeaderSize], header[:])
	copy(buf[HeaderSize:], payload)

	return buf, nil
}
