package bldms

import "testing"

func Test_EncodeDecodeHeader_RoundTrips(t *testing.T) {
	t.Parallel()

	header, err := encodeHeader(12345, true, 42)
	if err != nil {
		t.Fatalf("encodeHeader: %v", err)
	}

	nsec, isValid, validBytes := decodeHeader(header[:])

	if nsec != 12345 || !isValid || validBytes != 42 {
		t.Fatalf("round-trip mismatch: got (%d, %v, %d)", nsec, isValid, validBytes)
	}
}

func Test_EncodeHeader_RejectsOversizedValidBytes(t *testing.T) {
	t.Parallel()

	_, err := encodeHeader(0, true, maxValidBytes+1)
	if err == nil {
		t.Fatal("expected error for valid_bytes exceeding 15 bits")
	}
}

func Test_EncodeDecodeSuperblock_RoundTrips(t *testing.T) {
	t.Parallel()

	sb := superblock{version: formatVersion, magic: magic}

	buf := encodeSuperblock(sb)

	got, err := decodeSuperblock(buf)
	if err != nil {
		t.Fatalf("decodeSuperblock: %v", err)
	}

	if got != sb {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, sb)
	}
}

func Test_EncodeDecodeInode_RoundTrips(t *testing.T) {
	t.Parallel()

	ino := inode{mode: 0o100000, inodeNo: 1, dataBlockNumber: 2, fileSize: 3 * BlockSize}

	buf := encodeInode(ino)

	got, err := decodeInode(buf)
	if err != nil {
		t.Fatalf("decodeInode: %v", err)
	}

	if got != ino {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, ino)
	}
}

func Test_EncodeDataBlock_RejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	_, err := encodeDataBlock(0, true, make([]byte, MaxPayloadSize+1))
	if err == nil {
		t.Fatal("expected error for payload exceeding MaxPayloadSize")
	}
}
