package bldms

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestImage lays out a raw image file directly through the codec,
// bypassing bldmsfmt (which this package cannot import from an internal
// test without a cycle).
func writeTestImage(t *testing.T, n uint64, seed map[uint64][]byte, stamps map[uint64]uint64) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "image.bldms")

	buf := make([]byte, 0, (2+n)*BlockSize)
	buf = append(buf, encodeSuperblock(superblock{version: formatVersion, magic: magic})...)
	buf = append(buf, encodeInode(inode{
		mode:            0o100000,
		inodeNo:         1,
		dataBlockNumber: dataBlockOffset,
		fileSize:        n * BlockSize,
	})...)

	for i := uint64(0); i < n; i++ {
		payload, valid := seed[i]

		block, err := encodeDataBlock(stamps[i], valid, payload)
		require.NoError(t, err, "encodeDataBlock %d", i)

		buf = append(buf, block...)
	}

	require.NoError(t, os.WriteFile(path, buf, 0o644), "writing image")

	return path
}

// bindTestEngine binds an image through bindEngine directly, with a
// deterministic clock starting at start.
func bindTestEngine(t *testing.T, path string, start uint64) *Engine {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err, "opening image")

	t.Cleanup(func() { _ = f.Close() })

	var c atomic.Uint64

	c.Store(start)

	e, err := bindEngine(f, Options{Clock: func() uint64 { return c.Add(1) }})
	require.NoError(t, err, "bindEngine")

	return e
}

// Scenario 5: a streaming reader pauses right after selecting its next node
// while a writer invalidates that block and appends elsewhere. The reader
// must still deliver the selected payload in full (invalidation rewrites
// only the header bytes), and its following step must pick up from the
// reader's own stamp, not from the mutated index.
func Test_ConcurrentReadVsInvalidate_PausedReaderStillDeliversPayload(t *testing.T) {
	path := writeTestImage(t, 10,
		map[uint64][]byte{5: []byte("five"), 9: []byte("nine")},
		map[uint64]uint64{5: 50, 9: 100})
	e := bindTestEngine(t, path, 1000)

	// The paused reader: selected the node for block 5, not yet copied it.
	snap := e.index.Snapshot()

	node, ok := findNextAfter(snap, 0)
	require.True(t, ok, "expected a first node")
	require.Equal(t, uint64(5), node.blockIndex)

	// The writer runs a full invalidate + append meanwhile.
	require.NoError(t, e.Invalidate(5), "Invalidate")

	_, err := e.Append([]byte("appended later"))
	require.NoError(t, err, "Append")

	// Reader resumes: the payload bytes of block 5 are untouched on disk.
	block, err := e.store.readBlock(dataBlockOffset + node.blockIndex)
	require.NoError(t, err, "readBlock")
	assert.Equal(t, "five", string(block[HeaderSize:HeaderSize+int(node.validBytes)]))

	// Its next step from stamp 50 lands on block 9 (stamp 100).
	buf := make([]byte, 16)

	n, nextNsec, found, err := e.next(node.nsec, buf)
	require.NoError(t, err, "next")
	require.True(t, found, "expected block 9 after stamp 50")
	assert.Equal(t, "nine", string(buf[:n]))
	assert.Equal(t, uint64(100), nextNsec)
}

func Test_Invalidate_RewritesHeaderButPreservesPayloadOnDisk(t *testing.T) {
	path := writeTestImage(t, 3,
		map[uint64][]byte{1: []byte("keepsake")},
		map[uint64]uint64{1: 7})
	e := bindTestEngine(t, path, 100)

	require.NoError(t, e.Invalidate(1), "Invalidate")

	block, err := e.store.readBlock(dataBlockOffset + 1)
	require.NoError(t, err, "readBlock")

	nsec, isValid, validBytes := decodeHeader(block)
	assert.False(t, isValid, "header must say invalid")
	assert.Zero(t, nsec)
	assert.Zero(t, validBytes)
	assert.Equal(t, "keepsake", string(block[HeaderSize:HeaderSize+8]),
		"payload bytes must survive the header rewrite")
}

func Test_Bind_SetsRotorHint_ToTailOfIndex(t *testing.T) {
	path := writeTestImage(t, 8,
		map[uint64][]byte{2: []byte("a"), 6: []byte("b")},
		map[uint64]uint64{2: 300, 6: 200})
	e := bindTestEngine(t, path, 1000)

	// Tail of the index is the newest stamp: block 2.
	assert.Equal(t, uint64(2), e.lastWritten)
}

func Test_Bind_SetsRotorHint_ToLastBlockWhenEmpty(t *testing.T) {
	path := writeTestImage(t, 5, nil, nil)
	e := bindTestEngine(t, path, 1)

	require.Equal(t, uint64(4), e.lastWritten)

	// So the first allocation probes block 0.
	idx, err := e.Append([]byte("first"))
	require.NoError(t, err, "Append")
	assert.Equal(t, uint64(0), idx)
}
