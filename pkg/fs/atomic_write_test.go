package fs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bldms.dev/bldms/pkg/fs"
)

func Test_AtomicWriter_WritesContentDurably(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "image.bldms")
	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.Write(path, strings.NewReader("block data"), writer.DefaultOptions())
	require.NoError(t, err, "Write")

	got, err := os.ReadFile(path)
	require.NoError(t, err, "ReadFile")
	assert.Equal(t, "block data", string(got))

	// No temp files may survive a successful write.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "ReadDir")
	require.Len(t, entries, 1)
	assert.Equal(t, "image.bldms", entries[0].Name())
}

func Test_AtomicWriter_ReplacesExistingFileCompletely(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "image.bldms")

	require.NoError(t, os.WriteFile(path, []byte("old old old old"), 0o644))

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.Write(path, strings.NewReader("new"), writer.DefaultOptions())
	require.NoError(t, err, "Write")

	got, err := os.ReadFile(path)
	require.NoError(t, err, "ReadFile")
	assert.Equal(t, "new", string(got), "no remnant of the old content")
}

func Test_AtomicWriter_RejectsZeroPerm(t *testing.T) {
	t.Parallel()

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.Write(filepath.Join(t.TempDir(), "x"), strings.NewReader("y"),
		fs.AtomicWriteOptions{SyncDir: true})
	require.Error(t, err, "zero Perm must be rejected")
}
