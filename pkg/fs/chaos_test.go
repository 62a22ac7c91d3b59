package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bldms.dev/bldms/pkg/fs"
)

func chaosFixture(t *testing.T, cfg fs.ChaosConfig) (*fs.Chaos, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "image.bldms")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	return fs.NewChaos(fs.NewReal(), 1, &cfg), path
}

func Test_Chaos_InjectsReadAtFailures_AndCountsThem(t *testing.T) {
	t.Parallel()

	chaos, path := chaosFixture(t, fs.ChaosConfig{ReadFailRate: 1.0})
	chaos.SetMode(fs.ChaosModeNoOp)

	f, err := chaos.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err, "open under NoOp")

	defer f.Close()

	chaos.SetMode(fs.ChaosModeActive)

	_, err = f.ReadAt(make([]byte, 16), 0)
	require.Error(t, err, "ReadAt with rate 1.0")
	assert.True(t, fs.IsChaosErr(err), "injected error must be identifiable")
	assert.Equal(t, int64(1), chaos.Stats().ReadFails)
}

func Test_Chaos_NoOpMode_PassesThrough(t *testing.T) {
	t.Parallel()

	chaos, path := chaosFixture(t, fs.ChaosConfig{
		ReadFailRate:  1.0,
		WriteFailRate: 1.0,
		SyncFailRate:  1.0,
	})
	chaos.SetMode(fs.ChaosModeNoOp)

	f, err := chaos.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err, "OpenFile")

	defer f.Close()

	_, err = f.WriteAt([]byte("data"), 0)
	require.NoError(t, err, "WriteAt under NoOp")

	require.NoError(t, f.Sync(), "Sync under NoOp")

	buf := make([]byte, 4)

	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err, "ReadAt under NoOp")
	assert.Equal(t, "data", string(buf))

	assert.Zero(t, chaos.TotalFaults(), "NoOp must not count faults")
}

func Test_Chaos_PartialReadAt_MakesProgressWithoutError(t *testing.T) {
	t.Parallel()

	chaos, path := chaosFixture(t, fs.ChaosConfig{PartialReadRate: 1.0})

	f, err := chaos.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err, "OpenFile")

	defer f.Close()

	// Every ReadAt is shortened but still makes progress, so a read loop
	// (like the engine's block reader) terminates with the full block.
	total := 0
	buf := make([]byte, 64)

	for total < len(buf) {
		n, err := f.ReadAt(buf[total:], int64(total))
		require.NoError(t, err, "short ReadAt is not an error")
		require.Positive(t, n, "short ReadAt must make progress")

		total += n
	}

	assert.Positive(t, chaos.Stats().PartialReads)
}

func Test_Chaos_InjectedOpenFailure_IsRealLookingPathError(t *testing.T) {
	t.Parallel()

	chaos, path := chaosFixture(t, fs.ChaosConfig{OpenFailRate: 1.0})

	_, err := chaos.OpenFile(path, os.O_RDWR, 0)
	require.Error(t, err, "open with rate 1.0")
	assert.True(t, fs.IsChaosErr(err))
	assert.False(t, os.IsNotExist(err), "chaos never injects ENOENT")
	assert.Equal(t, int64(1), chaos.Stats().OpenFails)
}
