package bldms_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bldms.dev/bldms/pkg/bldms"
	"bldms.dev/bldms/pkg/bldmsfmt"
	"bldms.dev/bldms/pkg/fs"
)

// chaosBind formats a fresh image via the real filesystem, then binds it
// through a [fs.Chaos] wrapper preconfigured with cfg but parked in
// [fs.ChaosModeNoOp] so Bind itself always succeeds; tests flip the mode to
// [fs.ChaosModeActive] once bound to trigger the preconfigured fault on the
// specific call under test.
func chaosBind(t *testing.T, numBlocks uint64, cfg fs.ChaosConfig, opts bldms.Options) (*fs.Chaos, *bldms.Binder, *bldms.Engine) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "image.bldms")
	real := fs.NewReal()

	err := bldmsfmt.Format(real, path, bldmsfmt.Options{NumBlocks: numBlocks})
	require.NoError(t, err, "Format")

	chaos := fs.NewChaos(real, 1, &cfg)
	chaos.SetMode(fs.ChaosModeNoOp)

	binder := bldms.NewBinder(chaos)

	if opts.Clock == nil {
		opts.Clock = testClock()
	}

	engine, err := binder.Bind(path, opts)
	require.NoError(t, err, "Bind")

	t.Cleanup(func() { _ = binder.Unbind() })

	return chaos, binder, engine
}

func Test_Append_PropagatesErrIoError_OnWriteFailure(t *testing.T) {
	chaos, _, engine := chaosBind(t, 4, fs.ChaosConfig{WriteFailRate: 1.0}, bldms.Options{})

	chaos.SetMode(fs.ChaosModeActive)

	_, err := engine.Append([]byte("x"))
	require.ErrorIs(t, err, bldms.ErrIoError)
}

func Test_ReadBlock_PropagatesErrIoError_OnReadFailure(t *testing.T) {
	chaos, _, engine := chaosBind(t, 4, fs.ChaosConfig{ReadFailRate: 1.0}, bldms.Options{})

	chaos.SetMode(fs.ChaosModeNoOp)

	idx, err := engine.Append([]byte("y"))
	require.NoError(t, err, "Append")

	chaos.SetMode(fs.ChaosModeActive)

	buf := make([]byte, 8)

	_, err = engine.ReadBlock(idx, buf)
	require.ErrorIs(t, err, bldms.ErrIoError)
}

func Test_Append_SynchronousWriteback_PropagatesErrIoError_OnSyncFailure(t *testing.T) {
	chaos, _, engine := chaosBind(t, 4, fs.ChaosConfig{SyncFailRate: 1.0}, bldms.Options{Writeback: bldms.WritebackSync})

	chaos.SetMode(fs.ChaosModeActive)

	_, err := engine.Append([]byte("z"))
	require.ErrorIs(t, err, bldms.ErrIoError, "failed sync must surface as ErrIoError")
}
