package cliconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bldms.dev/bldms/internal/cliconfig"
	"bldms.dev/bldms/pkg/bldms"
)

func Test_Load_ParsesJSONCWithComments(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bldms.jsonc")

	content := `{
	// deployment overrides
	"max_blocks": 128,
	"writeback": "sync", // flush on every append
	"audit": true,
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := cliconfig.Load(path)
	require.NoError(t, err, "Load")

	opts, err := cfg.EngineOptions()
	require.NoError(t, err, "EngineOptions")

	assert.Equal(t, 128, opts.MaxBlocks)
	assert.Equal(t, bldms.WritebackSync, opts.Writeback)
	assert.NotNil(t, opts.Audit)
}

func Test_Load_EmptyPathYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := cliconfig.Load("")
	require.NoError(t, err, "Load")

	opts, err := cfg.EngineOptions()
	require.NoError(t, err, "EngineOptions")

	assert.Zero(t, opts.MaxBlocks)
	assert.Equal(t, bldms.WritebackNone, opts.Writeback)
	assert.Nil(t, opts.Audit)
}

func Test_EngineOptions_RejectsUnknownWritebackMode(t *testing.T) {
	t.Parallel()

	cfg := cliconfig.Config{Writeback: "eventually"}

	_, err := cfg.EngineOptions()
	require.Error(t, err)
}
