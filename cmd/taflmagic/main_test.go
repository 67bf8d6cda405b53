package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailam/taflmagic/internal/config"
	"github.com/hailam/taflmagic/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Board:  config.BoardConfig{Width: 5, Height: 5, Restricted: true},
		Build:  config.BuildConfig{Workers: 2, Seed: 99, Policy: "relaxed", Verify: true},
		Output: config.OutputConfig{Path: filepath.Join(t.TempDir(), "tafl5.json.zst"), Name: "tafl5"},
		Log:    config.LogConfig{Level: "error", Format: "console"},
	}
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func TestCheckFileUsesRecordedRestrictedSquares(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, run(context.Background(), cfg))

	// checkFile takes no board settings; the file alone decides the oracle.
	require.NoError(t, checkFile(cfg.Output.Path))
}

func TestCheckFileMissing(t *testing.T) {
	assert.Error(t, checkFile(filepath.Join(t.TempDir(), "missing.json")))
}

func TestOutputPathDefaultsToTableDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg := testConfig(t)
	path, err := outputPath(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Output.Path, path)

	cfg.Output.Path = ""
	path, err = outputPath(cfg)
	require.NoError(t, err)
	dir, err := storage.GetTableDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tafl5.json.zst"), path)

	require.NoError(t, run(context.Background(), cfg))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
