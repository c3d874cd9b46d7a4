package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/leafsight/internal/config"
	"github.com/ekisa-team/leafsight/internal/envvar"
)

func TestWatchConfig_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv(envvar.LeafsightModelPath, "/srv/models/tomato.onnx")

	cfg, stop, err := watchConfig(filepath.Join(t.TempDir(), "absent.yaml"), "", func(*config.Config, error) {
		t.Error("nothing is watched without a config file")
	})
	require.NoError(t, err)
	assert.NoError(t, stop())

	assert.Equal(t, "/srv/models/tomato.onnx", cfg.ArtifactPath())
	assert.Equal(t, config.DefaultLabels(), cfg.Model.Labels)
}

func TestWatchConfig_MissingFileWithoutModel(t *testing.T) {
	t.Setenv(envvar.LeafsightModelPath, "")
	t.Setenv(envvar.LeafsightModelURL, "")

	_, _, err := watchConfig(filepath.Join(t.TempDir(), "absent.yaml"), "", nil)
	assert.Error(t, err)
}

func TestWatchConfig_WatchesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\nmodel:\n  path: /srv/models/tomato.onnx\n"), 0o644))

	cfg, stop, err := watchConfig(path, "", func(*config.Config, error) {})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stop() })

	assert.Equal(t, "/srv/models/tomato.onnx", cfg.ArtifactPath())
}
