package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, "", func(cfg *Config, err error) {
		if err == nil {
			reloaded <- cfg
		}
	})
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 0, w.Snapshot().Presentation.TopK)

	updated := minimalYAML + "presentation:\n  top_k: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 2, cfg.Presentation.TopK)
		assert.Equal(t, 2, w.Snapshot().Presentation.TopK)
		assert.GreaterOrEqual(t, w.ReloadCount(), uint32(1))
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestNewWatcher_InitialLoadError(t *testing.T) {
	_, err := NewWatcher(writeConfig(t, "version: \"2\"\n"), "", nil)
	assert.Error(t, err)
}
