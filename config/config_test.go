package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("server:\n  port: \":9090\"\nservices:\n  segmentation: http://seg:8188\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, "http://seg:8188", cfg.Services.Segmentation)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Services.Blend)
	assert.Equal(t, 0.92, cfg.Editor.Threshold)
	assert.Equal(t, 0.5, cfg.Editor.OverlayScale)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, time.Duration(0), cfg.Services.Timeout)
	assert.Equal(t, 4096.0, cfg.Editor.MaxDisplay)
	assert.Equal(t, 2*time.Hour, cfg.Editor.SessionTTL)
}

func TestLoadRejectsBadEditorLimits(t *testing.T) {
	for _, body := range []string{
		"editor:\n  max_display: 0\n",
		"editor:\n  session_ttl: -1m\n",
	} {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		_, err := Load(path)
		assert.Error(t, err, body)
	}
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("editor:\n  threshold: 1.5\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
