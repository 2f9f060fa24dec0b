package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Thresholds(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5*time.Minute, cfg.Daemon.IdleThreshold.Std())
	assert.Equal(t, 30*time.Minute, cfg.Daemon.SleepThreshold.Std())
	assert.Equal(t, 2*time.Hour, cfg.Daemon.DeepSleepThreshold.Std())
	assert.Equal(t, 30*time.Second, cfg.Daemon.ActiveInterval.Std())
	assert.Equal(t, 5*time.Minute, cfg.Daemon.SleepInterval.Std())
	assert.Equal(t, 384, cfg.Vector.Dimensions)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Daemon.BatchLimit, cfg.Daemon.BatchLimit)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	yaml := `
data_dir: /tmp/recall-test
daemon:
  idle_threshold: 2m
  active_interval: 10s
  workers: 4
vector:
  dimensions: 512
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/recall-test", cfg.DataDir)
	assert.Equal(t, 2*time.Minute, cfg.Daemon.IdleThreshold.Std())
	assert.Equal(t, 10*time.Second, cfg.Daemon.ActiveInterval.Std())
	assert.Equal(t, 4, cfg.Daemon.Workers)
	assert.Equal(t, 512, cfg.Vector.Dimensions)
	// Untouched fields keep their defaults.
	assert.Equal(t, 30*time.Minute, cfg.Daemon.SleepThreshold.Std())
	assert.Equal(t, 16, cfg.Vector.MaxNeighbors)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("daemon:\n  idle_threshold: soon\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_ThresholdOrderingValidated(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	yaml := "daemon:\n  idle_threshold: 1h\n  sleep_threshold: 30m\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idle_threshold")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RECALL_DATA_DIR", "/tmp/env-recall")
	t.Setenv("RECALL_MODEL", "claude-test-model")
	t.Setenv("RECALL_API_KEY", "sk-recall")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env-recall", cfg.DataDir)
	assert.Equal(t, "claude-test-model", cfg.Summarizer.Model)
	assert.Equal(t, "sk-recall", cfg.Summarizer.APIKey)
}

func TestLoad_AnthropicKeyFallback(t *testing.T) {
	t.Setenv("RECALL_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sk-anthropic", cfg.Summarizer.APIKey)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ConfigFile)

	original := Default()
	original.DataDir = "/tmp/round-trip"
	original.Daemon.Workers = 7
	original.Retrieval.RecencyHalfLife = Duration(48 * time.Hour)
	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/round-trip", loaded.DataDir)
	assert.Equal(t, 7, loaded.Daemon.Workers)
	assert.Equal(t, 48*time.Hour, loaded.Retrieval.RecencyHalfLife.Std())
}
