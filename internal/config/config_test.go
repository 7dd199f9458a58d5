package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 1000, cfg.Tuning.SoftLimit)
	assert.Equal(t, 2000, cfg.Tuning.HardLimit)
	assert.Equal(t, 0.90, cfg.Tuning.DuplicateThreshold)
	assert.Equal(t, 0.01, cfg.Tuning.DecayRate)
	assert.Equal(t, 30, cfg.Tuning.DecayAfterDays)
	assert.Equal(t, 5, cfg.Tuning.MaxAutoLinks)
	assert.Equal(t, 0.70, cfg.Tuning.ConflictLow)
	assert.Equal(t, 0.85, cfg.Tuning.ConflictHigh)
	assert.Equal(t, 90, cfg.Tuning.TemporaryTTLDays)
	assert.Equal(t, 365, cfg.Tuning.SeasonalTTLDays)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.yaml")
	data := []byte(`
storage:
  engine: postgres
  postgres_dsn: postgres://localhost/engram
tuning:
  soft_limit: 500
  hard_limit: 800
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "postgres://localhost/engram", cfg.Storage.PostgresDSN)
	assert.Equal(t, 500, cfg.Tuning.SoftLimit)
	assert.Equal(t, 800, cfg.Tuning.HardLimit)
	// Untouched settings keep their defaults.
	assert.Equal(t, 0.90, cfg.Tuning.DuplicateThreshold)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  engine: postgres\n"), 0o644))

	t.Setenv("ENGRAM_STORAGE_ENGINE", "mongo")
	t.Setenv("ENGRAM_DECAY_RATE", "0.05")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.Storage.Engine)
	assert.Equal(t, 0.05, cfg.Tuning.DecayRate)
}

func TestValidateRejectsInvertedLimits(t *testing.T) {
	cfg := Default()
	cfg.Tuning.HardLimit = 100
	cfg.Tuning.SoftLimit = 200
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Tuning.ConflictHigh = 0.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Embedding.Dimension = 0
	assert.Error(t, cfg.Validate())
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("ENGRAM_SOFT_LIMIT", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Tuning.SoftLimit)
}
