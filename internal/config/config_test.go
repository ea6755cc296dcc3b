package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
	assert.Equal(t, "./shipments.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 14*24*time.Hour, cfg.Gmail.Lookback)
	assert.Equal(t, "gemini-1.5-flash", cfg.Gemini.Model)
	assert.False(t, cfg.Gemini.Enabled(), "no API key means generative extraction is off")
	assert.Equal(t, 2, cfg.Heuristics.PrefilterMinMatches)
	assert.Equal(t, 14*24*time.Hour, cfg.AgeDelivered())
	assert.Equal(t, 7*24*time.Hour, cfg.AgeInTransit())
	assert.True(t, cfg.Sweep.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
gemini:
  api_key: test-key
  max_per_minute: 5
heuristics:
  delivered_after_days: 21
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Gemini.Enabled())
	assert.Equal(t, 5, cfg.Gemini.MaxPerMinute)
	assert.Equal(t, 21*24*time.Hour, cfg.AgeDelivered())
	assert.Equal(t, "localhost", cfg.Server.Host, "defaults survive partial files")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SHIPTRACK_SERVER_PORT", "7070")
	t.Setenv("SHIPTRACK_GEMINI_API_KEY", "env-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Gemini.APIKey)
}

func TestLoadValidation(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		t.Setenv("SHIPTRACK_SERVER_PORT", "0")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("inverted age thresholds", func(t *testing.T) {
		t.Setenv("SHIPTRACK_HEURISTICS_IN_TRANSIT_AFTER_DAYS", "30")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := Load("/nonexistent/config.yaml")
		assert.Error(t, err)
	})
}
