package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/grouphub/pkg/grouphub/config"
)

func TestConfigAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":     "hub",
		"timeout":  "45s",
		"seconds":  10,
		"fraction": 1.5,
		"workers":  float64(4),
		"ratio":    2.5,
		"enabled":  true,
		"section":  map[string]any{"addr": ":8080"},
	})

	assert.Equal(t, "hub", cfg.String("name", "x"))
	assert.Equal(t, "x", cfg.String("missing", "x"))
	assert.Equal(t, "x", cfg.String("enabled", "x"))

	assert.Equal(t, 45*time.Second, cfg.Duration("timeout", time.Second))
	assert.Equal(t, 10*time.Second, cfg.Duration("seconds", time.Second))
	assert.Equal(t, 1500*time.Millisecond, cfg.Duration("fraction", time.Second))
	assert.Equal(t, time.Second, cfg.Duration("name", time.Second))

	assert.Equal(t, 4, cfg.Int("workers", 1))
	assert.Equal(t, 1, cfg.Int("ratio", 1), "fractional floats are rejected")
	assert.True(t, cfg.Bool("enabled", false))
	assert.True(t, cfg.Has("name"))
	assert.False(t, cfg.Has("missing"))

	assert.Equal(t, ":8080", cfg.Section("section").String("addr", ""))
	assert.Equal(t, "d", cfg.Section("name").String("addr", "d"))
}

func TestNewNilMap(t *testing.T) {
	cfg := config.New(nil)
	assert.False(t, cfg.Has("anything"))
	assert.Equal(t, 3, cfg.Int("anything", 3))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "c.yaml")
		require.NoError(t, os.WriteFile(path, []byte("bus:\n  workers: 8\n  listener_timeout: 5s\n"), 0o600))

		cfg, err := config.FromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Section("bus").Int("workers", 0))
		assert.Equal(t, 5*time.Second, cfg.Section("bus").Duration("listener_timeout", 0))
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "c.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"server":{"addr":":7000"}}`), 0o600))

		cfg, err := config.FromFile(path)
		require.NoError(t, err)
		assert.Equal(t, ":7000", cfg.Section("server").String("addr", ""))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "c.toml")
		require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o600))
		_, err := config.FromFile(path)
		assert.ErrorContains(t, err, "unsupported")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := config.FromFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := config.FromYAML([]byte("a: [unclosed"))
		assert.Error(t, err)
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("GROUPHUB_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("GROUPHUB_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("GROUPHUB_TEST_DOTENV"))

	require.NoError(t, config.LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("GROUPHUB_TEST_DOTENV"))

	t.Run("existing variables win", func(t *testing.T) {
		t.Setenv("GROUPHUB_TEST_DOTENV", "from-env")
		require.NoError(t, config.LoadDotEnv(path))
		assert.Equal(t, "from-env", os.Getenv("GROUPHUB_TEST_DOTENV"))
	})

	t.Run("missing file ignored", func(t *testing.T) {
		assert.NoError(t, config.LoadDotEnv(filepath.Join(dir, "absent.env")))
	})
}
