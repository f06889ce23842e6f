package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "/", cfg.CommandPrefix)
		assert.Equal(t, "plugins", cfg.PluginsDir)
		assert.True(t, cfg.Security.EnableSandbox)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "linbot.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
command_prefix: "!"
super_users: [1000, 2000]
security:
  max_memory_mb: 128
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "!", cfg.CommandPrefix)
		assert.Equal(t, []int64{1000, 2000}, cfg.SuperUsers)
		assert.Equal(t, 128, cfg.Security.MaxMemoryMB)
		assert.Equal(t, 50, cfg.MaxPlugins, "untouched fields keep defaults")
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("LINBOT_COMMAND_PREFIX", "#")
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "#", cfg.CommandPrefix)
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("command_prefix: ["), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty prefix", func(c *Config) { c.CommandPrefix = "" }},
		{"zero max plugins", func(c *Config) { c.MaxPlugins = 0 }},
		{"zero memory", func(c *Config) { c.Security.MaxMemoryMB = 0 }},
		{"cpu over 100", func(c *Config) { c.Security.MaxCPUPercent = 150 }},
		{"zero workers", func(c *Config) { c.Performance.Workers = 0 }},
		{"zero queue", func(c *Config) { c.Performance.QueueSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "linbot.yaml")
	cfg := Default()
	cfg.CommandPrefix = "!"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "!", loaded.CommandPrefix)
}

func TestIsSuperUser(t *testing.T) {
	cfg := Default()
	cfg.SuperUsers = []int64{7}
	assert.True(t, cfg.IsSuperUser(7))
	assert.False(t, cfg.IsSuperUser(8))
}

func TestSettings(t *testing.T) {
	dir := t.TempDir()

	t.Run("fresh plugin starts empty", func(t *testing.T) {
		s, err := LoadSettings(dir, "demo")
		require.NoError(t, err)
		_, ok := s.Get("anything")
		assert.False(t, ok)
	})

	t.Run("set save load", func(t *testing.T) {
		s, err := LoadSettings(dir, "demo")
		require.NoError(t, err)
		s.Set("greeting", "hello")
		s.Set("limit", 3)
		require.NoError(t, s.Save())

		again, err := LoadSettings(dir, "demo")
		require.NoError(t, err)
		assert.Equal(t, "hello", again.GetString("greeting", ""))
		v, ok := again.Get("limit")
		require.True(t, ok)
		assert.EqualValues(t, 3, v)
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		s, err := LoadSettings(dir, "other")
		require.NoError(t, err)
		s.Set("k", "v")
		snap := s.Snapshot()
		snap["k"] = "mutated"
		assert.Equal(t, "v", s.GetString("k", ""))
	})
}
