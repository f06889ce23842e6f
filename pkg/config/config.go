// Package config holds the runtime configuration for the bot and its plugin
// system. Configuration lives in a YAML file; LINBOT_-prefixed environment
// variables override individual fields.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/linjianyan0229/linbot2/pkg/errors"
)

// Config is the root configuration.
type Config struct {
	// CommandPrefix introduces a command invocation, e.g. "/".
	CommandPrefix string `yaml:"command_prefix" envconfig:"COMMAND_PREFIX"`
	// PluginsDir is the directory scanned for plugin artifacts.
	PluginsDir string `yaml:"plugins_dir" envconfig:"PLUGINS_DIR"`
	// Enabled toggles the whole plugin system.
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	// MaxPlugins bounds the number of simultaneously loaded plugins.
	MaxPlugins int `yaml:"max_plugins" envconfig:"MAX_PLUGINS"`
	// SuperUsers are user IDs granted the SuperUser permission level.
	SuperUsers []int64 `yaml:"super_users" envconfig:"SUPER_USERS"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	Security    Security    `yaml:"security"`
	Performance Performance `yaml:"performance"`
}

// Security configures the plugin sandbox.
type Security struct {
	// EnableSandbox turns filesystem/network/resource checks on.
	EnableSandbox bool `yaml:"enable_sandbox" envconfig:"SECURITY_ENABLE_SANDBOX"`
	// AllowedPaths are filesystem prefixes plugins may touch. Empty means
	// no prefix restriction beyond the deny list.
	AllowedPaths []string `yaml:"allowed_paths"`
	// DeniedPaths are filesystem prefixes plugins may never touch.
	DeniedPaths []string `yaml:"denied_paths"`
	// AllowNetwork enables outbound network access for plugins.
	AllowNetwork bool `yaml:"allow_network" envconfig:"SECURITY_ALLOW_NETWORK"`
	// AllowedDomains restricts network access to these domains and their
	// subdomains when non-empty.
	AllowedDomains []string `yaml:"allowed_domains"`
	// MaxMemoryMB is the per-plugin memory ceiling.
	MaxMemoryMB int `yaml:"max_memory_mb" envconfig:"SECURITY_MAX_MEMORY_MB"`
	// MaxCPUPercent is the per-plugin CPU ceiling.
	MaxCPUPercent float64 `yaml:"max_cpu_percent" envconfig:"SECURITY_MAX_CPU_PERCENT"`
}

// Performance configures dispatch workers and lifecycle timeouts.
type Performance struct {
	// Workers is the number of concurrent event dispatch workers.
	Workers int `yaml:"workers" envconfig:"PERF_WORKERS"`
	// QueueSize bounds the inbound event queue.
	QueueSize int `yaml:"queue_size" envconfig:"PERF_QUEUE_SIZE"`
	// StartupTimeoutSec bounds a plugin's init+start hooks.
	StartupTimeoutSec int `yaml:"startup_timeout" envconfig:"PERF_STARTUP_TIMEOUT"`
	// ShutdownTimeoutSec bounds a plugin's stop hook.
	ShutdownTimeoutSec int `yaml:"shutdown_timeout" envconfig:"PERF_SHUTDOWN_TIMEOUT"`
	// StatsIntervalSec is the resource sampling interval.
	StatsIntervalSec int `yaml:"stats_interval" envconfig:"PERF_STATS_INTERVAL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CommandPrefix: "/",
		PluginsDir:    "plugins",
		Enabled:       true,
		MaxPlugins:    50,
		LogLevel:      "info",
		Security: Security{
			EnableSandbox: true,
			AllowedPaths:  []string{"plugins/", "data/", "temp/"},
			DeniedPaths:   []string{"config/", "system/"},
			AllowNetwork:  true,
			MaxMemoryMB:   256,
			MaxCPUPercent: 50.0,
		},
		Performance: Performance{
			Workers:            runtime.NumCPU(),
			QueueSize:          1000,
			StartupTimeoutSec:  30,
			ShutdownTimeoutSec: 10,
			StatsIntervalSec:   60,
		},
	}
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. A missing file yields defaults (still subject
// to overrides).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ErrConfigError("parse "+path, err)
		}
	case os.IsNotExist(err):
		// defaults
	default:
		return nil, errors.ErrConfigError("read "+path, err)
	}

	if err := envconfig.Process("LINBOT", cfg); err != nil {
		return nil, errors.ErrConfigError("apply environment overrides", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.ErrConfigError("create config directory", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.ErrConfigError("serialize config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.ErrConfigError("write "+path, err)
	}
	return nil
}

// Validate checks invariants and reports the first violated constraint.
func (c *Config) Validate() error {
	if c.CommandPrefix == "" {
		return errors.ErrConfigError("command_prefix must not be empty", nil)
	}
	if c.MaxPlugins <= 0 {
		return errors.ErrConfigError("max_plugins must be positive", nil)
	}
	if c.Security.MaxMemoryMB <= 0 {
		return errors.ErrConfigError("security.max_memory_mb must be positive", nil)
	}
	if c.Security.MaxCPUPercent <= 0 || c.Security.MaxCPUPercent > 100 {
		return errors.ErrConfigError("security.max_cpu_percent must be in (0, 100]", nil)
	}
	if c.Performance.Workers <= 0 {
		return errors.ErrConfigError("performance.workers must be positive", nil)
	}
	if c.Performance.QueueSize <= 0 {
		return errors.ErrConfigError("performance.queue_size must be positive", nil)
	}
	return nil
}

// IsSuperUser reports whether userID is in the configured super-user list.
func (c *Config) IsSuperUser(userID int64) bool {
	for _, id := range c.SuperUsers {
		if id == userID {
			return true
		}
	}
	return false
}
