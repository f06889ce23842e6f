package config

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/linjianyan0229/linbot2/pkg/errors"
)

// Settings is the free-form key/value configuration owned by one plugin.
// It persists as a YAML map under the plugin's directory.
type Settings struct {
	mu     sync.RWMutex
	path   string
	values map[string]interface{}
}

// LoadSettings reads the settings file for a plugin, returning empty
// settings when the file does not exist yet.
func LoadSettings(pluginsDir, pluginName string) (*Settings, error) {
	s := &Settings{
		path:   filepath.Join(pluginsDir, pluginName, "settings.yaml"),
		values: make(map[string]interface{}),
	}

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &s.values); err != nil {
			return nil, errors.ErrConfigError("parse settings for plugin "+pluginName, err)
		}
	case os.IsNotExist(err):
		// fresh plugin
	default:
		return nil, errors.ErrConfigError("read settings for plugin "+pluginName, err)
	}
	return s, nil
}

// Get returns the value for key and whether it was present.
func (s *Settings) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the string value for key, or fallback.
func (s *Settings) GetString(key, fallback string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return fallback
}

// Set stores a value. It does not persist until Save is called.
func (s *Settings) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Snapshot returns a copy of all values for handing to a plugin context.
func (s *Settings) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Save writes the settings back to disk.
func (s *Settings) Save() error {
	s.mu.RLock()
	data, err := yaml.Marshal(s.values)
	s.mu.RUnlock()
	if err != nil {
		return errors.ErrConfigError("serialize settings", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.ErrConfigError("create settings directory", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.ErrConfigError("write settings", err)
	}
	return nil
}
