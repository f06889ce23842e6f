package plugin

import (
	"github.com/linjianyan0229/linbot2/pkg/logger"
	"github.com/linjianyan0229/linbot2/pkg/onebot"
)

// Context carries the runtime resources a plugin may use: the protocol
// caller for sending actions, a snapshot of its settings, its private data
// directory and a logger named after the plugin.
type Context struct {
	// Caller invokes protocol actions on behalf of the plugin.
	Caller onebot.Caller
	// Settings is a snapshot of the plugin's configuration at enable
	// time. Mutations are not written back; use OnConfigUpdate to pick
	// up changes.
	Settings map[string]interface{}
	// DataDir is the plugin's private directory under the plugins root.
	DataDir string
	// Logger is scoped to the plugin.
	Logger logger.Logger
}

// Setting returns the value for key and whether it was present.
func (c *Context) Setting(key string) (interface{}, bool) {
	v, ok := c.Settings[key]
	return v, ok
}

// SettingString returns the string value for key, or fallback when the key
// is absent or not a string.
func (c *Context) SettingString(key, fallback string) string {
	if v, ok := c.Settings[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// SettingBool returns the bool value for key, or fallback.
func (c *Context) SettingBool(key string, fallback bool) bool {
	if v, ok := c.Settings[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// SettingInt returns the int value for key, or fallback. YAML decoding may
// produce either int or int64.
func (c *Context) SettingInt(key string, fallback int) int {
	if v, ok := c.Settings[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return fallback
}
