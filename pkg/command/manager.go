package command

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linjianyan0229/linbot2/pkg/errors"
	"github.com/linjianyan0229/linbot2/pkg/logger"
	"github.com/linjianyan0229/linbot2/pkg/message"
)

// Definition describes a registered command.
type Definition struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Patterns    []Pattern  `yaml:"patterns" json:"patterns"`
	Permission  Permission `yaml:"permission" json:"permission"`
	// Aliases are alternate command words, each matched as a prefix
	// pattern.
	Aliases  []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Examples []string `yaml:"examples,omitempty" json:"examples,omitempty"`
	Category string   `yaml:"category" json:"category"`
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	// Cooldown is the per-user minimum interval between uses.
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"`
	// Priority orders matching; lower values match first.
	Priority int `yaml:"priority" json:"priority"`
	// Plugin is the name of the plugin that registered the command.
	Plugin string `yaml:"plugin,omitempty" json:"plugin,omitempty"`
}

// NewDefinition creates a definition with the usual defaults: enabled,
// category "default", priority 100.
func NewDefinition(name string) Definition {
	return Definition{
		Name:       name,
		Permission: DefaultPermission(),
		Category:   "default",
		Enabled:    true,
		Priority:   100,
	}
}

// Manager holds the command registry and matches inbound messages against
// it.
type Manager struct {
	mu         sync.RWMutex
	prefix     string
	commands   map[string]Definition
	cooldowns  map[string]time.Time
	superUsers SuperUserChecker
	logger     logger.Logger

	// now is swapped out by tests.
	now func() time.Time
}

// NewManager creates a command manager with the given invocation prefix.
func NewManager(prefix string, superUsers SuperUserChecker, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Manager{
		prefix:     prefix,
		commands:   make(map[string]Definition),
		cooldowns:  make(map[string]time.Time),
		superUsers: superUsers,
		logger:     log.Named("commands"),
		now:        time.Now,
	}
}

// Prefix returns the invocation prefix.
func (m *Manager) Prefix() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefix
}

// SetPrefix changes the invocation prefix.
func (m *Manager) SetPrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefix = prefix
}

// Register adds a command. Registering an existing name fails.
func (m *Manager) Register(def Definition) error {
	if def.Name == "" {
		return errors.ErrCommandMatch("command name must not be empty", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.commands[def.Name]; exists {
		return errors.ErrAlreadyExists("command " + def.Name)
	}
	m.commands[def.Name] = def
	m.logger.Debug("command registered",
		logger.String("command", def.Name),
		logger.String("plugin", def.Plugin),
		logger.Int("priority", def.Priority))
	return nil
}

// Unregister removes a command by name.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.commands[name]; !exists {
		return errors.ErrNotFound("command " + name)
	}
	delete(m.commands, name)
	return nil
}

// UnregisterPlugin removes every command a plugin registered and returns
// how many were removed.
func (m *Manager) UnregisterPlugin(plugin string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for name, def := range m.commands {
		if def.Plugin == plugin {
			delete(m.commands, name)
			removed++
		}
	}
	return removed
}

// MatchCommand finds the first enabled command the message invokes and the
// sender is authorized to use. Commands are tried in ascending priority
// order; commands still cooling down for this sender are skipped. A nil
// match with nil error means no command matched.
func (m *Manager) MatchCommand(msg *message.Message) (*Match, error) {
	plain := msg.PlainText()

	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := make([]Definition, 0, len(m.commands))
	for _, def := range m.commands {
		if def.Enabled {
			sorted = append(sorted, def)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Name < sorted[j].Name
	})

	for _, def := range sorted {
		if def.Cooldown > 0 {
			key := cooldownKey(def.Name, msg.SenderID())
			if last, ok := m.cooldowns[key]; ok && m.now().Sub(last) < def.Cooldown {
				continue
			}
		}

		patterns := make([]Pattern, 0, len(def.Patterns)+len(def.Aliases))
		patterns = append(patterns, def.Patterns...)
		for _, alias := range def.Aliases {
			patterns = append(patterns, Prefix(alias))
		}

		for _, p := range patterns {
			match, err := p.Match(plain, m.prefix)
			if err != nil {
				return nil, err
			}
			if match == nil {
				continue
			}
			if !def.Permission.Check(msg, m.superUsers) {
				m.logger.Debug("command denied",
					logger.String("command", def.Name),
					logger.Int64("user_id", msg.SenderID()))
				continue
			}
			match.Command = def.Name
			return match, nil
		}
	}
	return nil, nil
}

// RecordUse marks the command as used by the user now, starting its
// cooldown.
func (m *Manager) RecordUse(name string, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[cooldownKey(name, userID)] = m.now()
}

// Get returns the definition for name.
func (m *Manager) Get(name string) (Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.commands[name]
	return def, ok
}

// List returns the enabled commands, optionally filtered by category,
// sorted by name.
func (m *Manager) List(category string) []Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Definition
	for _, def := range m.commands {
		if !def.Enabled {
			continue
		}
		if category != "" && def.Category != category {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Help renders the help text for a command, or "" when unknown.
func (m *Manager) Help(name string) string {
	def, ok := m.Get(name)
	if !ok {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Command: %s\n", def.Name)
	fmt.Fprintf(&b, "Description: %s\n", def.Description)
	if len(def.Aliases) > 0 {
		fmt.Fprintf(&b, "Aliases: %s\n", strings.Join(def.Aliases, ", "))
	}
	if len(def.Examples) > 0 {
		b.WriteString("Examples:\n")
		for _, ex := range def.Examples {
			fmt.Fprintf(&b, "  %s\n", ex)
		}
	}
	return b.String()
}

func cooldownKey(name string, userID int64) string {
	return fmt.Sprintf("%s:%d", name, userID)
}
