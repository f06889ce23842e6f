// Package manager owns the plugin registry and drives plugin lifecycle
// and event dispatch.
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linjianyan0229/linbot2/pkg/command"
	"github.com/linjianyan0229/linbot2/pkg/config"
	"github.com/linjianyan0229/linbot2/pkg/errors"
	"github.com/linjianyan0229/linbot2/pkg/logger"
	"github.com/linjianyan0229/linbot2/pkg/metrics"
	"github.com/linjianyan0229/linbot2/pkg/onebot"
	"github.com/linjianyan0229/linbot2/pkg/plugin"
	"github.com/linjianyan0229/linbot2/pkg/plugin/loader"
	"github.com/linjianyan0229/linbot2/pkg/security"
)

// maxConsecutiveErrors demotes a plugin to the error state once its
// handlers fail this many times in a row.
const maxConsecutiveErrors = 10

// Manager loads, runs and dispatches to plugins.
type Manager struct {
	cfg      *config.Config
	loader   *loader.Loader
	resolver *loader.Resolver
	sandbox  *security.Sandbox
	commands *command.Manager
	caller   onebot.Caller
	logger   logger.Logger
	metrics  metrics.Metrics

	mu        sync.RWMutex
	plugins   map[uuid.UUID]*plugin.Instance
	nameIndex map[string]uuid.UUID

	// consecutive handler failures per plugin id, reset on success.
	errStreak map[uuid.UUID]int
}

// Options bundles the manager's collaborators.
type Options struct {
	Config  *config.Config
	Sandbox *security.Sandbox
	// Commands receives plugin command registrations.
	Commands *command.Manager
	// Caller is handed to plugin contexts for sending actions.
	Caller  onebot.Caller
	Logger  logger.Logger
	Metrics metrics.Metrics
}

// New creates a plugin manager.
func New(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Manager{
		cfg:       opts.Config,
		loader:    loader.New(log),
		resolver:  loader.NewResolver(),
		sandbox:   opts.Sandbox,
		commands:  opts.Commands,
		caller:    opts.Caller,
		logger:    log.Named("plugins"),
		metrics:   m,
		plugins:   make(map[uuid.UUID]*plugin.Instance),
		nameIndex: make(map[string]uuid.UUID),
		errStreak: make(map[uuid.UUID]int),
	}
}

// ScanAndLoad discovers artifacts under the configured plugins directory
// and loads each one. Individual load failures are logged and skipped.
func (m *Manager) ScanAndLoad() error {
	artifacts, err := m.loader.Scan(m.cfg.PluginsDir)
	if err != nil {
		return err
	}
	for _, path := range artifacts {
		if _, err := m.LoadFromFile(path); err != nil {
			m.logger.Error("plugin load failed",
				logger.String("path", path),
				logger.Error(err))
		}
	}
	return nil
}

// LoadFromFile loads one artifact and registers the plugin it provides.
func (m *Manager) LoadFromFile(path string) (uuid.UUID, error) {
	p, err := m.loader.Load(path)
	if err != nil {
		return uuid.Nil, err
	}
	return m.Register(p, path)
}

// Register adds an already-constructed plugin to the registry in the
// loaded state. It validates metadata, rejects duplicate names and
// enforces the plugin count limit.
func (m *Manager) Register(p plugin.Plugin, path string) (uuid.UUID, error) {
	info := p.Info()
	if err := info.Validate(); err != nil {
		return uuid.Nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.nameIndex[info.Name]; exists {
		return uuid.Nil, errors.ErrAlreadyExists("plugin " + info.Name)
	}
	if len(m.plugins) >= m.cfg.MaxPlugins {
		return uuid.Nil, errors.ErrLoadError(fmt.Sprintf("plugin limit %d reached", m.cfg.MaxPlugins), nil)
	}

	inst := plugin.NewInstance(info, path, p)
	inst.SetStatus(plugin.StatusLoaded)
	m.plugins[inst.ID] = inst
	m.nameIndex[info.Name] = inst.ID
	m.resolver.Register(info)

	m.metrics.Counter("plugins_loaded_total").Inc()
	m.logger.Info("plugin registered",
		logger.String("plugin", info.Name),
		logger.String("version", info.Version),
		logger.String("id", inst.ID.String()))
	return inst.ID, nil
}

// Get returns the instance with the given id.
func (m *Manager) Get(id uuid.UUID) (*plugin.Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.plugins[id]
	return inst, ok
}

// GetByName returns the instance with the given plugin name.
func (m *Manager) GetByName(name string) (*plugin.Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.nameIndex[name]
	if !ok {
		return nil, false
	}
	return m.plugins[id], true
}

// List returns all instances sorted by plugin name.
func (m *Manager) List() []*plugin.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*plugin.Instance, 0, len(m.plugins))
	for _, inst := range m.plugins {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.Name < out[j].Info.Name })
	return out
}

// Enable transitions a loaded or paused plugin to running: dependencies
// are verified to be running first, the plugin context is built, and the
// init and start hooks run under the startup timeout. A hook failure
// leaves the plugin in its prior state so enable can be retried.
func (m *Manager) Enable(ctx context.Context, id uuid.UUID) error {
	inst, ok := m.Get(id)
	if !ok {
		return errors.ErrNotFound("plugin " + id.String())
	}

	inst.Lock()
	defer inst.Unlock()

	if inst.Status() == plugin.StatusRunning {
		return nil
	}

	deps, err := m.resolver.Resolve(inst.Info)
	if err != nil {
		return err
	}
	for _, dep := range deps {
		depInst, ok := m.GetByName(dep)
		if !ok || !depInst.IsRunning() {
			return errors.ErrMissingDependency(inst.Info.Name, dep+" (not running)")
		}
	}

	pctx, err := m.buildContext(inst.Info.Name)
	if err != nil {
		return err
	}

	timeout := time.Duration(m.cfg.Performance.StartupTimeoutSec) * time.Second
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// A failing hook leaves the instance in its prior state so the
	// operator can retry enable after fixing the cause.
	if err := inst.Plugin.OnInit(hookCtx, pctx); err != nil {
		m.metrics.Counter("plugin_errors_total", "plugin", inst.Info.Name).Inc()
		return errors.ErrLoadError("init plugin "+inst.Info.Name, err)
	}
	if err := inst.Plugin.OnStart(hookCtx, pctx); err != nil {
		m.metrics.Counter("plugin_errors_total", "plugin", inst.Info.Name).Inc()
		return errors.ErrLoadError("start plugin "+inst.Info.Name, err)
	}

	inst.SetContext(pctx)
	inst.SetStatus(plugin.StatusRunning)
	m.registerCommands(inst)
	if m.sandbox != nil {
		m.sandbox.Monitor().Start(inst.Info.Name)
	}

	m.metrics.Gauge("plugins_running").Inc()
	m.logger.Info("plugin enabled", logger.String("plugin", inst.Info.Name))
	return nil
}

// EnableByName enables the named plugin.
func (m *Manager) EnableByName(ctx context.Context, name string) error {
	inst, ok := m.GetByName(name)
	if !ok {
		return errors.ErrNotFound("plugin " + name)
	}
	return m.Enable(ctx, inst.ID)
}

// EnableAll enables every loaded plugin in dependency order. Failures are
// logged and do not stop the rest.
func (m *Manager) EnableAll(ctx context.Context) {
	for _, inst := range m.enableOrder() {
		if inst.Status() != plugin.StatusLoaded && inst.Status() != plugin.StatusPaused {
			continue
		}
		if err := m.Enable(ctx, inst.ID); err != nil {
			m.logger.Error("plugin enable failed",
				logger.String("plugin", inst.Info.Name),
				logger.Error(err))
		}
	}
}

// enableOrder sorts instances so dependencies come before dependents,
// falling back to name order for unrelated plugins.
func (m *Manager) enableOrder() []*plugin.Instance {
	instances := m.List()
	depth := make(map[string]int, len(instances))
	for _, inst := range instances {
		deps, err := m.resolver.Resolve(inst.Info)
		if err != nil {
			depth[inst.Info.Name] = 0
			continue
		}
		depth[inst.Info.Name] = len(deps)
	}
	sort.SliceStable(instances, func(i, j int) bool {
		return depth[instances[i].Info.Name] < depth[instances[j].Info.Name]
	})
	return instances
}

// Disable stops a running plugin. The plugin ends up paused even when its
// stop hook fails.
func (m *Manager) Disable(ctx context.Context, id uuid.UUID) error {
	inst, ok := m.Get(id)
	if !ok {
		return errors.ErrNotFound("plugin " + id.String())
	}

	inst.Lock()
	defer inst.Unlock()

	if inst.Status() != plugin.StatusRunning {
		return nil
	}

	timeout := time.Duration(m.cfg.Performance.ShutdownTimeoutSec) * time.Second
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := inst.Plugin.OnStop(hookCtx, inst.Context())
	if err != nil {
		m.logger.Warn("plugin stop hook failed",
			logger.String("plugin", inst.Info.Name),
			logger.Error(err))
	}

	m.unregisterCommands(inst)
	if m.sandbox != nil {
		m.sandbox.Monitor().Stop(inst.Info.Name)
	}
	inst.SetStatus(plugin.StatusPaused)

	m.metrics.Gauge("plugins_running").Dec()
	m.logger.Info("plugin disabled", logger.String("plugin", inst.Info.Name))
	return err
}

// Unload removes a plugin from the registry. A running plugin is disabled
// first; the unload hook runs best effort and the plugin is removed even
// when it fails.
func (m *Manager) Unload(ctx context.Context, id uuid.UUID) error {
	inst, ok := m.Get(id)
	if !ok {
		return errors.ErrNotFound("plugin " + id.String())
	}

	if inst.IsRunning() {
		if err := m.Disable(ctx, id); err != nil {
			m.logger.Warn("disable before unload failed",
				logger.String("plugin", inst.Info.Name),
				logger.Error(err))
		}
	}

	inst.Lock()
	hookErr := inst.Plugin.OnUnload(ctx, inst.Context())
	if hookErr != nil {
		m.logger.Warn("plugin unload hook failed",
			logger.String("plugin", inst.Info.Name),
			logger.Error(hookErr))
	}
	inst.Unlock()

	m.mu.Lock()
	delete(m.plugins, id)
	delete(m.nameIndex, inst.Info.Name)
	delete(m.errStreak, id)
	m.mu.Unlock()
	m.resolver.Unregister(inst.Info.Name)

	m.metrics.Counter("plugins_unloaded_total").Inc()
	m.logger.Info("plugin unloaded", logger.String("plugin", inst.Info.Name))
	return hookErr
}

// Reload unloads the plugin and loads it again from its original
// artifact.
func (m *Manager) Reload(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	inst, ok := m.Get(id)
	if !ok {
		return uuid.Nil, errors.ErrNotFound("plugin " + id.String())
	}
	path := inst.Path
	if path == "" {
		return uuid.Nil, errors.ErrLoadError("plugin "+inst.Info.Name+" has no artifact to reload from", nil)
	}

	if err := m.Unload(ctx, id); err != nil {
		m.logger.Warn("unload during reload failed",
			logger.String("plugin", inst.Info.Name),
			logger.Error(err))
	}
	return m.LoadFromFile(path)
}

// UpdateSettings persists new settings for the plugin and notifies it via
// its config-update hook when it is running.
func (m *Manager) UpdateSettings(ctx context.Context, name string, values map[string]interface{}) error {
	inst, ok := m.GetByName(name)
	if !ok {
		return errors.ErrNotFound("plugin " + name)
	}

	settings, err := config.LoadSettings(m.cfg.PluginsDir, name)
	if err != nil {
		return err
	}
	for k, v := range values {
		settings.Set(k, v)
	}
	if err := settings.Save(); err != nil {
		return err
	}

	if !inst.IsRunning() {
		return nil
	}

	inst.Lock()
	defer inst.Unlock()

	// Swap in a copied context so handlers already running keep their
	// old snapshot instead of racing on the settings map.
	updated := *inst.Context()
	updated.Settings = settings.Snapshot()
	inst.SetContext(&updated)
	return inst.Plugin.OnConfigUpdate(ctx, &updated)
}

// Stop disables every running plugin, tolerating individual failures.
func (m *Manager) Stop(ctx context.Context) {
	for _, inst := range m.List() {
		if !inst.IsRunning() {
			continue
		}
		if err := m.Disable(ctx, inst.ID); err != nil {
			m.logger.Warn("plugin stop failed",
				logger.String("plugin", inst.Info.Name),
				logger.Error(err))
		}
	}
}

func (m *Manager) buildContext(name string) (*plugin.Context, error) {
	settings, err := config.LoadSettings(m.cfg.PluginsDir, name)
	if err != nil {
		return nil, err
	}
	dataDir := filepath.Join(m.cfg.PluginsDir, name, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.ErrLoadError("create data directory for plugin "+name, err)
	}
	return &plugin.Context{
		Caller:   m.caller,
		Settings: settings.Snapshot(),
		DataDir:  dataDir,
		Logger:   m.logger.Named(name),
	}, nil
}

func (m *Manager) registerCommands(inst *plugin.Instance) {
	if m.commands == nil {
		return
	}
	for _, def := range inst.Plugin.Commands() {
		def.Plugin = inst.Info.Name
		if err := m.commands.Register(def); err != nil {
			m.logger.Warn("command registration failed",
				logger.String("plugin", inst.Info.Name),
				logger.String("command", def.Name),
				logger.Error(err))
		}
	}
}

func (m *Manager) unregisterCommands(inst *plugin.Instance) {
	if m.commands == nil {
		return
	}
	m.commands.UnregisterPlugin(inst.Info.Name)
}
