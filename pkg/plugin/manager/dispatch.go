package manager

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/linjianyan0229/linbot2/pkg/command"
	"github.com/linjianyan0229/linbot2/pkg/logger"
	"github.com/linjianyan0229/linbot2/pkg/message"
	"github.com/linjianyan0229/linbot2/pkg/onebot"
	"github.com/linjianyan0229/linbot2/pkg/plugin"
)

// running returns the running instances in dispatch order: ascending
// plugin priority, name as tie breaker.
func (m *Manager) running() []*plugin.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*plugin.Instance, 0, len(m.plugins))
	for _, inst := range m.plugins {
		if inst.IsRunning() {
			out = append(out, inst)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Plugin.Priority(), out[j].Plugin.Priority()
		if pi != pj {
			return pi < pj
		}
		return out[i].Info.Name < out[j].Info.Name
	})
	return out
}

// DispatchMessage offers the message to every running plugin in priority
// order. A handler error is isolated to its plugin: it is counted,
// logged, and dispatch continues. Plugins over their resource limits are
// skipped.
func (m *Manager) DispatchMessage(ctx context.Context, msg *message.Message) {
	for _, inst := range m.running() {
		if m.overLimit(inst) {
			continue
		}
		if !inst.Plugin.ShouldHandleMessage(msg) {
			continue
		}

		handled, err := inst.Plugin.HandleMessage(ctx, inst.Context(), msg)
		if err != nil {
			m.recordHandlerError(inst, err)
			continue
		}
		m.recordHandlerSuccess(inst)
		inst.UpdateStats(func(s *plugin.Stats) { s.MessagesProcessed++ })
		m.metrics.Counter("messages_dispatched_total", "plugin", inst.Info.Name).Inc()
		_ = handled // messages keep flowing to later plugins
	}
}

// DispatchCommand offers the matched command to running plugins in
// priority order; the first plugin that claims and handles it ends the
// chain.
func (m *Manager) DispatchCommand(ctx context.Context, match *command.Match, msg *message.Message) {
	for _, inst := range m.running() {
		if m.overLimit(inst) {
			continue
		}
		if !inst.Plugin.ShouldHandleCommand(match) {
			continue
		}

		handled, err := inst.Plugin.HandleCommand(ctx, inst.Context(), match, msg)
		if err != nil {
			m.recordHandlerError(inst, err)
			continue
		}
		m.recordHandlerSuccess(inst)
		if handled {
			inst.UpdateStats(func(s *plugin.Stats) { s.CommandsExecuted++ })
			m.metrics.Counter("commands_executed_total", "plugin", inst.Info.Name).Inc()
			if m.commands != nil {
				m.commands.RecordUse(match.Command, msg.SenderID())
			}
			return
		}
	}
}

// DispatchNotice fans a notice event out to every running plugin.
func (m *Manager) DispatchNotice(ctx context.Context, ev *onebot.Event) {
	m.dispatchEvent(ctx, ev, func(inst *plugin.Instance) (bool, error) {
		return inst.Plugin.HandleNotice(ctx, inst.Context(), ev)
	})
}

// DispatchRequest fans a request event out to every running plugin.
func (m *Manager) DispatchRequest(ctx context.Context, ev *onebot.Event) {
	m.dispatchEvent(ctx, ev, func(inst *plugin.Instance) (bool, error) {
		return inst.Plugin.HandleRequest(ctx, inst.Context(), ev)
	})
}

// DispatchMeta fans a meta event out to every running plugin.
func (m *Manager) DispatchMeta(ctx context.Context, ev *onebot.Event) {
	m.dispatchEvent(ctx, ev, func(inst *plugin.Instance) (bool, error) {
		return inst.Plugin.HandleMeta(ctx, inst.Context(), ev)
	})
}

func (m *Manager) dispatchEvent(_ context.Context, _ *onebot.Event, handle func(*plugin.Instance) (bool, error)) {
	for _, inst := range m.running() {
		if m.overLimit(inst) {
			continue
		}
		if _, err := handle(inst); err != nil {
			m.recordHandlerError(inst, err)
			continue
		}
		m.recordHandlerSuccess(inst)
	}
}

// overLimit checks the sandbox resource ceilings for the plugin.
func (m *Manager) overLimit(inst *plugin.Instance) bool {
	if m.sandbox == nil {
		return false
	}
	if err := m.sandbox.CheckResourceLimits(inst.Info.Name); err != nil {
		m.logger.Warn("plugin skipped, over resource limit",
			logger.String("plugin", inst.Info.Name),
			logger.Error(err))
		m.metrics.Counter("plugin_limit_skips_total", "plugin", inst.Info.Name).Inc()
		return true
	}
	return false
}

func (m *Manager) recordHandlerError(inst *plugin.Instance, err error) {
	inst.UpdateStats(func(s *plugin.Stats) { s.ErrorCount++ })
	m.metrics.Counter("plugin_errors_total", "plugin", inst.Info.Name).Inc()
	m.logger.Error("plugin handler failed",
		logger.String("plugin", inst.Info.Name),
		logger.Error(err))

	m.mu.Lock()
	m.errStreak[inst.ID]++
	streak := m.errStreak[inst.ID]
	m.mu.Unlock()

	if streak >= maxConsecutiveErrors {
		inst.SetError("demoted after repeated handler failures")
		m.logger.Error("plugin demoted",
			logger.String("plugin", inst.Info.Name),
			logger.Int("failures", streak))
	}
}

func (m *Manager) recordHandlerSuccess(inst *plugin.Instance) {
	m.mu.Lock()
	if m.errStreak[inst.ID] != 0 {
		m.errStreak[inst.ID] = 0
	}
	m.mu.Unlock()
}

// ManagerStats summarizes the registry.
type ManagerStats struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Paused  int `json:"paused"`
	Errored int `json:"errored"`
}

// Stats returns registry-wide counts.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s ManagerStats
	for _, inst := range m.plugins {
		s.Total++
		switch inst.Status() {
		case plugin.StatusRunning:
			s.Running++
		case plugin.StatusPaused:
			s.Paused++
		case plugin.StatusError:
			s.Errored++
		}
	}
	return s
}

// PluginStats returns the activity counters for one plugin.
func (m *Manager) PluginStats(id uuid.UUID) (plugin.Stats, bool) {
	inst, ok := m.Get(id)
	if !ok {
		return plugin.Stats{}, false
	}
	return inst.Stats(), true
}

// HealthCheck asks every running plugin whether it is healthy and returns
// the unhealthy ones keyed by name.
func (m *Manager) HealthCheck(ctx context.Context) map[string]error {
	out := make(map[string]error)
	for _, inst := range m.running() {
		if err := inst.Plugin.HealthCheck(ctx); err != nil {
			out[inst.Info.Name] = err
		}
	}
	return out
}
