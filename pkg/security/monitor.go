package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/linjianyan0229/linbot2/pkg/config"
	"github.com/linjianyan0229/linbot2/pkg/errors"
)

// ResourceUsage is a point-in-time account of one plugin's consumption.
type ResourceUsage struct {
	MemoryBytes      uint64  `json:"memory_bytes"`
	CPUPercent       float64 `json:"cpu_percent"`
	NetworkSentBytes uint64  `json:"network_sent_bytes"`
	NetworkRecvBytes uint64  `json:"network_received_bytes"`
	FSReadBytes      uint64  `json:"fs_read_bytes"`
	FSWriteBytes     uint64  `json:"fs_write_bytes"`
	RuntimeSeconds   uint64  `json:"runtime_seconds"`
}

// ResourceMonitor tracks per-plugin resource usage and enforces the
// configured ceilings. State lives for the process lifetime only.
type ResourceMonitor struct {
	mu         sync.RWMutex
	cfg        config.Security
	usage      map[string]ResourceUsage
	startTimes map[string]time.Time

	now func() time.Time
}

// NewResourceMonitor creates a monitor with the given limits.
func NewResourceMonitor(cfg config.Security) *ResourceMonitor {
	return &ResourceMonitor{
		cfg:        cfg,
		usage:      make(map[string]ResourceUsage),
		startTimes: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Start begins tracking a plugin, resetting any previous usage.
func (m *ResourceMonitor) Start(plugin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[plugin] = ResourceUsage{}
	m.startTimes[plugin] = m.now()
}

// Stop forgets a plugin's usage.
func (m *ResourceMonitor) Stop(plugin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.usage, plugin)
	delete(m.startTimes, plugin)
}

// UpdateUsage replaces a plugin's usage sample. The runtime field is
// recomputed from the tracked start time; updates for plugins that are not
// being monitored are dropped.
func (m *ResourceMonitor) UpdateUsage(plugin string, usage ResourceUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, ok := m.startTimes[plugin]
	if !ok {
		return
	}
	usage.RuntimeSeconds = uint64(m.now().Sub(start).Seconds())
	m.usage[plugin] = usage
}

// GetUsage returns the last recorded usage for a plugin.
func (m *ResourceMonitor) GetUsage(plugin string) (ResourceUsage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.usage[plugin]
	return u, ok
}

// Monitored lists the plugins currently being tracked.
func (m *ResourceMonitor) Monitored() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.usage))
	for name := range m.usage {
		out = append(out, name)
	}
	return out
}

// CheckLimits verifies the plugin's last sample against the configured
// ceilings, memory first. Unmonitored plugins pass.
func (m *ResourceMonitor) CheckLimits(plugin string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	usage, ok := m.usage[plugin]
	if !ok {
		return nil
	}

	memoryMB := usage.MemoryBytes / (1024 * 1024)
	if memoryMB > uint64(m.cfg.MaxMemoryMB) {
		return errors.ErrResourceLimit(fmt.Sprintf(
			"plugin %s memory usage %dMB exceeds limit %dMB",
			plugin, memoryMB, m.cfg.MaxMemoryMB))
	}
	if usage.CPUPercent > m.cfg.MaxCPUPercent {
		return errors.ErrResourceLimit(fmt.Sprintf(
			"plugin %s cpu usage %.1f%% exceeds limit %.1f%%",
			plugin, usage.CPUPercent, m.cfg.MaxCPUPercent))
	}
	return nil
}
