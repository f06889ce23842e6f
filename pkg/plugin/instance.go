package plugin

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a plugin instance.
type Status string

const (
	// StatusUnloaded means the instance exists but no code is attached.
	StatusUnloaded Status = "unloaded"
	// StatusLoaded means the code is attached but the plugin is not
	// running.
	StatusLoaded Status = "loaded"
	// StatusRunning means the plugin receives events.
	StatusRunning Status = "running"
	// StatusPaused means the plugin was stopped and can be started
	// again.
	StatusPaused Status = "paused"
	// StatusError means the plugin failed; the instance stays registered
	// for inspection but receives no events.
	StatusError Status = "error"
)

// Stats counts a plugin's activity since it was loaded.
type Stats struct {
	MessagesProcessed uint64     `json:"messages_processed"`
	CommandsExecuted  uint64     `json:"commands_executed"`
	MessagesSent      uint64     `json:"messages_sent"`
	ErrorCount        uint64     `json:"error_count"`
	StartTime         *time.Time `json:"start_time,omitempty"`
	LastActivity      *time.Time `json:"last_activity,omitempty"`
}

// Instance wraps a loaded plugin with its identity, lifecycle state and
// counters. Lifecycle transitions are serialized by the instance mutex.
type Instance struct {
	// ID uniquely identifies this load of the plugin.
	ID uuid.UUID
	// Info is the plugin's declared metadata.
	Info Info
	// Path is the artifact the plugin was loaded from.
	Path string
	// Plugin is the loaded implementation.
	Plugin Plugin

	// lifecycle serializes enable/disable/unload transitions; mu guards
	// the state fields and may be taken while lifecycle is held.
	lifecycle sync.Mutex
	mu        sync.Mutex
	status    Status
	statusMsg string
	stats     Stats
	ctx       *Context
}

// NewInstance wraps a loaded plugin.
func NewInstance(info Info, path string, p Plugin) *Instance {
	return &Instance{
		ID:     uuid.New(),
		Info:   info,
		Path:   path,
		Plugin: p,
		status: StatusUnloaded,
	}
}

// Lock serializes a lifecycle transition on this instance.
func (i *Instance) Lock()   { i.lifecycle.Lock() }
func (i *Instance) Unlock() { i.lifecycle.Unlock() }

// Context returns the runtime context set while the plugin is enabled,
// nil otherwise. Settings changes swap in a fresh context rather than
// mutating the one in-flight handlers hold.
func (i *Instance) Context() *Context {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ctx
}

// SetContext replaces the runtime context.
func (i *Instance) SetContext(c *Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ctx = c
}

// Status returns the current lifecycle state.
func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// StatusMessage returns the reason attached to an error state.
func (i *Instance) StatusMessage() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.statusMsg
}

// SetStatus transitions the instance and clears any error reason.
func (i *Instance) SetStatus(s Status) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.setStatusLocked(s, "")
}

// SetError moves the instance to the error state with a reason.
func (i *Instance) SetError(reason string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.setStatusLocked(StatusError, reason)
}

func (i *Instance) setStatusLocked(s Status, msg string) {
	i.status = s
	i.statusMsg = msg
	if s == StatusRunning {
		now := time.Now()
		i.stats.StartTime = &now
	}
}

// IsRunning reports whether the plugin currently receives events.
func (i *Instance) IsRunning() bool {
	return i.Status() == StatusRunning
}

// Stats returns a copy of the activity counters.
func (i *Instance) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stats
}

// UpdateStats applies fn to the counters and stamps the last activity
// time.
func (i *Instance) UpdateStats(fn func(*Stats)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	fn(&i.stats)
	now := time.Now()
	i.stats.LastActivity = &now
}
