package plugin

import (
	"context"

	"github.com/linjianyan0229/linbot2/pkg/command"
	"github.com/linjianyan0229/linbot2/pkg/message"
	"github.com/linjianyan0229/linbot2/pkg/onebot"
)

// Plugin is the contract every plugin implements. Embed Base to get no-op
// defaults and override only what the plugin needs.
//
// Handle methods return whether the event was handled; the manager keeps
// dispatching messages to later plugins either way, but a handled command
// stops the chain.
type Plugin interface {
	// Info returns the plugin's declared metadata.
	Info() Info
	// Priority orders dispatch; lower runs first.
	Priority() int

	// OnInit runs once before OnStart when the plugin is enabled.
	OnInit(ctx context.Context, pctx *Context) error
	// OnStart runs when the plugin transitions to running.
	OnStart(ctx context.Context, pctx *Context) error
	// OnStop runs when the plugin is paused or shut down.
	OnStop(ctx context.Context, pctx *Context) error
	// OnUnload runs before the plugin is removed from the registry.
	OnUnload(ctx context.Context, pctx *Context) error
	// OnConfigUpdate runs after the plugin's settings change.
	OnConfigUpdate(ctx context.Context, pctx *Context) error

	// ShouldHandleMessage lets a plugin skip messages cheaply before
	// HandleMessage is invoked.
	ShouldHandleMessage(msg *message.Message) bool
	// ShouldHandleCommand lets a plugin claim or decline a matched
	// command.
	ShouldHandleCommand(match *command.Match) bool

	HandleMessage(ctx context.Context, pctx *Context, msg *message.Message) (bool, error)
	HandleCommand(ctx context.Context, pctx *Context, match *command.Match, msg *message.Message) (bool, error)
	HandleNotice(ctx context.Context, pctx *Context, ev *onebot.Event) (bool, error)
	HandleRequest(ctx context.Context, pctx *Context, ev *onebot.Event) (bool, error)
	HandleMeta(ctx context.Context, pctx *Context, ev *onebot.Event) (bool, error)

	// Status reports plugin-specific state for diagnostics.
	Status() map[string]interface{}
	// HealthCheck reports whether the plugin considers itself healthy.
	HealthCheck(ctx context.Context) error

	// Commands returns the command definitions the plugin wants
	// registered while it runs.
	Commands() []command.Definition
}

// Base provides no-op defaults for the full Plugin contract except Info,
// which concrete plugins must supply.
type Base struct{}

func (Base) Priority() int { return 100 }

func (Base) OnInit(context.Context, *Context) error         { return nil }
func (Base) OnStart(context.Context, *Context) error        { return nil }
func (Base) OnStop(context.Context, *Context) error         { return nil }
func (Base) OnUnload(context.Context, *Context) error       { return nil }
func (Base) OnConfigUpdate(context.Context, *Context) error { return nil }

func (Base) ShouldHandleMessage(*message.Message) bool { return true }
func (Base) ShouldHandleCommand(*command.Match) bool   { return true }

func (Base) HandleMessage(context.Context, *Context, *message.Message) (bool, error) {
	return false, nil
}

func (Base) HandleCommand(context.Context, *Context, *command.Match, *message.Message) (bool, error) {
	return false, nil
}

func (Base) HandleNotice(context.Context, *Context, *onebot.Event) (bool, error) {
	return false, nil
}

func (Base) HandleRequest(context.Context, *Context, *onebot.Event) (bool, error) {
	return false, nil
}

func (Base) HandleMeta(context.Context, *Context, *onebot.Event) (bool, error) {
	return false, nil
}

func (Base) Status() map[string]interface{} { return nil }
func (Base) HealthCheck(context.Context) error { return nil }

func (Base) Commands() []command.Definition { return nil }
