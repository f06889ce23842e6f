package bot

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linjianyan0229/linbot2/pkg/command"
	"github.com/linjianyan0229/linbot2/pkg/config"
	"github.com/linjianyan0229/linbot2/pkg/logger"
	"github.com/linjianyan0229/linbot2/pkg/message"
	"github.com/linjianyan0229/linbot2/pkg/onebot"
	"github.com/linjianyan0229/linbot2/pkg/plugin"
)

type echoPlugin struct {
	plugin.Base
	messages int32
	commands int32
	notices  int32
}

func (p *echoPlugin) Info() plugin.Info {
	return plugin.Info{Name: "echo", Version: "1.0.0", APIVersion: "1.0.0"}
}

func (p *echoPlugin) HandleMessage(context.Context, *plugin.Context, *message.Message) (bool, error) {
	atomic.AddInt32(&p.messages, 1)
	return true, nil
}

func (p *echoPlugin) HandleCommand(context.Context, *plugin.Context, *command.Match, *message.Message) (bool, error) {
	atomic.AddInt32(&p.commands, 1)
	return true, nil
}

func (p *echoPlugin) HandleNotice(context.Context, *plugin.Context, *onebot.Event) (bool, error) {
	atomic.AddInt32(&p.notices, 1)
	return true, nil
}

func (p *echoPlugin) Commands() []command.Definition {
	def := command.NewDefinition("echo")
	def.Patterns = []command.Pattern{command.Prefix("echo")}
	return []command.Definition{def}
}

func newTestBot(t *testing.T) (*Bot, *echoPlugin) {
	t.Helper()
	cfg := config.Default()
	cfg.PluginsDir = t.TempDir()
	b := New(cfg, nil, logger.NewNoop(), nil)

	p := &echoPlugin{}
	id, err := b.Plugins().Register(p, "")
	require.NoError(t, err)
	require.NoError(t, b.Plugins().Enable(context.Background(), id))
	return b, p
}

func messageEvent(text string) *onebot.Event {
	return &onebot.Event{
		PostType:    onebot.PostTypeMessage,
		MessageType: "private",
		UserID:      1,
		RawMessage:  text,
	}
}

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("plain message dispatches to plugins", func(t *testing.T) {
		b, p := newTestBot(t)
		b.HandleEvent(ctx, messageEvent("hello there"))
		assert.Equal(t, int32(1), p.messages)
		assert.Equal(t, int32(0), p.commands)
	})

	t.Run("command match routes to command dispatch", func(t *testing.T) {
		b, p := newTestBot(t)
		b.HandleEvent(ctx, messageEvent("/echo hi"))
		assert.Equal(t, int32(1), p.commands)
		assert.Equal(t, int32(0), p.messages)
	})

	t.Run("notice fans out", func(t *testing.T) {
		b, p := newTestBot(t)
		b.HandleEvent(ctx, &onebot.Event{PostType: onebot.PostTypeNotice, NoticeType: "group_increase"})
		assert.Equal(t, int32(1), p.notices)
	})
}

func TestSubmit(t *testing.T) {
	t.Run("decodes and queues", func(t *testing.T) {
		b, _ := newTestBot(t)
		err := b.Submit([]byte(`{"post_type":"message","message_type":"private","user_id":1,"raw_message":"hi"}`))
		require.NoError(t, err)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		b, _ := newTestBot(t)
		assert.Error(t, b.Submit([]byte("{")))
	})

	t.Run("full queue fails fast", func(t *testing.T) {
		cfg := config.Default()
		cfg.PluginsDir = t.TempDir()
		cfg.Performance.QueueSize = 1
		b := New(cfg, nil, logger.NewNoop(), nil)

		require.NoError(t, b.SubmitEvent(messageEvent("one")))
		assert.Error(t, b.SubmitEvent(messageEvent("two")))
	})
}

func TestStartStop(t *testing.T) {
	cfg := config.Default()
	cfg.PluginsDir = t.TempDir()
	cfg.Performance.Workers = 2
	b := New(cfg, nil, logger.NewNoop(), nil)

	p := &echoPlugin{}
	_, err := b.Plugins().Register(p, "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	assert.Equal(t, 1, b.Plugins().Stats().Running)

	require.NoError(t, b.SubmitEvent(messageEvent("hello")))
	b.Stop(ctx)
	assert.Equal(t, 0, b.Plugins().Stats().Running)

	t.Run("disabled config refuses start", func(t *testing.T) {
		cfg := config.Default()
		cfg.PluginsDir = t.TempDir()
		cfg.Enabled = false
		b := New(cfg, nil, logger.NewNoop(), nil)
		assert.Error(t, b.Start(context.Background()))
	})
}
