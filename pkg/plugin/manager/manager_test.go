package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linjianyan0229/linbot2/pkg/command"
	"github.com/linjianyan0229/linbot2/pkg/config"
	"github.com/linjianyan0229/linbot2/pkg/errors"
	"github.com/linjianyan0229/linbot2/pkg/logger"
	"github.com/linjianyan0229/linbot2/pkg/message"
	"github.com/linjianyan0229/linbot2/pkg/onebot"
	"github.com/linjianyan0229/linbot2/pkg/plugin"
	"github.com/linjianyan0229/linbot2/pkg/security"
)

// mockPlugin embeds the no-op base and lets tests wire in failures and
// observe calls.
type mockPlugin struct {
	plugin.Base
	info     plugin.Info
	priority int

	startErr  error
	stopErr   error
	unloadErr error
	msgErr    error

	messages int32
	commands int32
	stopped  int32
	unloaded int32

	handleCommand bool
	defs          []command.Definition
}

func (p *mockPlugin) Info() plugin.Info { return p.info }

func (p *mockPlugin) Priority() int {
	if p.priority != 0 {
		return p.priority
	}
	return 100
}

func (p *mockPlugin) OnStart(context.Context, *plugin.Context) error { return p.startErr }

func (p *mockPlugin) OnStop(context.Context, *plugin.Context) error {
	atomic.AddInt32(&p.stopped, 1)
	return p.stopErr
}

func (p *mockPlugin) OnUnload(context.Context, *plugin.Context) error {
	atomic.AddInt32(&p.unloaded, 1)
	return p.unloadErr
}

func (p *mockPlugin) HandleMessage(context.Context, *plugin.Context, *message.Message) (bool, error) {
	if p.msgErr != nil {
		return false, p.msgErr
	}
	atomic.AddInt32(&p.messages, 1)
	return true, nil
}

func (p *mockPlugin) HandleCommand(context.Context, *plugin.Context, *command.Match, *message.Message) (bool, error) {
	atomic.AddInt32(&p.commands, 1)
	return p.handleCommand, nil
}

func (p *mockPlugin) Commands() []command.Definition { return p.defs }

func newMock(name string, deps ...string) *mockPlugin {
	return &mockPlugin{info: plugin.Info{
		Name:         name,
		Version:      "1.0.0",
		APIVersion:   "1.0.0",
		Dependencies: deps,
	}}
}

func newTestManager(t *testing.T) (*Manager, *command.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.PluginsDir = t.TempDir()
	cmds := command.NewManager("/", cfg, logger.NewNoop())
	m := New(Options{
		Config:   cfg,
		Sandbox:  security.NewSandbox(cfg.Security, cfg.PluginsDir, logger.NewNoop()),
		Commands: cmds,
		Logger:   logger.NewNoop(),
	})
	return m, cmds
}

func testMessage(text string) *message.Message {
	return message.FromEvent(&onebot.Event{
		PostType:    onebot.PostTypeMessage,
		MessageType: "private",
		UserID:      1,
		RawMessage:  text,
	})
}

func TestRegister(t *testing.T) {
	t.Run("duplicate names rejected", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.Register(newMock("demo"), "")
		require.NoError(t, err)
		_, err = m.Register(newMock("demo"), "")
		require.Error(t, err)
		assert.True(t, errors.IsAlreadyExists(err))
	})

	t.Run("invalid metadata rejected", func(t *testing.T) {
		m, _ := newTestManager(t)
		bad := newMock("demo")
		bad.info.Version = "nope"
		_, err := m.Register(bad, "")
		require.Error(t, err)
	})

	t.Run("plugin limit enforced", func(t *testing.T) {
		m, _ := newTestManager(t)
		m.cfg.MaxPlugins = 1
		_, err := m.Register(newMock("one"), "")
		require.NoError(t, err)
		_, err = m.Register(newMock("two"), "")
		require.Error(t, err)
		assert.True(t, errors.IsLoadError(err))
	})
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("enable then disable", func(t *testing.T) {
		m, _ := newTestManager(t)
		p := newMock("demo")
		id, err := m.Register(p, "")
		require.NoError(t, err)

		require.NoError(t, m.Enable(ctx, id))
		inst, _ := m.Get(id)
		assert.Equal(t, plugin.StatusRunning, inst.Status())
		assert.NotNil(t, inst.Context())

		require.NoError(t, m.Disable(ctx, id))
		assert.Equal(t, plugin.StatusPaused, inst.Status())
		assert.Equal(t, int32(1), p.stopped)
	})

	t.Run("enable creates the data directory", func(t *testing.T) {
		m, _ := newTestManager(t)
		id, _ := m.Register(newMock("demo"), "")
		require.NoError(t, m.Enable(ctx, id))

		dataDir := filepath.Join(m.cfg.PluginsDir, "demo", "data")
		fi, err := os.Stat(dataDir)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())

		inst, _ := m.Get(id)
		assert.Equal(t, dataDir, inst.Context().DataDir)
	})

	t.Run("enable is idempotent", func(t *testing.T) {
		m, _ := newTestManager(t)
		id, _ := m.Register(newMock("demo"), "")
		require.NoError(t, m.Enable(ctx, id))
		require.NoError(t, m.Enable(ctx, id))
	})

	t.Run("start failure leaves plugin loaded", func(t *testing.T) {
		m, _ := newTestManager(t)
		p := newMock("demo")
		p.startErr = fmt.Errorf("boom")
		id, _ := m.Register(p, "")

		err := m.Enable(ctx, id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		inst, _ := m.Get(id)
		assert.Equal(t, plugin.StatusLoaded, inst.Status(), "retry stays possible")

		p.startErr = nil
		require.NoError(t, m.Enable(ctx, id))
	})

	t.Run("failing stop hook still pauses", func(t *testing.T) {
		m, _ := newTestManager(t)
		p := newMock("demo")
		p.stopErr = fmt.Errorf("stuck")
		id, _ := m.Register(p, "")
		require.NoError(t, m.Enable(ctx, id))

		err := m.Disable(ctx, id)
		require.Error(t, err)
		inst, _ := m.Get(id)
		assert.Equal(t, plugin.StatusPaused, inst.Status())
	})

	t.Run("unload disables first and always removes", func(t *testing.T) {
		m, _ := newTestManager(t)
		p := newMock("demo")
		p.unloadErr = fmt.Errorf("refuses")
		id, _ := m.Register(p, "")
		require.NoError(t, m.Enable(ctx, id))

		err := m.Unload(ctx, id)
		require.Error(t, err, "unload hook error is reported")
		assert.Equal(t, int32(1), p.stopped, "stop ran before unload")
		assert.Equal(t, int32(1), p.unloaded)
		_, ok := m.Get(id)
		assert.False(t, ok, "removed despite hook failure")
		_, ok = m.GetByName("demo")
		assert.False(t, ok)
	})

	t.Run("stop disables everything despite failures", func(t *testing.T) {
		m, _ := newTestManager(t)
		bad := newMock("bad")
		bad.stopErr = fmt.Errorf("no")
		good := newMock("good")
		idBad, _ := m.Register(bad, "")
		idGood, _ := m.Register(good, "")
		require.NoError(t, m.Enable(ctx, idBad))
		require.NoError(t, m.Enable(ctx, idGood))

		m.Stop(ctx)
		assert.Equal(t, 0, m.Stats().Running)
	})
}

func TestDependencies(t *testing.T) {
	ctx := context.Background()

	t.Run("enable requires running dependencies", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.Register(newMock("base"), "")
		require.NoError(t, err)
		depID, err := m.Register(newMock("dependent", "base"), "")
		require.NoError(t, err)

		err = m.Enable(ctx, depID)
		require.Error(t, err)
		assert.True(t, errors.IsMissingDependency(err))

		require.NoError(t, m.EnableByName(ctx, "base"))
		require.NoError(t, m.Enable(ctx, depID))
	})

	t.Run("enable all orders by dependency depth", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.Register(newMock("z-base"), "")
		require.NoError(t, err)
		_, err = m.Register(newMock("a-dependent", "z-base"), "")
		require.NoError(t, err)

		m.EnableAll(ctx)
		assert.Equal(t, 2, m.Stats().Running)
	})
}

func TestDispatchMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("errors are isolated", func(t *testing.T) {
		m, _ := newTestManager(t)
		failing := newMock("failing")
		failing.msgErr = fmt.Errorf("broken handler")
		failing.priority = 1
		healthy := newMock("healthy")
		healthy.priority = 2

		idF, _ := m.Register(failing, "")
		idH, _ := m.Register(healthy, "")
		require.NoError(t, m.Enable(ctx, idF))
		require.NoError(t, m.Enable(ctx, idH))

		m.DispatchMessage(ctx, testMessage("hello"))
		assert.Equal(t, int32(1), healthy.messages, "healthy plugin still ran")

		inst, _ := m.Get(idF)
		assert.Equal(t, uint64(1), inst.Stats().ErrorCount)
	})

	t.Run("repeated failures demote the plugin", func(t *testing.T) {
		m, _ := newTestManager(t)
		failing := newMock("failing")
		failing.msgErr = fmt.Errorf("broken handler")
		id, _ := m.Register(failing, "")
		require.NoError(t, m.Enable(ctx, id))

		for i := 0; i < maxConsecutiveErrors; i++ {
			m.DispatchMessage(ctx, testMessage("hello"))
		}
		inst, _ := m.Get(id)
		assert.Equal(t, plugin.StatusError, inst.Status())

		m.DispatchMessage(ctx, testMessage("hello"))
		assert.Equal(t, int32(0), failing.messages, "demoted plugin receives nothing")
	})

	t.Run("over-limit plugin is skipped", func(t *testing.T) {
		m, _ := newTestManager(t)
		p := newMock("hog")
		id, _ := m.Register(p, "")
		require.NoError(t, m.Enable(ctx, id))

		m.sandbox.Monitor().UpdateUsage("hog", security.ResourceUsage{
			MemoryBytes: uint64(m.cfg.Security.MaxMemoryMB+1) * 1024 * 1024,
		})
		m.DispatchMessage(ctx, testMessage("hello"))
		assert.Equal(t, int32(0), p.messages)
	})
}

func TestDispatchCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("first handler wins", func(t *testing.T) {
		m, _ := newTestManager(t)
		first := newMock("first")
		first.priority = 1
		first.handleCommand = true
		second := newMock("second")
		second.priority = 2
		second.handleCommand = true

		id1, _ := m.Register(first, "")
		id2, _ := m.Register(second, "")
		require.NoError(t, m.Enable(ctx, id1))
		require.NoError(t, m.Enable(ctx, id2))

		match := &command.Match{Command: "ping"}
		m.DispatchCommand(ctx, match, testMessage("/ping"))
		assert.Equal(t, int32(1), first.commands)
		assert.Equal(t, int32(0), second.commands)
	})

	t.Run("declined command moves on", func(t *testing.T) {
		m, _ := newTestManager(t)
		declines := newMock("declines")
		declines.priority = 1
		declines.handleCommand = false
		accepts := newMock("accepts")
		accepts.priority = 2
		accepts.handleCommand = true

		id1, _ := m.Register(declines, "")
		id2, _ := m.Register(accepts, "")
		require.NoError(t, m.Enable(ctx, id1))
		require.NoError(t, m.Enable(ctx, id2))

		m.DispatchCommand(ctx, &command.Match{Command: "ping"}, testMessage("/ping"))
		assert.Equal(t, int32(1), declines.commands)
		assert.Equal(t, int32(1), accepts.commands)
	})
}

func TestPluginCommands(t *testing.T) {
	ctx := context.Background()
	m, cmds := newTestManager(t)

	p := newMock("demo")
	def := command.NewDefinition("ping")
	def.Patterns = []command.Pattern{command.Exact("ping")}
	p.defs = []command.Definition{def}

	id, _ := m.Register(p, "")
	require.NoError(t, m.Enable(ctx, id))

	got, ok := cmds.Get("ping")
	require.True(t, ok)
	assert.Equal(t, "demo", got.Plugin)

	require.NoError(t, m.Disable(ctx, id))
	_, ok = cmds.Get("ping")
	assert.False(t, ok, "commands unregister with the plugin")
}

// settingsReader reads its settings snapshot on every message, mirroring
// a plugin that consults configuration in its hot path.
type settingsReader struct {
	plugin.Base
	info plugin.Info
}

func (p *settingsReader) Info() plugin.Info { return p.info }

func (p *settingsReader) HandleMessage(_ context.Context, pctx *plugin.Context, _ *message.Message) (bool, error) {
	_ = pctx.SettingString("greeting", "")
	return true, nil
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("running plugin gets a fresh snapshot", func(t *testing.T) {
		m, _ := newTestManager(t)
		id, _ := m.Register(newMock("demo"), "")
		require.NoError(t, m.Enable(ctx, id))

		inst, _ := m.Get(id)
		before := inst.Context()

		require.NoError(t, m.UpdateSettings(ctx, "demo", map[string]interface{}{"greeting": "hi"}))

		after := inst.Context()
		assert.NotSame(t, before, after, "in-flight handlers keep their old snapshot")
		assert.Equal(t, "hi", after.SettingString("greeting", ""))
		_, ok := before.Setting("greeting")
		assert.False(t, ok)
	})

	t.Run("updates race-free against dispatch", func(t *testing.T) {
		m, _ := newTestManager(t)
		p := &settingsReader{info: plugin.Info{Name: "reader", Version: "1.0.0", APIVersion: "1.0.0"}}
		id, _ := m.Register(p, "")
		require.NoError(t, m.Enable(ctx, id))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				m.DispatchMessage(ctx, testMessage("hello"))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				values := map[string]interface{}{"greeting": fmt.Sprintf("v%d", i)}
				assert.NoError(t, m.UpdateSettings(ctx, "reader", values))
			}
		}()
		wg.Wait()
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	running := newMock("running")
	paused := newMock("paused")
	idR, _ := m.Register(running, "")
	idP, _ := m.Register(paused, "")
	require.NoError(t, m.Enable(ctx, idR))
	require.NoError(t, m.Enable(ctx, idP))
	require.NoError(t, m.Disable(ctx, idP))

	s := m.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 1, s.Paused)

	stats, ok := m.PluginStats(idR)
	require.True(t, ok)
	assert.NotNil(t, stats.StartTime)
}
