// Package bot wires the runtime together: configuration, logging,
// metrics, the sandbox, the command engine and the plugin manager, plus
// the worker pool that drains inbound protocol events.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/linjianyan0229/linbot2/pkg/command"
	"github.com/linjianyan0229/linbot2/pkg/config"
	"github.com/linjianyan0229/linbot2/pkg/errors"
	"github.com/linjianyan0229/linbot2/pkg/logger"
	"github.com/linjianyan0229/linbot2/pkg/message"
	"github.com/linjianyan0229/linbot2/pkg/metrics"
	"github.com/linjianyan0229/linbot2/pkg/onebot"
	"github.com/linjianyan0229/linbot2/pkg/plugin/manager"
	"github.com/linjianyan0229/linbot2/pkg/security"
)

// Bot is the assembled runtime.
type Bot struct {
	cfg      *config.Config
	logger   logger.Logger
	metrics  metrics.Metrics
	sandbox  *security.Sandbox
	commands *command.Manager
	plugins  *manager.Manager
	sampler  *security.Sampler

	queue chan *onebot.Event

	wg       sync.WaitGroup
	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// New assembles a bot from configuration. caller sends protocol actions;
// pass nil only in tests.
func New(cfg *config.Config, caller onebot.Caller, log logger.Logger, m metrics.Metrics) *Bot {
	if log == nil {
		log = logger.NewNoop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}

	sandbox := security.NewSandbox(cfg.Security, cfg.PluginsDir, log)
	commands := command.NewManager(cfg.CommandPrefix, cfg, log)
	plugins := manager.New(manager.Options{
		Config:   cfg,
		Sandbox:  sandbox,
		Commands: commands,
		Caller:   caller,
		Logger:   log,
		Metrics:  m,
	})

	return &Bot{
		cfg:      cfg,
		logger:   log.Named("bot"),
		metrics:  m,
		sandbox:  sandbox,
		commands: commands,
		plugins:  plugins,
		sampler: security.NewSampler(
			sandbox.Monitor(),
			time.Duration(cfg.Performance.StatsIntervalSec)*time.Second,
			log,
		),
		queue: make(chan *onebot.Event, cfg.Performance.QueueSize),
	}
}

// Plugins exposes the plugin manager.
func (b *Bot) Plugins() *manager.Manager { return b.plugins }

// Commands exposes the command manager.
func (b *Bot) Commands() *command.Manager { return b.commands }

// Sandbox exposes the security sandbox.
func (b *Bot) Sandbox() *security.Sandbox { return b.sandbox }

// Start scans and enables plugins, then launches the dispatch workers and
// the resource sampler. It returns once the runtime is up.
func (b *Bot) Start(ctx context.Context) error {
	if !b.cfg.Enabled {
		return errors.ErrConfigError("plugin system is disabled", nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancelMu.Lock()
	b.cancel = cancel
	b.cancelMu.Unlock()

	if err := b.plugins.ScanAndLoad(); err != nil {
		cancel()
		return err
	}
	b.plugins.EnableAll(runCtx)

	for i := 0; i < b.cfg.Performance.Workers; i++ {
		b.wg.Add(1)
		go b.worker(runCtx)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sampler.Run(runCtx)
	}()

	b.logger.Info("bot started",
		logger.Int("workers", b.cfg.Performance.Workers),
		logger.Int("plugins", b.plugins.Stats().Running))
	return nil
}

// Stop drains the workers and shuts the plugins down.
func (b *Bot) Stop(ctx context.Context) {
	b.cancelMu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.cancelMu.Unlock()

	b.wg.Wait()
	b.plugins.Stop(ctx)
	b.logger.Info("bot stopped")
}

// Submit queues a raw protocol event for dispatch. It fails when the
// queue is full rather than blocking the transport.
func (b *Bot) Submit(raw []byte) error {
	ev, err := onebot.ParseEvent(raw)
	if err != nil {
		b.metrics.Counter("events_rejected_total").Inc()
		return errors.ErrMessageParse("decode inbound event: " + err.Error())
	}
	return b.SubmitEvent(ev)
}

// SubmitEvent queues an already-decoded event.
func (b *Bot) SubmitEvent(ev *onebot.Event) error {
	select {
	case b.queue <- ev:
		b.metrics.Counter("events_received_total").Inc()
		return nil
	default:
		b.metrics.Counter("events_dropped_total").Inc()
		return errors.ErrApiError("event queue full", nil)
	}
}

func (b *Bot) worker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			b.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent routes one event through the pipeline: messages are matched
// against the command registry first and dispatched as a command on a
// hit, otherwise as a plain message; notice, request and meta events fan
// out to all running plugins.
func (b *Bot) HandleEvent(ctx context.Context, ev *onebot.Event) {
	switch ev.PostType {
	case onebot.PostTypeMessage:
		b.handleMessage(ctx, ev)
	case onebot.PostTypeNotice:
		b.plugins.DispatchNotice(ctx, ev)
	case onebot.PostTypeRequest:
		b.plugins.DispatchRequest(ctx, ev)
	case onebot.PostTypeMetaEvent:
		b.plugins.DispatchMeta(ctx, ev)
	default:
		b.logger.Debug("event ignored", logger.String("post_type", string(ev.PostType)))
	}
}

func (b *Bot) handleMessage(ctx context.Context, ev *onebot.Event) {
	msg := message.FromEvent(ev)
	if msg == nil {
		return
	}

	match, err := b.commands.MatchCommand(msg)
	if err != nil {
		b.logger.Error("command matching failed", logger.Error(err))
		b.metrics.Counter("command_match_errors_total").Inc()
		return
	}

	if match != nil {
		b.metrics.Counter("commands_matched_total", "command", match.Command).Inc()
		b.plugins.DispatchCommand(ctx, match, msg)
		return
	}
	b.plugins.DispatchMessage(ctx, msg)
}
