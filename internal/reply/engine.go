// Package reply wires the message lock, the orchestrator, the reply protocol and a delivery
// strategy into the single DeliverReply entry point.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/delivery"
	"github.com/memohai/replyd/internal/llm"
	"github.com/memohai/replyd/internal/lock"
	"github.com/memohai/replyd/internal/logger"
	"github.com/memohai/replyd/internal/orchestrator"
	"github.com/memohai/replyd/internal/protocol"
	"github.com/memohai/replyd/internal/stream"
)

var (
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrEmptyReply is reported when generation ended without any content.
	ErrEmptyReply = errors.New("model returned no content")

	errAborted = errors.New("reply aborted")
)

// cleanupTimeout bounds END callbacks and lock release after the caller's context is done.
const cleanupTimeout = 10 * time.Second

// Generator produces the snapshot stream of one reply.
type Generator interface {
	GenerateReply(ctx context.Context, triggerID string, conv *llm.Conversation, models []orchestrator.ModelConfig, opts llm.Options) (<-chan stream.Snapshot, <-chan error)
}

// Locker is the per-trigger message lock.
type Locker interface {
	TryAcquire(ctx context.Context, triggerID string) error
	Release(ctx context.Context, triggerID string) error
}

// Config holds generation settings applied to every reply.
type Config struct {
	SystemPrompt      string
	Temperature       float64
	MaxToolIterations int
	Tools             []llm.ToolDefinition
	// Timeout bounds generation; zero means no limit beyond the caller's context.
	Timeout time.Duration
}

// Engine delivers replies. It is safe for concurrent use; replies share only the lock store.
type Engine struct {
	generator  Generator
	locker     Locker
	strategies *delivery.Registry
	channels   map[string]channel.Channel
	cfg        Config
	logger     *slog.Logger
}

// NewEngine creates an engine delivering through channels, looked up by Channel.Name.
func NewEngine(log *slog.Logger, generator Generator, locker Locker, strategies *delivery.Registry, cfg Config, channels ...channel.Channel) (*Engine, error) {
	table := make(map[string]channel.Channel, len(channels))
	for _, ch := range channels {
		if _, dup := table[ch.Name()]; dup {
			return nil, fmt.Errorf("channel %q registered twice", ch.Name())
		}
		table[ch.Name()] = ch
	}
	return &Engine{
		generator:  generator,
		locker:     locker,
		strategies: strategies,
		channels:   table,
		cfg:        cfg,
		logger:     logger.Component(log, "reply"),
	}, nil
}

// DeliverReply generates and delivers the reply to trigger and returns once END is reached.
// The returned error is the reason the reply FAILED, if it did.
func (e *Engine) DeliverReply(ctx context.Context, trigger channel.Trigger, models []orchestrator.ModelConfig, selector delivery.Selector) error {
	ch, ok := e.channels[trigger.Channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, trigger.Channel)
	}
	log := e.logger.With(
		slog.String("trigger_id", trigger.MessageID),
		slog.String("chat_id", trigger.ChatID),
		slog.String("channel", trigger.Channel),
	)

	if err := e.locker.TryAcquire(ctx, trigger.MessageID); err != nil {
		log.Warn("message lock not acquired, continuing", slog.Any("error", err))
	} else {
		defer func() {
			cctx, cancel := cleanupContext(ctx)
			defer cancel()
			if err := e.locker.Release(cctx, trigger.MessageID); err != nil {
				log.Warn("message lock release failed", slog.Any("error", err))
			}
		}()
	}

	sctx := delivery.ContextFromTrigger(trigger)
	if selector == nil {
		selector = delivery.Fixed(delivery.ModeCard)
	}
	mode := selector(sctx)
	strategy, err := e.strategies.New(mode, ch, sctx)
	if err != nil {
		return err
	}
	log = log.With(slog.String("mode", string(mode)))
	mgr := protocol.NewManager(log, strategy)
	defer func() {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		if err := mgr.ForceEnd(cctx, errAborted); err != nil {
			log.Warn("forced reply end failed", slog.Any("error", err))
		}
		if id, ok := strategy.RepresentativeMessageID(); ok {
			log.Info("reply delivered", slog.String("message_id", id), slog.Time("created_at", strategy.CreationTime()))
		}
	}()

	handle := func(ctx context.Context, data protocol.ReplyStateData) error {
		_, err := mgr.HandleResponse(ctx, data)
		if err != nil {
			log.Warn("reply step failed", slog.String("step", data.Step.String()), slog.Any("error", err))
		}
		return err
	}

	// terminal steps still run when the caller's context is gone
	finish := func(data protocol.ReplyStateData) {
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		_ = handle(cctx, data)
	}

	_ = handle(ctx, protocol.Accept())
	if err := handle(ctx, protocol.StartReply()); err != nil {
		finish(protocol.Failed(err))
		return err
	}

	genCtx, cancel := e.generationContext(ctx)
	defer cancel()
	snaps, errs := e.generator.GenerateReply(genCtx, trigger.MessageID, e.conversation(trigger), models, e.options())

	var (
		last stream.Snapshot
		sent bool
	)
	for snap := range snaps {
		last, sent = snap, true
		_ = handle(ctx, protocol.Send(snap))
	}
	genErr := <-errs

	switch {
	case genErr != nil:
		finish(protocol.Failed(genErr))
		return genErr
	case !sent || last.Content == "":
		finish(protocol.Failed(ErrEmptyReply))
		return ErrEmptyReply
	}
	finish(protocol.Success(last.Content))
	finish(protocol.End())
	return nil
}

func (e *Engine) conversation(trigger channel.Trigger) *llm.Conversation {
	conv := llm.NewConversation()
	if e.cfg.SystemPrompt != "" {
		conv.Append(llm.SystemMessage(e.cfg.SystemPrompt))
	}
	conv.Append(llm.UserMessage(trigger.Text))
	return conv
}

func (e *Engine) options() llm.Options {
	return llm.Options{
		Temperature:       e.cfg.Temperature,
		Tools:             e.cfg.Tools,
		MaxToolIterations: e.cfg.MaxToolIterations,
	}
}

func (e *Engine) generationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, e.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

var _ Locker = (*lock.MessageLock)(nil)
var _ Generator = (*orchestrator.Orchestrator)(nil)
