// Package orchestrator drives model attempts in failover order and produces a single
// stream of accumulated snapshots for one reply.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/memohai/replyd/internal/llm"
	"github.com/memohai/replyd/internal/logger"
	"github.com/memohai/replyd/internal/stream"
)

// ErrNoModels is returned when GenerateReply is called with an empty candidate list.
var ErrNoModels = errors.New("no model configured")

// DefaultContentFilterNotice is sent when every candidate refused the conversation.
const DefaultContentFilterNotice = "Sorry, that is something I can't talk about. Let's chat about something else?"

// ModelConfig is one failover candidate.
type ModelConfig struct {
	ID          string
	DisplayName string
}

// Streamer is the model gateway as seen by the orchestrator.
type Streamer interface {
	Stream(ctx context.Context, modelID string, conv *llm.Conversation, opts llm.Options, emit llm.EmitFunc) error
}

// Config tunes the orchestrator.
type Config struct {
	YieldInterval       time.Duration
	ContentFilterNotice string
	Clock               stream.Clock
}

// Orchestrator runs ordered failover across model candidates.
type Orchestrator struct {
	gateway Streamer
	cfg     Config
	logger  *slog.Logger
}

// New creates an Orchestrator.
func New(log *slog.Logger, gateway Streamer, cfg Config) *Orchestrator {
	if cfg.YieldInterval <= 0 {
		cfg.YieldInterval = stream.DefaultYieldInterval
	}
	if cfg.ContentFilterNotice == "" {
		cfg.ContentFilterNotice = DefaultContentFilterNotice
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Orchestrator{
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.Component(log, "orchestrator"),
	}
}

// GenerateReply streams snapshots for one reply. The first candidate that completes wins and
// no further candidates are tried. A failed attempt's content is appended to conv as a partial
// assistant turn before the next candidate starts.
//
// The snapshot channel is closed when generation ends. The error channel then yields at most
// one terminal error: a transport failure on the last candidate, ErrNoModels, or a context error.
// Content-filter exhaustion is not an error; it produces a single notice snapshot.
func (o *Orchestrator) GenerateReply(ctx context.Context, triggerID string, conv *llm.Conversation, models []ModelConfig, opts llm.Options) (<-chan stream.Snapshot, <-chan error) {
	out := make(chan stream.Snapshot)
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		defer close(out)
		if err := o.run(ctx, triggerID, conv, models, opts, out); err != nil {
			errCh <- err
		}
	}()
	return out, errCh
}

func (o *Orchestrator) run(ctx context.Context, triggerID string, conv *llm.Conversation, models []ModelConfig, opts llm.Options, out chan<- stream.Snapshot) error {
	if len(models) == 0 {
		return ErrNoModels
	}
	log := o.logger.With(slog.String("trigger_id", triggerID))
	acc := stream.NewAccumulator(o.cfg.YieldInterval, stream.WithClock(o.cfg.Clock))

	for i, m := range models {
		attempt := log.With(slog.String("model", m.ID), slog.Int("attempt", i+1))
		attempt.Debug("model attempt started")

		err := o.gateway.Stream(ctx, m.ID, conv, opts, func(a stream.StreamAction) error {
			acc.Accumulate(a)
			if snap, ok := acc.ShouldEmit(); ok {
				return send(ctx, out, snap)
			}
			return nil
		})
		final, hasFinal := acc.FlushFinal()

		if err == nil {
			if hasFinal {
				if err := send(ctx, out, final); err != nil {
					return err
				}
			}
			attempt.Debug("model attempt completed")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		last := i == len(models)-1
		if !last {
			attempt.Warn("model attempt failed, failing over",
				slog.Bool("content_filter", llm.IsContentFilter(err)),
				slog.String("next_model", models[i+1].ID),
				slog.Any("error", err))
			conv.Append(llm.PartialAssistantMessage(final.Content))
			acc.Reset()
			continue
		}

		if llm.IsContentFilter(err) {
			attempt.Warn("all models refused content", slog.Any("error", err))
			return send(ctx, out, stream.Snapshot{Content: o.cfg.ContentFilterNotice})
		}
		attempt.Error("all models failed", slog.Any("error", err))
		if hasFinal {
			if serr := send(ctx, out, final); serr != nil {
				return serr
			}
		}
		return err
	}
	return nil
}

func send(ctx context.Context, out chan<- stream.Snapshot, snap stream.Snapshot) error {
	select {
	case out <- snap:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
