package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/stream"
)

var errNoCard = errors.New("reply card not created")

// CardOptions configures CardStrategy.
type CardOptions struct {
	SplitMarker string
	ErrorNotice string
}

// CardStrategy keeps one mutable card per reply.
type CardStrategy struct {
	ch     channel.Channel
	sctx   Context
	opts   CardOptions
	logger *slog.Logger

	card *channel.Card
}

// NewCardStrategy creates a card strategy for one reply.
func NewCardStrategy(log *slog.Logger, ch channel.Channel, sctx Context, opts CardOptions) *CardStrategy {
	if log == nil {
		log = slog.Default()
	}
	if opts.ErrorNotice == "" {
		opts.ErrorNotice = DefaultErrorNotice
	}
	return &CardStrategy{
		ch:     ch,
		sctx:   sctx,
		opts:   opts,
		logger: log.With(slog.String("strategy", string(ModeCard)), slog.String("trigger_id", sctx.TriggerMessageID)),
	}
}

func (s *CardStrategy) OnAccept(context.Context) error {
	s.logger.Debug("reply accepted")
	return nil
}

func (s *CardStrategy) OnStartReply(ctx context.Context) error {
	card, err := s.ch.CreateReplyCard(ctx, s.sctx.TriggerMessageID)
	if err != nil {
		return err
	}
	s.card = card
	return nil
}

func (s *CardStrategy) OnSend(ctx context.Context, action stream.StreamAction) error {
	if s.card == nil {
		return errNoCard
	}
	switch action.Type {
	case stream.ActionThink:
		return s.ch.UpdateRegion(ctx, s.card, channel.RegionThink, action.Content)
	case stream.ActionText:
		return s.ch.UpdateRegion(ctx, s.card, channel.RegionText, StripSplitMarkers(action.Content, s.opts.SplitMarker))
	}
	return nil
}

func (s *CardStrategy) OnToolStatus(ctx context.Context, feedback stream.ToolFeedback) error {
	if s.card == nil {
		return errNoCard
	}
	return s.ch.UpdateRegion(ctx, s.card, channel.RegionStatus, feedback.StatusMessage)
}

func (s *CardStrategy) OnSuccess(ctx context.Context, content string) error {
	if s.card == nil {
		return errNoCard
	}
	return s.ch.CloseCard(ctx, s.card, strings.TrimSpace(StripSplitMarkers(content, s.opts.SplitMarker)))
}

// OnFailed marks the card failed. Without a card the notice is sent as a plain reply.
func (s *CardStrategy) OnFailed(ctx context.Context, err error) error {
	s.logger.Warn("reply failed", slog.Any("error", err))
	if s.card == nil {
		_, sendErr := s.ch.SendReply(ctx, s.sctx.TriggerMessageID, channel.Text(s.opts.ErrorNotice))
		return sendErr
	}
	return s.ch.FailCard(ctx, s.card, s.opts.ErrorNotice)
}

func (s *CardStrategy) OnEnd(context.Context) error {
	s.logger.Debug("reply ended")
	return nil
}

func (s *CardStrategy) RepresentativeMessageID() (string, bool) {
	if s.card == nil {
		return "", false
	}
	return s.card.MessageID, true
}

func (s *CardStrategy) CreationTime() time.Time {
	if s.card == nil {
		return time.Time{}
	}
	return s.card.CreatedAt
}

var _ Strategy = (*CardStrategy)(nil)
