package delivery

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/stream"
)

const (
	DefaultSplitMarker  = "|||"
	DefaultMaxMessages  = 5
	DefaultMessageDelay = 1500 * time.Millisecond
	DefaultMinDelay     = 500 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultErrorNotice  = "Something went wrong while generating the reply. Please try again later."
)

// MultiMessageOptions configures MultiMessageStrategy. Zero fields take the package defaults.
type MultiMessageOptions struct {
	SplitMarker  string
	MaxMessages  int
	DefaultDelay time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration
	ErrorNotice  string

	// Clock and Sleep are replaceable in tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o MultiMessageOptions) normalized() MultiMessageOptions {
	if o.SplitMarker == "" {
		o.SplitMarker = DefaultSplitMarker
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = DefaultMaxMessages
	}
	if o.DefaultDelay <= 0 {
		o.DefaultDelay = DefaultMessageDelay
	}
	if o.MinDelay <= 0 {
		o.MinDelay = DefaultMinDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxDelay < o.MinDelay {
		o.MaxDelay = o.MinDelay
	}
	if o.ErrorNotice == "" {
		o.ErrorNotice = DefaultErrorNotice
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	return o
}

// pacing is the minimum gap between two sends.
func (o MultiMessageOptions) pacing() time.Duration {
	return min(max(o.DefaultDelay, o.MinDelay), o.MaxDelay)
}

type multiMessageState struct {
	fullContent    string
	sentLength     int
	messagesSent   int
	isFirstMessage bool
	lastSendTime   time.Time
}

// MultiMessageStrategy splits one generated stream into several messages at a marker.
// Text actions must carry cumulative content; sentLength is an offset into it.
type MultiMessageStrategy struct {
	ch     channel.Channel
	sctx   Context
	opts   MultiMessageOptions
	logger *slog.Logger

	state     multiMessageState
	firstID   string
	firstTime time.Time
}

// NewMultiMessageStrategy creates a multi-message strategy for one reply.
func NewMultiMessageStrategy(log *slog.Logger, ch channel.Channel, sctx Context, opts MultiMessageOptions) *MultiMessageStrategy {
	if log == nil {
		log = slog.Default()
	}
	return &MultiMessageStrategy{
		ch:     ch,
		sctx:   sctx,
		opts:   opts.normalized(),
		logger: log.With(slog.String("strategy", string(ModeMultiMessage)), slog.String("trigger_id", sctx.TriggerMessageID)),
		state:  multiMessageState{isFirstMessage: true},
	}
}

func (s *MultiMessageStrategy) OnAccept(context.Context) error {
	s.logger.Debug("reply accepted")
	return nil
}

func (s *MultiMessageStrategy) OnStartReply(context.Context) error { return nil }

func (s *MultiMessageStrategy) OnSend(ctx context.Context, action stream.StreamAction) error {
	if action.Type != stream.ActionText {
		return nil
	}
	s.track(action.Content)
	marker := s.opts.SplitMarker
	for s.state.messagesSent < s.opts.MaxMessages-1 {
		rest := s.state.fullContent[s.state.sentLength:]
		idx := strings.Index(rest, marker)
		if idx < 0 {
			break
		}
		segment := strings.TrimSpace(rest[:idx])
		s.state.sentLength += idx + len(marker)
		if segment == "" {
			continue
		}
		if err := s.sendWithDelay(ctx, segment); err != nil {
			return err
		}
	}
	return nil
}

// OnToolStatus is ignored; tool progress has no place in immutable messages.
func (s *MultiMessageStrategy) OnToolStatus(context.Context, stream.ToolFeedback) error { return nil }

// OnSuccess flushes everything not yet sent as one final message.
func (s *MultiMessageStrategy) OnSuccess(ctx context.Context, content string) error {
	if content != "" {
		s.track(content)
	}
	rest := s.state.fullContent[s.state.sentLength:]
	s.state.sentLength = len(s.state.fullContent)
	rest = strings.TrimSpace(StripSplitMarkers(rest, s.opts.SplitMarker))
	if rest == "" {
		return nil
	}
	return s.sendWithDelay(ctx, rest)
}

func (s *MultiMessageStrategy) OnFailed(ctx context.Context, err error) error {
	s.logger.Warn("reply failed", slog.Any("error", err))
	_, sendErr := s.send(ctx, s.opts.ErrorNotice)
	return sendErr
}

func (s *MultiMessageStrategy) OnEnd(context.Context) error {
	s.state.fullContent = ""
	s.state.sentLength = 0
	s.logger.Debug("reply ended", slog.Int("messages_sent", s.state.messagesSent))
	return nil
}

func (s *MultiMessageStrategy) RepresentativeMessageID() (string, bool) {
	return s.firstID, s.firstID != ""
}

func (s *MultiMessageStrategy) CreationTime() time.Time { return s.firstTime }

// track adopts full as the current content. A left-trimmed copy of the tracked content (the
// SUCCESS payload is trimmed) keeps the untrimmed lead so sentLength stays valid. Content that
// no longer extends the sent prefix belongs to a new attempt and is split from the start.
func (s *MultiMessageStrategy) track(full string) {
	sent := s.state.fullContent[:s.state.sentLength]
	trimmed := strings.TrimLeftFunc(sent, unicode.IsSpace)
	switch {
	case strings.HasPrefix(full, sent):
	case strings.HasPrefix(full, trimmed):
		full = sent[:len(sent)-len(trimmed)] + full
	default:
		s.logger.Debug("content restarted, rebasing split offset", slog.Int("sent_length", s.state.sentLength))
		s.state.sentLength = 0
	}
	s.state.fullContent = full
}

func (s *MultiMessageStrategy) sendWithDelay(ctx context.Context, text string) error {
	if !s.state.isFirstMessage {
		elapsed := s.opts.Clock().Sub(s.state.lastSendTime)
		if wait := s.opts.pacing() - elapsed; wait > 0 {
			if err := s.opts.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	if _, err := s.send(ctx, text); err != nil {
		return err
	}
	s.state.messagesSent++
	s.state.lastSendTime = s.opts.Clock()
	return nil
}

// send replies to the trigger for the first message and posts to the chat afterwards.
func (s *MultiMessageStrategy) send(ctx context.Context, text string) (channel.SentMessage, error) {
	var (
		sent channel.SentMessage
		err  error
	)
	if s.state.isFirstMessage {
		sent, err = s.ch.SendReply(ctx, s.sctx.TriggerMessageID, channel.Text(text))
	} else {
		sent, err = s.ch.SendMessage(ctx, s.sctx.ChatID, channel.Text(text))
	}
	if err != nil {
		return sent, err
	}
	if s.state.isFirstMessage {
		s.state.isFirstMessage = false
		s.firstID = sent.ID
		s.firstTime = sent.CreatedAt
	}
	return sent, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Strategy = (*MultiMessageStrategy)(nil)
