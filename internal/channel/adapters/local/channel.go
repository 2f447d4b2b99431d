// Package local is an in-process channel used by the HTTP API and tests. It keeps a bounded
// transcript per chat and publishes every change to hub subscribers.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/replyd/internal/channel"
)

// Name is the channel name of local triggers.
const Name = "local"

// DefaultHistoryLimit bounds the per-chat transcript.
const DefaultHistoryLimit = 200

// Record kinds and card states.
const (
	KindText    = "text"
	KindCard    = "card"
	KindTrigger = "trigger"

	CardOpen   = "open"
	CardClosed = "closed"
	CardFailed = "failed"
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrCardFinished   = errors.New("card already finished")
)

// Record is one transcript entry.
type Record struct {
	ID        string                    `json:"id"`
	ChatID    string                    `json:"chat_id"`
	Kind      string                    `json:"kind"`
	ReplyTo   string                    `json:"reply_to,omitempty"`
	Text      string                    `json:"text"`
	Regions   map[channel.Region]string `json:"regions,omitempty"`
	State     string                    `json:"state,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

func (r *Record) clone() *Record {
	c := *r
	if r.Regions != nil {
		c.Regions = make(map[channel.Region]string, len(r.Regions))
		for k, v := range r.Regions {
			c.Regions[k] = v
		}
	}
	return &c
}

// Channel implements channel.Channel in memory.
type Channel struct {
	hub    *Hub
	limit  int
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	chats map[string][]*Record
	byID  map[string]*Record
}

// New creates a local channel publishing to hub.
func New(log *slog.Logger, hub *Hub) *Channel {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub()
	}
	return &Channel{
		hub:    hub,
		limit:  DefaultHistoryLimit,
		now:    time.Now,
		logger: log.With(slog.String("adapter", Name)),
		chats:  map[string][]*Record{},
		byID:   map[string]*Record{},
	}
}

func (c *Channel) Name() string { return Name }

// Hub returns the hub events are published to.
func (c *Channel) Hub() *Hub { return c.hub }

// RecordTrigger stores an inbound message so replies can find their chat.
func (c *Channel) RecordTrigger(t channel.Trigger) channel.Trigger {
	if t.MessageID == "" {
		t.MessageID = "lm_" + uuid.NewString()
	}
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = c.now().UTC()
	}
	t.Channel = Name
	rec := &Record{
		ID:        t.MessageID,
		ChatID:    t.ChatID,
		Kind:      KindTrigger,
		ReplyTo:   t.RootID,
		Text:      t.Text,
		CreatedAt: t.ReceivedAt,
		UpdatedAt: t.ReceivedAt,
	}
	c.mu.Lock()
	c.appendLocked(rec)
	c.mu.Unlock()
	c.publish(EventTrigger, t.MessageID, rec)
	return t
}

// EndReply publishes the end of the reply to triggerID.
func (c *Channel) EndReply(chatID, triggerID string, err error) {
	ev := Event{Type: EventReplyEnded, ChatID: chatID, TriggerID: triggerID}
	if err != nil {
		ev.Error = err.Error()
	}
	c.hub.Publish(ev)
}

// Messages returns a copy of the transcript of chatID, oldest first.
func (c *Channel) Messages(chatID string) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	recs := c.chats[chatID]
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, *r.clone())
	}
	return out
}

// SendReply implements channel.Messenger.
func (c *Channel) SendReply(_ context.Context, triggerID string, msg channel.Message) (channel.SentMessage, error) {
	if msg.IsEmpty() {
		return channel.SentMessage{}, errors.New("message is required")
	}
	chatID, err := c.chatOf(triggerID)
	if err != nil {
		return channel.SentMessage{}, err
	}
	return c.send(chatID, triggerID, msg), nil
}

// SendMessage implements channel.Messenger.
func (c *Channel) SendMessage(_ context.Context, chatID string, msg channel.Message) (channel.SentMessage, error) {
	if strings.TrimSpace(chatID) == "" {
		return channel.SentMessage{}, errors.New("chat id is required")
	}
	if msg.IsEmpty() {
		return channel.SentMessage{}, errors.New("message is required")
	}
	return c.send(chatID, "", msg), nil
}

func (c *Channel) send(chatID, replyTo string, msg channel.Message) channel.SentMessage {
	now := c.now().UTC()
	rec := &Record{
		ID:        "lm_" + uuid.NewString(),
		ChatID:    chatID,
		Kind:      KindText,
		ReplyTo:   replyTo,
		Text:      msg.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.mu.Lock()
	c.appendLocked(rec)
	c.mu.Unlock()
	c.publish(EventMessageCreated, replyTo, rec)
	return channel.SentMessage{ID: rec.ID, CreatedAt: now}
}

// CreateReplyCard implements channel.CardRenderer.
func (c *Channel) CreateReplyCard(_ context.Context, triggerID string) (*channel.Card, error) {
	chatID, err := c.chatOf(triggerID)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()
	rec := &Record{
		ID:        "lc_" + uuid.NewString(),
		ChatID:    chatID,
		Kind:      KindCard,
		ReplyTo:   triggerID,
		Regions:   map[channel.Region]string{},
		State:     CardOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.mu.Lock()
	c.appendLocked(rec)
	c.mu.Unlock()
	c.publish(EventCardCreated, triggerID, rec)
	return &channel.Card{MessageID: rec.ID, CreatedAt: now}, nil
}

// UpdateRegion implements channel.CardRenderer.
func (c *Channel) UpdateRegion(_ context.Context, card *channel.Card, region channel.Region, text string) error {
	return c.mutateCard(card, EventCardUpdated, func(r *Record) {
		r.Regions[region] = text
	})
}

// CloseCard implements channel.CardRenderer.
func (c *Channel) CloseCard(_ context.Context, card *channel.Card, finalText string) error {
	return c.mutateCard(card, EventCardClosed, func(r *Record) {
		r.Text = finalText
		r.Regions[channel.RegionText] = finalText
		delete(r.Regions, channel.RegionStatus)
		r.State = CardClosed
	})
}

// FailCard implements channel.CardRenderer.
func (c *Channel) FailCard(_ context.Context, card *channel.Card, message string) error {
	return c.mutateCard(card, EventCardFailed, func(r *Record) {
		r.Regions[channel.RegionStatus] = message
		r.State = CardFailed
	})
}

func (c *Channel) mutateCard(card *channel.Card, ev EventType, fn func(*Record)) error {
	if card == nil {
		return errors.New("card is required")
	}
	c.mu.Lock()
	rec, ok := c.byID[card.MessageID]
	if !ok || rec.Kind != KindCard {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownMessage, card.MessageID)
	}
	if rec.State != CardOpen {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCardFinished, card.MessageID)
	}
	fn(rec)
	rec.UpdatedAt = c.now().UTC()
	snapshot := rec.clone()
	c.mu.Unlock()
	c.publish(ev, snapshot.ReplyTo, snapshot)
	return nil
}

func (c *Channel) chatOf(triggerID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.byID[triggerID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMessage, triggerID)
	}
	return rec.ChatID, nil
}

func (c *Channel) appendLocked(rec *Record) {
	recs := append(c.chats[rec.ChatID], rec)
	if over := len(recs) - c.limit; over > 0 {
		for _, old := range recs[:over] {
			delete(c.byID, old.ID)
		}
		recs = append([]*Record(nil), recs[over:]...)
	}
	c.chats[rec.ChatID] = recs
	c.byID[rec.ID] = rec
}

func (c *Channel) publish(t EventType, triggerID string, rec *Record) {
	c.hub.Publish(Event{Type: t, ChatID: rec.ChatID, TriggerID: triggerID, Record: rec.clone()})
	c.logger.Debug("local event", slog.String("type", string(t)), slog.String("chat_id", rec.ChatID), slog.String("id", rec.ID))
}

var _ channel.Channel = (*Channel)(nil)
