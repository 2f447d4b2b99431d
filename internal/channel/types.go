// Package channel defines the outbound messaging and card contracts the reply engine
// delivers through, plus the inbound trigger shape shared by channel adapters.
package channel

import (
	"context"
	"strings"
	"time"
)

// Trigger is an inbound message that asked for a reply.
type Trigger struct {
	Channel    string
	MessageID  string
	ChatID     string
	UserID     string
	IsP2P      bool
	RootID     string
	Text       string
	ReceivedAt time.Time
}

// TriggerHandler consumes triggers produced by an adapter.
type TriggerHandler func(ctx context.Context, trigger Trigger) error

// Message is outbound content. Format is adapter specific; empty means plain text.
type Message struct {
	Text   string
	Format string
}

// Text builds a plain text message.
func Text(s string) Message { return Message{Text: s} }

// IsEmpty reports whether the message has no visible text.
func (m Message) IsEmpty() bool { return strings.TrimSpace(m.Text) == "" }

// SentMessage identifies a delivered message.
type SentMessage struct {
	ID        string
	CreatedAt time.Time
}

// Messenger sends discrete, immutable messages.
type Messenger interface {
	// SendReply sends msg as a reply to the trigger message.
	SendReply(ctx context.Context, triggerID string, msg Message) (SentMessage, error)
	// SendMessage sends msg to the chat without a reply anchor.
	SendMessage(ctx context.Context, chatID string, msg Message) (SentMessage, error)
}

// Region is an independently updated area of a card.
type Region string

const (
	RegionThink  Region = "think"
	RegionText   Region = "text"
	RegionStatus Region = "status"
)

// Card is a handle to a live message created by a CardRenderer.
type Card struct {
	MessageID string
	CreatedAt time.Time
}

// CardRenderer maintains a single mutable message per reply.
type CardRenderer interface {
	// CreateReplyCard creates an empty card and sends it as a reply to the trigger message.
	CreateReplyCard(ctx context.Context, triggerID string) (*Card, error)
	UpdateRegion(ctx context.Context, card *Card, region Region, text string) error
	CloseCard(ctx context.Context, card *Card, finalText string) error
	FailCard(ctx context.Context, card *Card, message string) error
}

// Channel is an adapter offering both delivery styles.
type Channel interface {
	Name() string
	Messenger
	CardRenderer
}
