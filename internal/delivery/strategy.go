// Package delivery turns reply lifecycle events into outbound platform messages.
package delivery

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/protocol"
)

// ErrStrategyNotFound is returned when no factory is registered for a mode.
var ErrStrategyNotFound = errors.New("delivery strategy not found")

// Mode names a delivery strategy.
type Mode string

const (
	ModeCard         Mode = "card"
	ModeMultiMessage Mode = "multi_message"
)

// ParseMode validates a configured mode name. Empty selects ModeCard.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.TrimSpace(strings.ToLower(raw))) {
	case "", ModeCard:
		return ModeCard, nil
	case ModeMultiMessage:
		return ModeMultiMessage, nil
	}
	return "", fmt.Errorf("%w: %q", ErrStrategyNotFound, raw)
}

// Context identifies the reply a strategy instance serves. It is created once per reply.
type Context struct {
	TriggerMessageID string
	ChatID           string
	UserID           string
	IsP2P            bool
	RootID           string
}

// ContextFromTrigger builds a strategy context for trigger.
func ContextFromTrigger(t channel.Trigger) Context {
	return Context{
		TriggerMessageID: t.MessageID,
		ChatID:           t.ChatID,
		UserID:           t.UserID,
		IsP2P:            t.IsP2P,
		RootID:           t.RootID,
	}
}

// Strategy is a protocol handler that also reports the message representing the reply.
type Strategy interface {
	protocol.Handler
	// RepresentativeMessageID is the card id, or the id of the first message sent as a reply.
	RepresentativeMessageID() (string, bool)
	// CreationTime is when the representative message was created; zero before it exists.
	CreationTime() time.Time
}

// Factory creates a strategy for one reply on ch.
type Factory func(ch channel.Channel, sctx Context) Strategy

// Registration binds a mode to its factory.
type Registration struct {
	Mode    Mode
	Factory Factory
}

// Registry is an immutable mode -> factory table built at startup.
type Registry struct {
	factories map[Mode]Factory
}

// NewRegistry builds a registry from explicit registrations.
func NewRegistry(regs ...Registration) (*Registry, error) {
	factories := make(map[Mode]Factory, len(regs))
	for _, reg := range regs {
		if reg.Mode == "" || reg.Factory == nil {
			return nil, errors.New("delivery registration requires mode and factory")
		}
		if _, dup := factories[reg.Mode]; dup {
			return nil, fmt.Errorf("delivery strategy %q registered twice", reg.Mode)
		}
		factories[reg.Mode] = reg.Factory
	}
	return &Registry{factories: factories}, nil
}

// New creates the strategy registered for mode.
func (r *Registry) New(mode Mode, ch channel.Channel, sctx Context) (Strategy, error) {
	f, ok := r.factories[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, mode)
	}
	return f(ch, sctx), nil
}

// Modes lists registered modes in sorted order.
func (r *Registry) Modes() []Mode {
	out := make([]Mode, 0, len(r.factories))
	for m := range r.factories {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Selector chooses the delivery mode of a reply.
type Selector func(sctx Context) Mode

// Fixed always selects mode.
func Fixed(mode Mode) Selector {
	return func(Context) Mode { return mode }
}

// SelectByChat selects ModeMultiMessage for the listed chats and defaultMode otherwise.
func SelectByChat(defaultMode Mode, multiMessageChats []string) Selector {
	chats := make(map[string]struct{}, len(multiMessageChats))
	for _, id := range multiMessageChats {
		if id = strings.TrimSpace(id); id != "" {
			chats[id] = struct{}{}
		}
	}
	return func(sctx Context) Mode {
		if _, ok := chats[sctx.ChatID]; ok {
			return ModeMultiMessage
		}
		return defaultMode
	}
}

// StripSplitMarkers removes every occurrence of marker from s.
func StripSplitMarkers(s, marker string) string {
	if marker == "" {
		return s
	}
	return strings.ReplaceAll(s, marker, "")
}
