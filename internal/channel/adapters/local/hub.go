package local

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize is the default per-subscriber channel buffer.
const DefaultBufferSize = 64

// EventType identifies what happened to a chat.
type EventType string

const (
	EventTrigger        EventType = "trigger"
	EventMessageCreated EventType = "message_created"
	EventCardCreated    EventType = "card_created"
	EventCardUpdated    EventType = "card_updated"
	EventCardClosed     EventType = "card_closed"
	EventCardFailed     EventType = "card_failed"
	EventReplyEnded     EventType = "reply_ended"
)

// Event is published to chat subscribers.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id"`
	TriggerID string    `json:"trigger_id,omitempty"`
	Record    *Record   `json:"record,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Hub is a pub/sub hub that routes chat events to local subscribers by chat id.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]map[string]chan Event
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{streams: map[string]map[string]chan Event{}}
}

// Subscribe registers a subscriber for chatID and returns its stream id, the event channel,
// and a cancel function that is safe to call more than once.
func (h *Hub) Subscribe(chatID string, buffer int) (string, <-chan Event, func()) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		ch := make(chan Event)
		close(ch)
		return "", ch, func() {}
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	streamID := uuid.NewString()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	streams, ok := h.streams[chatID]
	if !ok {
		streams = map[string]chan Event{}
		h.streams[chatID] = streams
	}
	streams[streamID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			streams := h.streams[chatID]
			if current, ok := streams[streamID]; ok {
				delete(streams, streamID)
				close(current)
			}
			if len(streams) == 0 {
				delete(h.streams, chatID)
			}
		})
	}
	return streamID, ch, cancel
}

// Publish delivers ev to every subscriber of ev.ChatID. Slow receivers miss events.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.streams[ev.ChatID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
