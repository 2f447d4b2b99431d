package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/replyd/internal/channel/adapters/local"
)

// ChatHandler exposes the local channel transcript and its live event stream.
type ChatHandler struct {
	local *local.Channel
}

// NewChatHandler creates the chat read API.
func NewChatHandler(ch *local.Channel) *ChatHandler {
	return &ChatHandler{local: ch}
}

// Register mounts the chat routes.
func (h *ChatHandler) Register(e *echo.Echo) {
	group := e.Group("/chats/:chat_id")
	group.GET("/messages", h.ListMessages)
	group.GET("/stream", h.Stream)
}

type messagesResponse struct {
	ChatID   string         `json:"chat_id"`
	Messages []local.Record `json:"messages"`
}

// ListMessages returns the chat transcript, oldest first.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	chatID := strings.TrimSpace(c.Param("chat_id"))
	if chatID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat id is required")
	}
	return c.JSON(http.StatusOK, messagesResponse{ChatID: chatID, Messages: h.local.Messages(chatID)})
}

// Stream sends chat events as server-sent events. With ?until=<trigger id> the stream ends
// after that trigger's reply_ended event.
func (h *ChatHandler) Stream(c echo.Context) error {
	chatID := strings.TrimSpace(c.Param("chat_id"))
	if chatID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat id is required")
	}
	until := strings.TrimSpace(c.QueryParam("until"))

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	_, events, cancel := h.local.Hub().Subscribe(chatID, local.DefaultBufferSize)
	defer cancel()

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()
	writer := bufio.NewWriter(c.Response().Writer)

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", ev.Type, data)
			_ = writer.Flush()
			flusher.Flush()
			if until != "" && ev.Type == local.EventReplyEnded && ev.TriggerID == until {
				return nil
			}
		}
	}
}
