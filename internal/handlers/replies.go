package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/channel/adapters/local"
	"github.com/memohai/replyd/internal/delivery"
	"github.com/memohai/replyd/internal/logger"
	"github.com/memohai/replyd/internal/orchestrator"
)

// Deliverer is the reply engine entry point.
type Deliverer interface {
	DeliverReply(ctx context.Context, trigger channel.Trigger, models []orchestrator.ModelConfig, selector delivery.Selector) error
}

// ReplyHandler accepts triggers for the local channel and delivers replies in the background.
type ReplyHandler struct {
	engine   Deliverer
	local    *local.Channel
	models   []orchestrator.ModelConfig
	selector delivery.Selector
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReplyHandler creates the trigger API. selector applies when a request names no mode.
func NewReplyHandler(log *slog.Logger, engine Deliverer, ch *local.Channel, models []orchestrator.ModelConfig, selector delivery.Selector) *ReplyHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReplyHandler{
		engine:   engine,
		local:    ch,
		models:   models,
		selector: selector,
		logger:   logger.Component(log, "reply_handler"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register mounts POST /replies.
func (h *ReplyHandler) Register(e *echo.Echo) {
	e.POST("/replies", h.CreateReply)
}

// ReplyRequest is the body of POST /replies.
type ReplyRequest struct {
	ChatID    string `json:"chat_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"`
	RootID    string `json:"root_id,omitempty"`
	P2P       bool   `json:"p2p"`
	Mode      string `json:"mode,omitempty"`
}

// ReplyAccepted is the 202 body of POST /replies.
type ReplyAccepted struct {
	TriggerID string `json:"trigger_id"`
	ChatID    string `json:"chat_id"`
	StreamURL string `json:"stream_url"`
}

// CreateReply records the trigger and starts DeliverReply without waiting for it.
func (h *ReplyHandler) CreateReply(c echo.Context) error {
	var req ReplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	req.Text = strings.TrimSpace(req.Text)
	if req.ChatID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat_id is required")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	selector := h.selector
	if req.Mode != "" {
		mode, err := delivery.ParseMode(req.Mode)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		selector = delivery.Fixed(mode)
	}
	if err := h.ctx.Err(); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "shutting down")
	}

	trigger := h.local.RecordTrigger(channel.Trigger{
		MessageID: strings.TrimSpace(req.MessageID),
		ChatID:    req.ChatID,
		UserID:    strings.TrimSpace(req.UserID),
		IsP2P:     req.P2P,
		RootID:    strings.TrimSpace(req.RootID),
		Text:      req.Text,
	})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		err := h.engine.DeliverReply(h.ctx, trigger, h.models, selector)
		if err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Warn("reply failed", slog.String("trigger_id", trigger.MessageID), slog.Any("error", err))
		}
		h.local.EndReply(trigger.ChatID, trigger.MessageID, err)
	}()

	return c.JSON(http.StatusAccepted, ReplyAccepted{
		TriggerID: trigger.MessageID,
		ChatID:    trigger.ChatID,
		StreamURL: fmt.Sprintf("/chats/%s/stream?until=%s", trigger.ChatID, trigger.MessageID),
	})
}

// Close cancels in-flight replies and waits for them to reach END.
func (h *ReplyHandler) Close(ctx context.Context) error {
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
