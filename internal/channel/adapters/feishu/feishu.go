package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"golang.org/x/time/rate"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/config"
)

// Name is the channel name of Feishu triggers.
const Name = "feishu"

// DefaultCardUpdateInterval keeps card patches under Feishu's per-message update limit.
const DefaultCardUpdateInterval = 300 * time.Millisecond

// Options tunes the adapter.
type Options struct {
	CardUpdateInterval time.Duration
	Policy             channel.OutboundPolicy
}

// messageAPI is the part of the Lark IM v1 message service the adapter calls.
type messageAPI interface {
	Reply(ctx context.Context, req *larkim.ReplyMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.ReplyMessageResp, error)
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
	Patch(ctx context.Context, req *larkim.PatchMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.PatchMessageResp, error)
}

// Adapter delivers replies through the Feishu IM API.
type Adapter struct {
	cfg     config.FeishuConfig
	im      messageAPI
	opts    Options
	logger  *slog.Logger
	cardsMu sync.Mutex
	cards   map[string]*cardState
}

type cardState struct {
	mu      sync.Mutex
	view    cardView
	limiter *rate.Limiter
}

// NewAdapter creates a Feishu adapter from app credentials.
func NewAdapter(log *slog.Logger, cfg config.FeishuConfig, opts Options) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if opts.CardUpdateInterval <= 0 {
		opts.CardUpdateInterval = DefaultCardUpdateInterval
	}
	opts.Policy = channel.NormalizeOutboundPolicy(opts.Policy)
	return &Adapter{
		cfg:    cfg,
		im:     lark.NewClient(cfg.AppID, cfg.AppSecret).Im.V1.Message,
		opts:   opts,
		logger: log.With(slog.String("adapter", Name)),
		cards:  map[string]*cardState{},
	}
}

func (a *Adapter) Name() string { return Name }

// SendReply replies to the trigger message. Text over the chunk limit is sent as several replies;
// the first one is returned.
func (a *Adapter) SendReply(ctx context.Context, triggerID string, msg channel.Message) (channel.SentMessage, error) {
	chunks := channel.ChunkText(msg.Text, a.opts.Policy.TextChunkLimit)
	if len(chunks) == 0 {
		return channel.SentMessage{}, fmt.Errorf("message is required")
	}
	var first channel.SentMessage
	for i, chunk := range chunks {
		sent, err := a.reply(ctx, triggerID, larkim.MsgTypeText, textContent(chunk))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = sent
		}
	}
	return first, nil
}

// SendMessage posts to a chat. chatID may carry an open_id:/user_id:/chat_id: prefix; bare ids are chat ids.
func (a *Adapter) SendMessage(ctx context.Context, chatID string, msg channel.Message) (channel.SentMessage, error) {
	receiveID, receiveType, err := resolveFeishuReceiveID(strings.TrimSpace(chatID))
	if err != nil {
		return channel.SentMessage{}, err
	}
	chunks := channel.ChunkText(msg.Text, a.opts.Policy.TextChunkLimit)
	if len(chunks) == 0 {
		return channel.SentMessage{}, fmt.Errorf("message is required")
	}
	var first channel.SentMessage
	for i, chunk := range chunks {
		sent, err := a.create(ctx, receiveID, receiveType, larkim.MsgTypeText, textContent(chunk))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = sent
		}
	}
	return first, nil
}

// CreateReplyCard replies to the trigger with an empty interactive card.
func (a *Adapter) CreateReplyCard(ctx context.Context, triggerID string) (*channel.Card, error) {
	view := newCardView()
	content, err := view.render()
	if err != nil {
		return nil, err
	}
	sent, err := a.reply(ctx, triggerID, larkim.MsgTypeInteractive, content)
	if err != nil {
		return nil, err
	}
	st := &cardState{
		view:    view,
		limiter: rate.NewLimiter(rate.Every(a.opts.CardUpdateInterval), 1),
	}
	a.cardsMu.Lock()
	a.cards[sent.ID] = st
	a.cardsMu.Unlock()
	return &channel.Card{MessageID: sent.ID, CreatedAt: sent.CreatedAt}, nil
}

// UpdateRegion changes one region. Updates arriving faster than the card update interval are
// coalesced into the next patch.
func (a *Adapter) UpdateRegion(ctx context.Context, card *channel.Card, region channel.Region, text string) error {
	st, err := a.card(card)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.view.set(region, text)
	if !st.limiter.Allow() {
		return nil
	}
	return a.patch(ctx, card.MessageID, st.view)
}

// CloseCard renders the final text and always patches.
func (a *Adapter) CloseCard(ctx context.Context, card *channel.Card, finalText string) error {
	return a.finish(ctx, card, func(v *cardView) {
		v.set(channel.RegionText, finalText)
		v.set(channel.RegionStatus, "")
		v.state = cardClosed
	})
}

// FailCard renders the error state and always patches.
func (a *Adapter) FailCard(ctx context.Context, card *channel.Card, message string) error {
	return a.finish(ctx, card, func(v *cardView) {
		v.set(channel.RegionStatus, message)
		v.state = cardFailed
	})
}

func (a *Adapter) finish(ctx context.Context, card *channel.Card, fn func(*cardView)) error {
	st, err := a.card(card)
	if err != nil {
		return err
	}
	defer func() {
		a.cardsMu.Lock()
		delete(a.cards, card.MessageID)
		a.cardsMu.Unlock()
	}()
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.view)
	if err := st.limiter.Wait(ctx); err != nil {
		return err
	}
	return a.patch(ctx, card.MessageID, st.view)
}

func (a *Adapter) card(card *channel.Card) (*cardState, error) {
	if card == nil || card.MessageID == "" {
		return nil, fmt.Errorf("card is required")
	}
	a.cardsMu.Lock()
	defer a.cardsMu.Unlock()
	st, ok := a.cards[card.MessageID]
	if !ok {
		return nil, fmt.Errorf("unknown card %s", card.MessageID)
	}
	return st, nil
}

// reply and create build the request once, so every retry carries the same idempotency uuid.
func (a *Adapter) reply(ctx context.Context, messageID, msgType, content string) (channel.SentMessage, error) {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			Content(content).
			MsgType(msgType).
			Uuid(uuid.NewString()).
			Build()).
		Build()
	return channel.Retry(ctx, a.logger, a.opts.Policy, "feishu reply", func(ctx context.Context) (channel.SentMessage, error) {
		resp, err := a.im.Reply(ctx, req)
		if err != nil {
			return channel.SentMessage{}, err
		}
		if !resp.Success() {
			return channel.SentMessage{}, fmt.Errorf("feishu reply failed: %s (code: %d)", resp.Msg, resp.Code)
		}
		return sentMessage(resp.Data.MessageId, resp.Data.CreateTime), nil
	})
}

func (a *Adapter) create(ctx context.Context, receiveID, receiveType, msgType, content string) (channel.SentMessage, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Uuid(uuid.NewString()).
			Build()).
		Build()
	return channel.Retry(ctx, a.logger, a.opts.Policy, "feishu send", func(ctx context.Context) (channel.SentMessage, error) {
		resp, err := a.im.Create(ctx, req)
		if err != nil {
			return channel.SentMessage{}, err
		}
		if !resp.Success() {
			return channel.SentMessage{}, fmt.Errorf("feishu send failed: %s (code: %d)", resp.Msg, resp.Code)
		}
		return sentMessage(resp.Data.MessageId, resp.Data.CreateTime), nil
	})
}

func (a *Adapter) patch(ctx context.Context, messageID string, view cardView) error {
	content, err := view.render()
	if err != nil {
		return err
	}
	req := larkim.NewPatchMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewPatchMessageReqBodyBuilder().Content(content).Build()).
		Build()
	resp, err := a.im.Patch(ctx, req)
	if err != nil {
		a.logger.Warn("card patch failed", slog.String("message_id", messageID), slog.Any("error", err))
		return err
	}
	if !resp.Success() {
		a.logger.Warn("card patch failed", slog.String("message_id", messageID), slog.Int("code", resp.Code), slog.String("msg", resp.Msg))
		return fmt.Errorf("feishu patch failed: %s (code: %d)", resp.Msg, resp.Code)
	}
	return nil
}

func textContent(text string) string {
	payload, _ := json.Marshal(map[string]string{"text": text})
	return string(payload)
}

// sentMessage converts the id and millisecond create_time returned by Feishu.
func sentMessage(id, createTime *string) channel.SentMessage {
	sent := channel.SentMessage{CreatedAt: time.Now().UTC()}
	if id != nil {
		sent.ID = *id
	}
	if createTime != nil {
		if ms, err := strconv.ParseInt(*createTime, 10, 64); err == nil {
			sent.CreatedAt = time.UnixMilli(ms).UTC()
		}
	}
	return sent
}

func resolveFeishuReceiveID(raw string) (string, string, error) {
	if raw == "" {
		return "", "", fmt.Errorf("feishu target is required")
	}
	if strings.HasPrefix(raw, "open_id:") {
		return strings.TrimPrefix(raw, "open_id:"), larkim.ReceiveIdTypeOpenId, nil
	}
	if strings.HasPrefix(raw, "user_id:") {
		return strings.TrimPrefix(raw, "user_id:"), larkim.ReceiveIdTypeUserId, nil
	}
	if strings.HasPrefix(raw, "chat_id:") {
		return strings.TrimPrefix(raw, "chat_id:"), larkim.ReceiveIdTypeChatId, nil
	}
	return raw, larkim.ReceiveIdTypeChatId, nil
}

var _ channel.Channel = (*Adapter)(nil)
