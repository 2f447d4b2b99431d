// Package telegram delivers replies through the Telegram Bot API. Telegram has no updatable
// cards, so a card is a bot message that is edited in place.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/config"
)

// Name is the channel name of Telegram triggers.
const Name = "telegram"

// maxTextLen is Telegram's limit for one message, counted in runes after entity parsing.
const maxTextLen = 4096

// Options tunes the adapter.
type Options struct {
	CardUpdateInterval time.Duration
	Policy             channel.OutboundPolicy
}

// botAPI is the part of *tgbotapi.BotAPI used for delivery.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Adapter delivers replies as Telegram messages. Message ids are "<chat_id>:<message_id>"
// because Telegram message ids are only unique within a chat.
type Adapter struct {
	api     *tgbotapi.BotAPI
	bot     botAPI
	self    string
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

// NewAdapter authenticates the bot token against the Bot API.
func NewAdapter(log *slog.Logger, cfg config.TelegramConfig, opts Options) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("telegram bot_token is required")
	}
	if err := tgbotapi.SetLogger(newSlogBotLogger(log)); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	a := newAdapter(log, api, api.Self.UserName, opts)
	a.api = api
	return a, nil
}

func newAdapter(log *slog.Logger, bot botAPI, self string, opts Options) *Adapter {
	if opts.CardUpdateInterval <= 0 {
		opts.CardUpdateInterval = config.DefaultTelegramEditEvery
	}
	if opts.Policy.TextChunkLimit <= 0 || opts.Policy.TextChunkLimit > maxTextLen {
		opts.Policy.TextChunkLimit = maxTextLen
	}
	opts.Policy = channel.NormalizeOutboundPolicy(opts.Policy)
	return &Adapter{
		bot:    bot,
		self:   self,
		opts:   opts,
		logger: log.With(slog.String("adapter", Name)),
		cards:  map[string]*cardState{},
	}
}

func (a *Adapter) Name() string { return Name }

// SendReply replies to the trigger message. Only the first chunk of long text carries the reply anchor.
func (a *Adapter) SendReply(ctx context.Context, triggerID string, msg channel.Message) (channel.SentMessage, error) {
	chatID, messageID, err := parseMessageRef(triggerID)
	if err != nil {
		return channel.SentMessage{}, err
	}
	return a.sendChunks(ctx, msg, func(text string, first bool) tgbotapi.MessageConfig {
		cfg := tgbotapi.NewMessage(chatID, text)
		if first {
			cfg.ReplyToMessageID = messageID
		}
		return cfg
	})
}

// SendMessage posts to a chat. chatID is a numeric chat id or a public @channel username.
func (a *Adapter) SendMessage(ctx context.Context, chatID string, msg channel.Message) (channel.SentMessage, error) {
	target := strings.TrimSpace(chatID)
	if target == "" {
		return channel.SentMessage{}, fmt.Errorf("telegram target is required")
	}
	if strings.HasPrefix(target, "@") {
		return a.sendChunks(ctx, msg, func(text string, _ bool) tgbotapi.MessageConfig {
			return tgbotapi.NewMessageToChannel(target, text)
		})
	}
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return channel.SentMessage{}, fmt.Errorf("telegram target must be @username or chat_id: %w", err)
	}
	return a.sendChunks(ctx, msg, func(text string, _ bool) tgbotapi.MessageConfig {
		return tgbotapi.NewMessage(id, text)
	})
}

func (a *Adapter) sendChunks(ctx context.Context, msg channel.Message, build func(text string, first bool) tgbotapi.MessageConfig) (channel.SentMessage, error) {
	chunks := channel.ChunkText(msg.Text, a.opts.Policy.TextChunkLimit)
	if len(chunks) == 0 {
		return channel.SentMessage{}, fmt.Errorf("message is required")
	}
	var first channel.SentMessage
	for i, chunk := range chunks {
		text, parseMode := formatOutput(chunk, msg.Format)
		cfg := build(text, i == 0)
		cfg.ParseMode = parseMode
		sent, err := a.send(ctx, cfg)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = sent
		}
	}
	return first, nil
}

// CreateReplyCard replies to the trigger with a placeholder message that later edits fill in.
func (a *Adapter) CreateReplyCard(ctx context.Context, triggerID string) (*channel.Card, error) {
	chatID, messageID, err := parseMessageRef(triggerID)
	if err != nil {
		return nil, err
	}
	view := cardView{}
	cfg := tgbotapi.NewMessage(chatID, view.render())
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.ReplyToMessageID = messageID
	sent, err := a.send(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.cardsMu.Lock()
	a.cards[sent.ID] = &cardState{
		view:    view,
		limiter: rate.NewLimiter(rate.Every(a.opts.CardUpdateInterval), 1),
	}
	a.cardsMu.Unlock()
	return &channel.Card{MessageID: sent.ID, CreatedAt: sent.CreatedAt}, nil
}

// UpdateRegion changes one region. Edits faster than the card update interval are coalesced.
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
	return a.edit(ctx, card.MessageID, st.view.render())
}

// CloseCard edits in the final text. Text longer than one message continues in follow-up messages.
func (a *Adapter) CloseCard(ctx context.Context, card *channel.Card, finalText string) error {
	chunks := channel.ChunkText(finalText, a.opts.Policy.TextChunkLimit-cardReserve)
	head := ""
	if len(chunks) > 0 {
		head = chunks[0]
	}
	if err := a.finish(ctx, card, func(v *cardView) {
		v.set(channel.RegionText, head)
		v.set(channel.RegionStatus, "")
		v.state = cardClosed
	}); err != nil {
		return err
	}
	if len(chunks) < 2 {
		return nil
	}
	chatID, _, err := parseMessageRef(card.MessageID)
	if err != nil {
		return err
	}
	for _, chunk := range chunks[1:] {
		text, parseMode := formatOutput(chunk, formatMarkdown)
		cfg := tgbotapi.NewMessage(chatID, text)
		cfg.ParseMode = parseMode
		if _, err := a.send(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// FailCard renders the error state and always edits.
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
	return a.edit(ctx, card.MessageID, st.view.render())
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

func (a *Adapter) send(ctx context.Context, cfg tgbotapi.MessageConfig) (channel.SentMessage, error) {
	return channel.Retry(ctx, a.logger, a.opts.Policy, "telegram send", func(context.Context) (channel.SentMessage, error) {
		m, err := a.bot.Send(cfg)
		if err != nil {
			return channel.SentMessage{}, err
		}
		chatID := cfg.ChatID
		if m.Chat != nil {
			chatID = m.Chat.ID
		}
		created := time.Now().UTC()
		if m.Date > 0 {
			created = time.Unix(int64(m.Date), 0).UTC()
		}
		return channel.SentMessage{ID: formatMessageRef(chatID, m.MessageID), CreatedAt: created}, nil
	})
}

func (a *Adapter) edit(_ context.Context, ref, html string) error {
	chatID, messageID, err := parseMessageRef(ref)
	if err != nil {
		return err
	}
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, html)
	cfg.ParseMode = tgbotapi.ModeHTML
	if _, err := a.bot.Request(cfg); err != nil {
		// the throttled view can equal what is already shown
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		a.logger.Warn("card edit failed", slog.String("message_id", ref), slog.Any("error", err))
		return err
	}
	return nil
}

const formatMarkdown = "markdown"

// formatOutput returns the text to send and its parse mode.
func formatOutput(text, format string) (string, string) {
	if strings.EqualFold(format, formatMarkdown) && strings.TrimSpace(text) != "" {
		return markdownToHTML(text), tgbotapi.ModeHTML
	}
	return text, ""
}

func formatMessageRef(chatID int64, messageID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}

func parseMessageRef(ref string) (int64, int, error) {
	rawChat, rawMessage, ok := strings.Cut(strings.TrimSpace(ref), ":")
	if !ok {
		return 0, 0, fmt.Errorf("telegram message id %q must be chat_id:message_id", ref)
	}
	chatID, err := strconv.ParseInt(rawChat, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("telegram message id %q: %w", ref, err)
	}
	messageID, err := strconv.Atoi(rawMessage)
	if err != nil {
		return 0, 0, fmt.Errorf("telegram message id %q: %w", ref, err)
	}
	return chatID, messageID, nil
}

var _ channel.Channel = (*Adapter)(nil)
