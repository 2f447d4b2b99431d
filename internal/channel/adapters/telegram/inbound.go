package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/replyd/internal/channel"
)

// pollTimeout is the long polling timeout in seconds.
const pollTimeout = 30

// Start long polls for updates and hands reply triggers to handler until ctx is done.
// Private chats always trigger; groups need an @mention of the bot or a reply to one of its messages.
func (a *Adapter) Start(ctx context.Context, handler channel.TriggerHandler) error {
	if a.api == nil {
		return fmt.Errorf("telegram bot is not connected")
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := a.api.GetUpdatesChan(cfg)
	go func() {
		defer a.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				a.logger.Info("stop polling")
				return
			case update, ok := <-updates:
				if !ok {
					a.logger.Info("updates channel closed")
					return
				}
				trigger, ok := extractTelegramTrigger(update.Message, a.self)
				if !ok {
					continue
				}
				a.logger.Info("inbound trigger",
					slog.String("message_id", trigger.MessageID),
					slog.String("chat_id", trigger.ChatID),
					slog.Bool("p2p", trigger.IsP2P))
				go func() {
					if err := handler(ctx, trigger); err != nil {
						a.logger.Error("handle trigger failed", slog.String("message_id", trigger.MessageID), slog.Any("error", err))
					}
				}()
			}
		}
	}()
	return nil
}

func extractTelegramTrigger(msg *tgbotapi.Message, self string) (channel.Trigger, bool) {
	if msg == nil || msg.Chat == nil {
		return channel.Trigger{}, false
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return channel.Trigger{}, false
	}
	isP2P := msg.Chat.Type == "private"
	if !isP2P {
		mention := "@" + self
		mentioned := self != "" && strings.Contains(strings.ToLower(text), strings.ToLower(mention))
		repliedToBot := msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil &&
			self != "" && strings.EqualFold(msg.ReplyToMessage.From.UserName, self)
		if !mentioned && !repliedToBot {
			return channel.Trigger{}, false
		}
		if mentioned {
			text = strings.TrimSpace(removeFold(text, mention))
		}
		if text == "" {
			return channel.Trigger{}, false
		}
	}
	userID := ""
	if msg.From != nil {
		userID = strconv.FormatInt(msg.From.ID, 10)
	} else if msg.SenderChat != nil {
		userID = strconv.FormatInt(msg.SenderChat.ID, 10)
	}
	rootID := ""
	if msg.ReplyToMessage != nil {
		rootID = formatMessageRef(msg.Chat.ID, msg.ReplyToMessage.MessageID)
	}
	return channel.Trigger{
		Channel:    Name,
		MessageID:  formatMessageRef(msg.Chat.ID, msg.MessageID),
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		UserID:     userID,
		IsP2P:      isP2P,
		RootID:     rootID,
		Text:       text,
		ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}, true
}

// removeFold deletes every case-insensitive occurrence of sub. Bot usernames are ASCII.
func removeFold(s, sub string) string {
	lower, lowerSub := strings.ToLower(s), strings.ToLower(sub)
	if len(lower) != len(s) {
		return strings.ReplaceAll(s, sub, "")
	}
	var b strings.Builder
	for {
		i := strings.Index(lower, lowerSub)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		s, lower = s[i+len(sub):], lower[i+len(sub):]
	}
}
