package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/memohai/replyd/internal/channel"
)

// Start connects the event websocket and hands reply triggers to handler until ctx is done.
// Only text messages in p2p chats, or group messages that mention the bot, are triggers.
func (a *Adapter) Start(ctx context.Context, handler channel.TriggerHandler) error {
	if a.cfg.AppID == "" || a.cfg.AppSecret == "" {
		return fmt.Errorf("feishu app_id and app_secret are required")
	}
	eventDispatcher := dispatcher.NewEventDispatcher(a.cfg.VerificationToken, a.cfg.EncryptKey)
	eventDispatcher.OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
		trigger, ok := extractFeishuTrigger(event)
		if !ok {
			return nil
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
		return nil
	})
	eventDispatcher.OnP2MessageReadV1(func(context.Context, *larkim.P2MessageReadV1) error {
		return nil
	})

	client := larkws.NewClient(
		a.cfg.AppID,
		a.cfg.AppSecret,
		larkws.WithEventHandler(eventDispatcher),
		larkws.WithLogger(newLarkSlogLogger(a.logger)),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)
	go func() {
		if err := client.Start(ctx); err != nil {
			a.logger.Error("event client stopped", slog.Any("error", err))
		}
	}()
	return nil
}

func extractFeishuTrigger(event *larkim.P2MessageReceiveV1) (channel.Trigger, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return channel.Trigger{}, false
	}
	message := event.Event.Message
	if deref(message.MessageType) != larkim.MsgTypeText {
		return channel.Trigger{}, false
	}

	var content struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal([]byte(deref(message.Content)), &content)
	text := content.Text
	for _, m := range message.Mentions {
		if key := deref(m.Key); key != "" {
			text = strings.ReplaceAll(text, key, "")
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return channel.Trigger{}, false
	}

	isP2P := deref(message.ChatType) == "p2p"
	if !isP2P && len(message.Mentions) == 0 {
		return channel.Trigger{}, false
	}

	userID := ""
	if event.Event.Sender != nil && event.Event.Sender.SenderId != nil {
		userID = strings.TrimSpace(deref(event.Event.Sender.SenderId.OpenId))
		if userID == "" {
			userID = strings.TrimSpace(deref(event.Event.Sender.SenderId.UserId))
		}
	}
	received := time.Now().UTC()
	if message.CreateTime != nil {
		received = sentMessage(nil, message.CreateTime).CreatedAt
	}
	return channel.Trigger{
		Channel:    Name,
		MessageID:  deref(message.MessageId),
		ChatID:     strings.TrimSpace(deref(message.ChatId)),
		UserID:     userID,
		IsP2P:      isP2P,
		RootID:     deref(message.RootId),
		Text:       text,
		ReceivedAt: received,
	}, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
