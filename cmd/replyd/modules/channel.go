package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/channel/adapters/feishu"
	"github.com/memohai/replyd/internal/channel/adapters/local"
	"github.com/memohai/replyd/internal/channel/adapters/telegram"
	"github.com/memohai/replyd/internal/config"
	"github.com/memohai/replyd/internal/delivery"
	"github.com/memohai/replyd/internal/orchestrator"
	"github.com/memohai/replyd/internal/reply"
)

var ChannelModule = fx.Module(
	"channel",
	fx.Provide(
		local.NewHub,
		local.New,
		provideFeishuAdapter,
		provideTelegramAdapter,
		fx.Annotate(
			provideAdapterChannels,
			fx.ResultTags(`group:"channels,flatten"`),
		),
	),
	fx.Invoke(startInbound),
)

// inboundAdapter is a channel that also produces triggers.
type inboundAdapter interface {
	channel.Channel
	Start(ctx context.Context, handler channel.TriggerHandler) error
}

// provideFeishuAdapter returns nil when Feishu is disabled.
func provideFeishuAdapter(log *slog.Logger, cfg config.Config) *feishu.Adapter {
	if !cfg.Feishu.Enabled {
		return nil
	}
	return feishu.NewAdapter(log, cfg.Feishu, feishu.Options{
		CardUpdateInterval: cfg.Delivery.CardUpdateInterval.Duration,
	})
}

// provideTelegramAdapter returns nil when Telegram is disabled.
func provideTelegramAdapter(log *slog.Logger, cfg config.Config) (*telegram.Adapter, error) {
	if !cfg.Telegram.Enabled {
		return nil, nil
	}
	return telegram.NewAdapter(log, cfg.Telegram, telegram.Options{
		CardUpdateInterval: cfg.Telegram.CardUpdateInterval.Duration,
	})
}

func enabledAdapters(fs *feishu.Adapter, tg *telegram.Adapter) []inboundAdapter {
	var out []inboundAdapter
	if fs != nil {
		out = append(out, fs)
	}
	if tg != nil {
		out = append(out, tg)
	}
	return out
}

func provideAdapterChannels(fs *feishu.Adapter, tg *telegram.Adapter) []channel.Channel {
	var out []channel.Channel
	for _, a := range enabledAdapters(fs, tg) {
		out = append(out, a)
	}
	return out
}

func startInbound(lc fx.Lifecycle, log *slog.Logger, fs *feishu.Adapter, tg *telegram.Adapter, engine *reply.Engine, models []orchestrator.ModelConfig, selector delivery.Selector) {
	adapters := enabledAdapters(fs, tg)
	if len(adapters) == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	handler := func(ctx context.Context, trigger channel.Trigger) error {
		return engine.DeliverReply(ctx, trigger, models, selector)
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			for _, a := range adapters {
				if err := a.Start(ctx, handler); err != nil {
					cancel()
					return err
				}
				log.Info("inbound started", slog.String("channel", a.Name()))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			log.Info("inbound stopped")
			return nil
		},
	})
}
