package delivery

import (
	"log/slog"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/config"
)

// NewConfiguredRegistry registers the card and multi-message strategies with options from cfg.
func NewConfiguredRegistry(log *slog.Logger, cfg config.DeliveryConfig) (*Registry, error) {
	cardOpts := CardOptions{
		SplitMarker: cfg.SplitMarker,
		ErrorNotice: cfg.ErrorNotice,
	}
	multiOpts := MultiMessageOptions{
		SplitMarker:  cfg.SplitMarker,
		MaxMessages:  cfg.MaxMessages,
		DefaultDelay: cfg.DefaultDelay.Duration,
		MinDelay:     cfg.MinDelay.Duration,
		MaxDelay:     cfg.MaxDelay.Duration,
		ErrorNotice:  cfg.ErrorNotice,
	}
	return NewRegistry(
		Registration{Mode: ModeCard, Factory: func(ch channel.Channel, sctx Context) Strategy {
			return NewCardStrategy(log, ch, sctx, cardOpts)
		}},
		Registration{Mode: ModeMultiMessage, Factory: func(ch channel.Channel, sctx Context) Strategy {
			return NewMultiMessageStrategy(log, ch, sctx, multiOpts)
		}},
	)
}

// NewConfiguredSelector applies cfg.DefaultMode and cfg.MultiMessageChats.
func NewConfiguredSelector(cfg config.DeliveryConfig) (Selector, error) {
	mode, err := ParseMode(cfg.DefaultMode)
	if err != nil {
		return nil, err
	}
	return SelectByChat(mode, cfg.MultiMessageChats), nil
}
