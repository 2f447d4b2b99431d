package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/fx"

	"github.com/memohai/replyd/internal/config"
	"github.com/memohai/replyd/internal/lock"
	"github.com/memohai/replyd/internal/logger"
)

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		provideLockStore,
		provideMessageLock,
	),
)

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideLockStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (lock.Store, error) {
	store, closeFn, err := lock.OpenStore(context.Background(), log, cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closeFn()
		},
	})
	log.Info("message lock store ready", slog.String("backend", cfg.Lock.Backend))
	return store, nil
}

func provideMessageLock(log *slog.Logger, store lock.Store, cfg config.Config) *lock.MessageLock {
	return lock.NewMessageLock(log, store, lock.Options{
		TTL:       cfg.Lock.TTL.Duration,
		KeyPrefix: cfg.Lock.KeyPrefix,
	})
}
