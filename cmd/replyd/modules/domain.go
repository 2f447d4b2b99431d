package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/channel/adapters/local"
	"github.com/memohai/replyd/internal/config"
	"github.com/memohai/replyd/internal/delivery"
	"github.com/memohai/replyd/internal/llm"
	"github.com/memohai/replyd/internal/lock"
	"github.com/memohai/replyd/internal/orchestrator"
	"github.com/memohai/replyd/internal/reply"
	"github.com/memohai/replyd/internal/tools"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		provideResolver,
		provideToolRegistry,
		provideGateway,
		provideOrchestrator,
		provideModels,
		provideStrategies,
		provideSelector,
		provideEngine,
	),
)

func provideResolver(log *slog.Logger, cfg config.Config) (*llm.Resolver, error) {
	providers, err := llm.NewProviders(context.Background(), cfg.Providers)
	if err != nil {
		return nil, err
	}
	r := llm.NewResolver(cfg.Gateway.DefaultProvider, providers...)
	log.Info("model providers ready", slog.Any("providers", r.Providers()))
	return r, nil
}

func provideToolRegistry(log *slog.Logger) (*tools.Registry, error) {
	builtin, err := tools.Builtin()
	if err != nil {
		return nil, err
	}
	return tools.NewRegistry(log, builtin...)
}

func provideGateway(log *slog.Logger, resolver *llm.Resolver, registry *tools.Registry) *llm.Gateway {
	return llm.NewGateway(log, resolver, registry)
}

func provideOrchestrator(log *slog.Logger, gateway *llm.Gateway, cfg config.Config) *orchestrator.Orchestrator {
	return orchestrator.New(log, gateway, orchestrator.Config{
		YieldInterval:       cfg.Delivery.YieldInterval.Duration,
		ContentFilterNotice: cfg.Delivery.ContentFilterNotice,
	})
}

func provideModels(cfg config.Config) []orchestrator.ModelConfig {
	models := make([]orchestrator.ModelConfig, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		models = append(models, orchestrator.ModelConfig{ID: m.ID, DisplayName: m.DisplayName})
	}
	return models
}

func provideStrategies(log *slog.Logger, cfg config.Config) (*delivery.Registry, error) {
	return delivery.NewConfiguredRegistry(log, cfg.Delivery)
}

func provideSelector(cfg config.Config) (delivery.Selector, error) {
	return delivery.NewConfiguredSelector(cfg.Delivery)
}

type engineParams struct {
	fx.In

	Logger       *slog.Logger
	Config       config.Config
	Orchestrator *orchestrator.Orchestrator
	Lock         *lock.MessageLock
	Strategies   *delivery.Registry
	Tools        *tools.Registry
	Local        *local.Channel
	Channels     []channel.Channel `group:"channels"`
}

func provideEngine(p engineParams) (*reply.Engine, error) {
	channels := append([]channel.Channel{p.Local}, p.Channels...)
	return reply.NewEngine(p.Logger, p.Orchestrator, p.Lock, p.Strategies, reply.Config{
		SystemPrompt:      p.Config.Gateway.SystemPrompt,
		Temperature:       p.Config.Gateway.Temperature,
		MaxToolIterations: p.Config.Gateway.MaxToolIterations,
		Tools:             p.Tools.Definitions(),
		Timeout:           p.Config.Gateway.RequestTimeout.Duration,
	}, channels...)
}
