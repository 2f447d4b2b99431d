package modules

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/replyd/internal/channel/adapters/local"
	"github.com/memohai/replyd/internal/config"
	"github.com/memohai/replyd/internal/delivery"
	"github.com/memohai/replyd/internal/handlers"
	"github.com/memohai/replyd/internal/orchestrator"
	"github.com/memohai/replyd/internal/reply"
	"github.com/memohai/replyd/internal/server"
	"github.com/memohai/replyd/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideReplyHandler,
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(handlers.NewChatHandler),
		provideServerHandler(func(h *handlers.ReplyHandler) *handlers.ReplyHandler { return h }),
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideReplyHandler(lc fx.Lifecycle, log *slog.Logger, engine *reply.Engine, ch *local.Channel, models []orchestrator.ModelConfig, selector delivery.Selector) *handlers.ReplyHandler {
	h := handlers.NewReplyHandler(log, engine, ch, models, selector)
	lc.Append(fx.Hook{OnStop: h.Close})
	return h
}

type serverParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(p serverParams) *server.Server {
	return server.NewServer(p.Logger, p.Config.Server.Addr, p.Config.Server.JWTSecret, p.Handlers...)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting replyd %s\n", version.Get())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("http server stopped", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}
