// Package server provides the HTTP server and Echo setup for the replyd API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/replyd/internal/config"
	"github.com/memohai/replyd/internal/logger"
)

// Server is the HTTP server (Echo) with optional bearer auth and registered handlers.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

// Handler registers routes on the Echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// publicPaths bypass bearer auth.
var publicPaths = map[string]bool{
	"/ping":   true,
	"/health": true,
}

// NewServer builds the Echo server with recovery, request logging, and the given handlers.
// A non-empty jwtSecret requires an HS256 bearer token on every route except liveness.
func NewServer(log *slog.Logger, addr, jwtSecret string, handlers ...Handler) *Server {
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	log = logger.Component(log, "server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	if jwtSecret != "" {
		e.Use(echojwt.WithConfig(echojwt.Config{
			SigningKey: []byte(jwtSecret),
			Skipper: func(c echo.Context) bool {
				return publicPaths[c.Request().URL.Path]
			},
			ErrorHandler: func(c echo.Context, err error) error {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing bearer token")
			},
		}))
	}

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{echo: e, addr: addr, logger: log}
}

// Start starts the HTTP server (blocks until shutdown).
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server using the given context.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
