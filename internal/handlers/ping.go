package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/replyd/internal/version"
)

// PingHandler serves /ping and HEAD /health for liveness.
type PingHandler struct{}

// NewPingHandler creates a ping handler.
func NewPingHandler() *PingHandler { return &PingHandler{} }

// Register mounts GET /ping and HEAD /health on the Echo instance.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

type pingResponse struct {
	Status string       `json:"status"`
	Build  version.Info `json:"build"`
}

// Ping returns 200 JSON with the build info.
func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, pingResponse{Status: "ok", Build: version.Get()})
}

// PingHead returns 200 No Content for health checks.
func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
