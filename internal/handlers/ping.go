package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/version"
)

// PingHandler serves /ping and HEAD /health for liveness.
type PingHandler struct {
	adapters *adapters.Registry
	logger   *slog.Logger
}

// PingResponse reports the running build and the tools it can manage.
type PingResponse struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	Tools   []adapters.Tool `json:"tools"`
}

func NewPingHandler(log *slog.Logger, registry *adapters.Registry) *PingHandler {
	return &PingHandler{
		adapters: registry,
		logger:   log.With(slog.String("handler", "ping")),
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

// Ping godoc
// @Summary Liveness and build info
// @Tags system
// @Produce json
// @Success 200 {object} PingResponse
// @Router /ping [get]
func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, PingResponse{
		Status:  "ok",
		Version: version.Current().Version,
		Tools:   h.adapters.Tools(),
	})
}

// PingHead returns 200 No Content for health checks.
func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
