package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/provsync/internal/schedule"
)

type ScheduleHandler struct {
	service *schedule.Service
	logger  *slog.Logger
}

func NewScheduleHandler(log *slog.Logger, service *schedule.Service) *ScheduleHandler {
	return &ScheduleHandler{
		service: service,
		logger:  log.With(slog.String("handler", "schedule")),
	}
}

func (h *ScheduleHandler) Register(e *echo.Echo) {
	group := e.Group("/schedule")
	group.GET("", h.Last)
	group.POST("/run", h.Run)
}

// Last godoc
// @Summary Last re-probe pass
// @Description Report the most recent scheduled or manual re-probe pass
// @Tags schedule
// @Success 200 {object} schedule.Run
// @Failure 404 {object} ErrorResponse
// @Router /schedule [get]
func (h *ScheduleHandler) Last(c echo.Context) error {
	run, ok := h.service.Last()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no re-probe pass has run yet")
	}
	return c.JSON(http.StatusOK, run)
}

// Run godoc
// @Summary Run a re-probe pass
// @Description Auto-select the fastest URL for every enabled provider with two or more URLs
// @Tags schedule
// @Success 200 {object} schedule.Run
// @Failure 500 {object} ErrorResponse
// @Router /schedule/run [post]
func (h *ScheduleHandler) Run(c echo.Context) error {
	run, err := h.service.RunOnce(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, run)
}
