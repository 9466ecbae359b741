package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/provsync/internal/deploy"
)

type DeployHandler struct {
	service *deploy.Service
	logger  *slog.Logger
}

func NewDeployHandler(log *slog.Logger, service *deploy.Service) *DeployHandler {
	return &DeployHandler{
		service: service,
		logger:  log.With(slog.String("handler", "deploy")),
	}
}

func (h *DeployHandler) Register(e *echo.Echo) {
	e.POST("/apply", h.Apply)
	e.POST("/remove", h.Remove)
}

// Apply godoc
// @Summary Write providers into tool configurations
// @Description Each (provider, target, scope) row is attempted independently; there is no rollback
// @Tags deploy
// @Accept json
// @Produce json
// @Param request body deploy.ApplyRequest true "Providers, targets and scopes"
// @Success 200 {object} deploy.Response
// @Failure 400 {object} ErrorResponse
// @Router /apply [post]
func (h *DeployHandler) Apply(c echo.Context) error {
	var req deploy.ApplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.service.Apply(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Remove godoc
// @Summary Remove providers from tool configurations
// @Tags deploy
// @Accept json
// @Produce json
// @Param request body deploy.RemoveRequest true "Providers, targets and scopes"
// @Success 200 {object} deploy.Response
// @Failure 400 {object} ErrorResponse
// @Router /remove [post]
func (h *DeployHandler) Remove(c echo.Context) error {
	var req deploy.RemoveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.service.Remove(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}
