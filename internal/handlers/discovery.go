package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/provsync/internal/discovery"
)

type DiscoveryHandler struct {
	service *discovery.Service
	logger  *slog.Logger
}

func NewDiscoveryHandler(log *slog.Logger, service *discovery.Service) *DiscoveryHandler {
	return &DiscoveryHandler{
		service: service,
		logger:  log.With(slog.String("handler", "discovery")),
	}
}

func (h *DiscoveryHandler) Register(e *echo.Echo) {
	e.GET("/discovery", h.Discover)
	e.POST("/discovery/import", h.Import)
}

// ImportBody is the request body of POST /discovery/import.
type ImportBody struct {
	Items []discovery.ImportRequest `json:"items"`
}

// Discover godoc
// @Summary Discover deployed providers
// @Description Read every tool's configuration and list providers not yet in the registry
// @Tags discovery
// @Produce json
// @Success 200 {object} discovery.Result
// @Failure 500 {object} ErrorResponse
// @Router /discovery [get]
func (h *DiscoveryHandler) Discover(c echo.Context) error {
	res, err := h.service.Discover(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// Import godoc
// @Summary Import discovered providers
// @Tags discovery
// @Accept json
// @Produce json
// @Param request body ImportBody true "Items to import"
// @Success 200 {object} discovery.ImportResponse
// @Failure 400 {object} ErrorResponse
// @Router /discovery/import [post]
func (h *DiscoveryHandler) Import(c echo.Context) error {
	var body ImportBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(body.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "items is required")
	}
	resp, err := h.service.Import(c.Request().Context(), body.Items)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}
