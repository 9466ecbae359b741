package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/provsync/internal/probe"
)

type ProbeHandler struct {
	service *probe.Service
	logger  *slog.Logger
}

func NewProbeHandler(log *slog.Logger, service *probe.Service) *ProbeHandler {
	return &ProbeHandler{
		service: service,
		logger:  log.With(slog.String("handler", "probe")),
	}
}

func (h *ProbeHandler) Register(e *echo.Echo) {
	e.POST("/probe", h.TestURLs)
	e.POST("/providers/:name/probe", h.AutoSelect)
	e.GET("/providers/:name/probe", h.LastResult)
}

// TestURLs godoc
// @Summary Measure candidate URLs
// @Description Probe each URL trial_count times and report latency, quality and the fastest URL
// @Tags probe
// @Accept json
// @Produce json
// @Param request body probe.TestRequest true "URLs and credentials"
// @Success 200 {object} probe.ProviderURLsTestResult
// @Failure 400 {object} ErrorResponse
// @Router /probe [post]
func (h *ProbeHandler) TestURLs(c echo.Context) error {
	var req probe.TestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.TestURLs(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// AutoSelect godoc
// @Summary Switch a provider to its fastest URL
// @Tags probe
// @Accept json
// @Produce json
// @Param name path string true "Provider name"
// @Param request body probe.AutoSelectRequest false "Trial count"
// @Success 200 {object} probe.AutoSelectResult
// @Failure 404 {object} ErrorResponse
// @Router /providers/{name}/probe [post]
func (h *ProbeHandler) AutoSelect(c echo.Context) error {
	var req probe.AutoSelectRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	res, err := h.service.TestAndAutoSelectFastest(c.Request().Context(), c.Param("name"), req.TrialCount)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// LastResult godoc
// @Summary Last probe result of a provider
// @Tags probe
// @Produce json
// @Param name path string true "Provider name"
// @Success 200 {object} probe.ProviderURLsTestResult
// @Failure 404 {object} ErrorResponse
// @Router /providers/{name}/probe [get]
func (h *ProbeHandler) LastResult(c echo.Context) error {
	res, ok := h.service.LastResult(c.Param("name"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no recent probe result")
	}
	return c.JSON(http.StatusOK, res)
}
