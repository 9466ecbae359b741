package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/provsync/internal/providers"
)

type ProvidersHandler struct {
	service *providers.Service
	logger  *slog.Logger
}

func NewProvidersHandler(log *slog.Logger, service *providers.Service) *ProvidersHandler {
	return &ProvidersHandler{
		service: service,
		logger:  log.With(slog.String("handler", "providers")),
	}
}

func (h *ProvidersHandler) Register(e *echo.Echo) {
	group := e.Group("/providers")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:name", h.Get)
	group.PUT("/:name", h.Update)
	group.DELETE("/:name", h.Delete)
	group.POST("/:name/enabled", h.SetEnabled)
	group.POST("/:name/active_url", h.SetActiveURL)
	group.POST("/:name/models", h.AddModel)
	group.PUT("/:name/models/:id", h.UpdateModel)
	group.DELETE("/:name/models/:id", h.DeleteModel)
}

func readRecord(c echo.Context) (providers.Provider, error) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return providers.Provider{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := providers.DecodeRecord(raw)
	if err != nil {
		return providers.Provider{}, toHTTPError(err)
	}
	return p, nil
}

// Create godoc
// @Summary Register a provider
// @Description Validate a provider record and add it to the registry
// @Tags providers
// @Accept json
// @Produce json
// @Param request body providers.Provider true "Provider record"
// @Success 201 {object} providers.Provider
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /providers [post]
func (h *ProvidersHandler) Create(c echo.Context) error {
	p, err := readRecord(c)
	if err != nil {
		return err
	}
	created, err := h.service.Create(c.Request().Context(), p)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, providers.Masked(created))
}

// List godoc
// @Summary List providers
// @Description List every registered provider with masked API keys
// @Tags providers
// @Produce json
// @Success 200 {object} providers.ListResponse
// @Failure 500 {object} ErrorResponse
// @Router /providers [get]
func (h *ProvidersHandler) List(c echo.Context) error {
	items, err := h.service.List(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	resp := providers.ListResponse{Providers: make([]providers.Provider, 0, len(items)), Total: len(items)}
	for _, p := range items {
		resp.Providers = append(resp.Providers, providers.Masked(p))
	}
	return c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary Get provider by name
// @Tags providers
// @Produce json
// @Param name path string true "Provider name"
// @Success 200 {object} providers.Provider
// @Failure 404 {object} ErrorResponse
// @Router /providers/{name} [get]
func (h *ProvidersHandler) Get(c echo.Context) error {
	p, err := h.service.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, providers.Masked(p))
}

// Update godoc
// @Summary Save a provider
// @Description Update the named provider in place, or add it when missing. An empty or masked api_key keeps the stored key.
// @Tags providers
// @Accept json
// @Produce json
// @Param name path string true "Provider name"
// @Param request body providers.Provider true "Provider record"
// @Success 200 {object} providers.Provider
// @Failure 400 {object} ErrorResponse
// @Router /providers/{name} [put]
func (h *ProvidersHandler) Update(c echo.Context) error {
	p, err := readRecord(c)
	if err != nil {
		return err
	}
	if p.Name != c.Param("name") {
		return echo.NewHTTPError(http.StatusBadRequest, "name in body does not match path")
	}
	saved, err := h.service.Save(c.Request().Context(), p)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, providers.Masked(saved))
}

// Delete godoc
// @Summary Delete a provider
// @Tags providers
// @Param name path string true "Provider name"
// @Success 204 "No Content"
// @Failure 404 {object} ErrorResponse
// @Router /providers/{name} [delete]
func (h *ProvidersHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("name")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetEnabled godoc
// @Summary Enable or disable a provider
// @Tags providers
// @Accept json
// @Produce json
// @Param name path string true "Provider name"
// @Param request body providers.EnabledRequest true "Enabled flag"
// @Success 200 {object} providers.Provider
// @Failure 404 {object} ErrorResponse
// @Router /providers/{name}/enabled [post]
func (h *ProvidersHandler) SetEnabled(c echo.Context) error {
	var req providers.EnabledRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.SetEnabled(c.Request().Context(), c.Param("name"), req.Enabled)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, providers.Masked(p))
}

// SetActiveURL godoc
// @Summary Switch the active base URL
// @Tags providers
// @Accept json
// @Produce json
// @Param name path string true "Provider name"
// @Param request body providers.ActiveURLRequest true "One of the candidate URLs"
// @Success 200 {object} providers.Provider
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /providers/{name}/active_url [post]
func (h *ProvidersHandler) SetActiveURL(c echo.Context) error {
	var req providers.ActiveURLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.SetActiveURL(c.Request().Context(), c.Param("name"), req.BaseURL)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, providers.Masked(p))
}

// AddModel godoc
// @Summary Add a model to a provider
// @Tags providers
// @Accept json
// @Produce json
// @Param name path string true "Provider name"
// @Param request body providers.Model true "Model"
// @Success 201 {object} providers.Provider
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /providers/{name}/models [post]
func (h *ProvidersHandler) AddModel(c echo.Context) error {
	var m providers.Model
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.AddModel(c.Request().Context(), c.Param("name"), m)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, providers.Masked(p))
}

// UpdateModel godoc
// @Summary Replace a model
// @Tags providers
// @Accept json
// @Produce json
// @Param name path string true "Provider name"
// @Param id path string true "Model id"
// @Param request body providers.Model true "Model"
// @Success 200 {object} providers.Provider
// @Failure 404 {object} ErrorResponse
// @Router /providers/{name}/models/{id} [put]
func (h *ProvidersHandler) UpdateModel(c echo.Context) error {
	var m providers.Model
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.UpdateModel(c.Request().Context(), c.Param("name"), c.Param("id"), m)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, providers.Masked(p))
}

// DeleteModel godoc
// @Summary Remove a model
// @Tags providers
// @Param name path string true "Provider name"
// @Param id path string true "Model id"
// @Success 200 {object} providers.Provider
// @Failure 404 {object} ErrorResponse
// @Router /providers/{name}/models/{id} [delete]
func (h *ProvidersHandler) DeleteModel(c echo.Context) error {
	p, err := h.service.DeleteModel(c.Request().Context(), c.Param("name"), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, providers.Masked(p))
}
