package history

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinrec/clinrec/internal/platform/clinerr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/records/:id/history", h.Current)
	api.GET("/records/:id/history/versions", h.ListByRecord)
	api.PUT("/records/:id/history", h.Update)
}

func (h *Handler) Current(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	v, err := h.svc.Current(c.Request().Context(), recordID)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListByRecord(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	versions, err := h.svc.ListByRecord(c.Request().Context(), recordID)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, versions)
}

func (h *Handler) Update(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	var sections Sections
	if err := c.Bind(&sections); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.Update(c.Request().Context(), recordID, sections)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, v)
}
