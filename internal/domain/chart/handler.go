package chart

import (
	"net/http"
	"time"

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
	api.GET("/patients/:id/state", h.GetState)
	api.GET("/events/:id/source", h.GetEventSource)
}

// GetState serves the current clinical state, or the historical state when a
// date query parameter is present.
func (h *Handler) GetState(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	if raw := c.QueryParam("date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
		state, err := h.svc.HistoricalState(c.Request().Context(), patientID, d)
		if err != nil {
			return clinerr.Respond(c, err)
		}
		return c.JSON(http.StatusOK, state)
	}

	state, err := h.svc.CurrentState(c.Request().Context(), patientID)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

func (h *Handler) GetEventSource(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	view, err := h.svc.EventSource(c.Request().Context(), id)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, view)
}
