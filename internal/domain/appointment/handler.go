package appointment

import (
	"context"
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
	api.POST("/records/:id/appointments", h.Create)
	api.GET("/records/:id/appointments", h.ListByRecord)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments/:id/reschedule", h.Reschedule)
	api.POST("/appointments/:id/cancel", h.Cancel)
	api.POST("/appointments/:id/complete", h.Complete)
	api.POST("/appointments/:id/no-show", h.MarkNoShow)
	api.POST("/appointments/:id/ensure-event", h.EnsureEvent)
}

func (h *Handler) Create(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	var body struct {
		ScheduledDate string `json:"scheduled_date"`
		Reason        string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a := &Appointment{RecordID: recordID, Reason: body.Reason}
	if body.ScheduledDate != "" {
		d, err := time.Parse("2006-01-02", body.ScheduledDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid scheduled_date, expected YYYY-MM-DD")
		}
		a.ScheduledDate = d
	}
	created, err := h.svc.Create(c.Request().Context(), a)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListByRecord(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	appointments, err := h.svc.ListByRecord(c.Request().Context(), recordID)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, appointments)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		ScheduledDate string `json:"scheduled_date"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := time.Parse("2006-01-02", body.ScheduledDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid scheduled_date, expected YYYY-MM-DD")
	}
	a, err := h.svc.Reschedule(c.Request().Context(), id, d)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.transition(c, h.svc.Cancel)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.transition(c, h.svc.Complete)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.transition(c, h.svc.MarkNoShow)
}

func (h *Handler) EnsureEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.EnsureEncounterEvent(c.Request().Context(), id); err != nil {
		return clinerr.Respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*Appointment, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := fn(c.Request().Context(), id)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
