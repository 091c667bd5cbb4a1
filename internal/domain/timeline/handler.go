package timeline

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinrec/clinrec/internal/platform/clinerr"
)

type Handler struct {
	svc     *Service
	emitter *Emitter
	records RecordResolver
}

func NewHandler(svc *Service, emitter *Emitter, records RecordResolver) *Handler {
	return &Handler{svc: svc, emitter: emitter, records: records}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/timeline", h.GetTimeline)
	api.GET("/events/:id", h.GetEvent)
	api.POST("/patients/:id/events", h.CreateManualEvent)
}

// GetTimeline serves both the full and the filtered timeline: type and date
// range query parameters narrow the read when present.
func (h *Handler) GetTimeline(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	q := Query{Direction: ParseDirection(c.QueryParam("direction"))}
	for _, t := range c.QueryParams()["type"] {
		q.Types = append(q.Types, EventType(t))
	}
	if s := c.QueryParam("start"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid start date")
		}
		q.Start = &d
	}
	if s := c.QueryParam("end"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid end date")
		}
		q.End = &d
	}

	var view *View
	if len(q.Types) == 0 && q.Start == nil && q.End == nil {
		view, err = h.svc.FullTimeline(c.Request().Context(), patientID, q.Direction)
	} else {
		view, err = h.svc.FilteredTimeline(c.Request().Context(), patientID, q)
	}
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.EventByID(c.Request().Context(), id)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// CreateManualEvent appends a Hospitalization, LifeEvent, or Other event
// with no backing entity.
func (h *Handler) CreateManualEvent(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	var body struct {
		EventType   string  `json:"event_type"`
		EventDate   string  `json:"event_date"`
		Title       string  `json:"title"`
		Description *string `json:"description"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	eventDate, err := time.Parse("2006-01-02", body.EventDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event_date, expected YYYY-MM-DD")
	}

	recordID, err := h.records.RecordIDByPatient(c.Request().Context(), patientID)
	if err != nil {
		return clinerr.Respond(c, err)
	}

	e, err := h.emitter.Manual(c.Request().Context(), recordID,
		EventType(body.EventType), eventDate, body.Title, body.Description)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}
