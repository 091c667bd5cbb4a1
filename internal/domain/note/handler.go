package note

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
	api.POST("/records/:id/notes", h.CreateDraft)
	api.GET("/records/:id/notes", h.ListByRecord)
	api.GET("/notes/:id", h.Get)
	api.PUT("/notes/:id", h.UpdateDraft)
	api.DELETE("/notes/:id", h.DeleteDraft)
	api.POST("/notes/:id/finalize", h.Finalize)
	api.POST("/notes/:id/addenda", h.AddAddendum)
}

type noteBody struct {
	EncounterDate string `json:"encounter_date"`
	Subjective    string `json:"subjective"`
	Objective     string `json:"objective"`
	Assessment    string `json:"assessment"`
	Plan          string `json:"plan"`
}

func (b *noteBody) apply(n *ClinicalNote) error {
	if b.EncounterDate != "" {
		d, err := time.Parse("2006-01-02", b.EncounterDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid encounter_date, expected YYYY-MM-DD")
		}
		n.EncounterDate = d
	}
	n.Subjective = b.Subjective
	n.Objective = b.Objective
	n.Assessment = b.Assessment
	n.Plan = b.Plan
	return nil
}

func (h *Handler) CreateDraft(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	var body noteBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n := &ClinicalNote{RecordID: recordID}
	if err := body.apply(n); err != nil {
		return err
	}
	created, err := h.svc.CreateDraft(c.Request().Context(), n)
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
	notes, err := h.svc.ListByRecord(c.Request().Context(), recordID)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, notes)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	n, addenda, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"note":    n,
		"addenda": addenda,
	})
}

func (h *Handler) UpdateDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body noteBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n := &ClinicalNote{ID: id}
	if err := body.apply(n); err != nil {
		return err
	}
	updated, err := h.svc.UpdateDraft(c.Request().Context(), n)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteDraft(c.Request().Context(), id); err != nil {
		return clinerr.Respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Finalize(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	n, err := h.svc.Finalize(c.Request().Context(), id)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) AddAddendum(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.AddAddendum(c.Request().Context(), id, body.Content)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}
