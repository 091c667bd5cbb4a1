package medication

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
	api.POST("/records/:id/medications", h.Start)
	api.GET("/records/:id/medications", h.ListByRecord)
	api.GET("/medications/:id", h.Get)
	api.GET("/medications/:id/chain", h.Chain)
	api.POST("/medications/:id/change", h.Change)
	api.POST("/medications/:id/stop", h.Stop)
	api.POST("/medications/:id/prescriptions", h.IssuePrescription)
}

func parseDate(c echo.Context, field, value string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+field+", expected YYYY-MM-DD")
	}
	return d, nil
}

func (h *Handler) Start(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	var body struct {
		Drug      string  `json:"drug"`
		Dosage    float64 `json:"dosage"`
		Unit      string  `json:"unit"`
		Frequency string  `json:"frequency"`
		IssueDate string  `json:"prescription_issue_date"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m := &Medication{
		RecordID:  recordID,
		Drug:      body.Drug,
		Dosage:    body.Dosage,
		Unit:      body.Unit,
		Frequency: body.Frequency,
	}
	if body.IssueDate != "" {
		d, err := parseDate(c, "prescription_issue_date", body.IssueDate)
		if err != nil {
			return err
		}
		m.PrescriptionIssueDate = d
	}
	created, err := h.svc.Start(c.Request().Context(), m)
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
	var (
		medications []*Medication
	)
	if c.QueryParam("status") == "active" {
		medications, err = h.svc.ActiveByRecord(c.Request().Context(), recordID)
	} else {
		medications, err = h.svc.ListByRecord(c.Request().Context(), recordID)
	}
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, medications)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, prescriptions, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"medication":    m,
		"prescriptions": prescriptions,
	})
}

func (h *Handler) Chain(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	chain, err := h.svc.Chain(c.Request().Context(), id)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, chain)
}

func (h *Handler) Change(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Dosage        float64 `json:"dosage"`
		EffectiveDate string  `json:"effective_date"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	effective, err := parseDate(c, "effective_date", body.EffectiveDate)
	if err != nil {
		return err
	}
	successor, err := h.svc.Change(c.Request().Context(), id, body.Dosage, effective)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, successor)
}

func (h *Handler) Stop(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		EndDate string `json:"end_date"`
		Reason  string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	endDate, err := parseDate(c, "end_date", body.EndDate)
	if err != nil {
		return err
	}
	m, err := h.svc.Stop(c.Request().Context(), id, endDate, body.Reason)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) IssuePrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		IssueDate string `json:"issue_date"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	issueDate, err := parseDate(c, "issue_date", body.IssueDate)
	if err != nil {
		return err
	}
	p, err := h.svc.IssuePrescription(c.Request().Context(), id, issueDate)
	if err != nil {
		return clinerr.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}
