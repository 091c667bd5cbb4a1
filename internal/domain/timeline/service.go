package timeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinrec/clinrec/internal/platform/clinerr"
	"github.com/clinrec/clinrec/internal/platform/telemetry"
)

// RecordResolver maps a patient onto their clinical record. Implemented by
// the record service; keeps this package free of domain imports.
type RecordResolver interface {
	RecordIDByPatient(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error)
}

// View is the timeline read result.
type View struct {
	PatientID  uuid.UUID `json:"patient_id"`
	EventCount int       `json:"event_count"`
	Events     []*Event  `json:"events"`
}

// Query narrows a filtered timeline read.
type Query struct {
	Types     []EventType
	Start     *time.Time
	End       *time.Time
	Direction Direction
}

// Service is the timeline query facade. Reads never mutate; every call
// re-queries the store, applies the future-event visibility filter, and
// orders with the four-tier comparator.
type Service struct {
	store   Store
	records RecordResolver
	metrics *telemetry.Provider
	now     func() time.Time
}

func NewService(store Store, records RecordResolver, metrics *telemetry.Provider) *Service {
	return &Service{store: store, records: records, metrics: metrics, now: time.Now}
}

// FullTimeline returns every visible event for the patient in the given
// direction.
func (s *Service) FullTimeline(ctx context.Context, patientID uuid.UUID, dir Direction) (*View, error) {
	recordID, err := s.records.RecordIDByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	events, err := s.store.ListByRecord(ctx, recordID, Filter{VisibleThrough: s.now()})
	if err != nil {
		return nil, err
	}
	Sort(events, dir)

	s.metrics.TimelineQuery("full")
	return &View{PatientID: patientID, EventCount: len(events), Events: events}, nil
}

// FilteredTimeline returns visible events narrowed by type and date range.
// A range whose start is after its end is an error, not an empty result.
func (s *Service) FilteredTimeline(ctx context.Context, patientID uuid.UUID, q Query) (*View, error) {
	recordID, err := s.records.RecordIDByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if q.Start != nil && q.End != nil && DateOnly(*q.Start).After(DateOnly(*q.End)) {
		return nil, clinerr.InvalidDateRange("date range start %s is after end %s",
			DateOnly(*q.Start).Format("2006-01-02"), DateOnly(*q.End).Format("2006-01-02"))
	}
	for _, t := range q.Types {
		if !t.Valid() {
			return nil, clinerr.MissingFields("unknown event type %q", t)
		}
	}

	events, err := s.store.ListByRecord(ctx, recordID, Filter{
		Types:          q.Types,
		From:           q.Start,
		To:             q.End,
		VisibleThrough: s.now(),
	})
	if err != nil {
		return nil, err
	}
	Sort(events, q.Direction)

	s.metrics.TimelineQuery("filtered")
	return &View{PatientID: patientID, EventCount: len(events), Events: events}, nil
}

// EventByID returns a single event by identifier. Unlike list reads it does
// not apply the visibility filter: direct lookup by id is how reconciliation
// tooling inspects future-dated rows.
func (s *Service) EventByID(ctx context.Context, eventID uuid.UUID) (*Event, error) {
	e, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.NotFound(clinerr.CodeEventNotFound, "event %s not found", eventID)
		}
		return nil, err
	}

	s.metrics.TimelineQuery("single")
	return e, nil
}

// EventsThrough returns the ordered events with eventDate on or before the
// given date, for the historical reconstructor.
func (s *Service) EventsThrough(ctx context.Context, recordID uuid.UUID, date time.Time) ([]*Event, error) {
	events, err := s.store.ListByRecord(ctx, recordID, Filter{VisibleThrough: date})
	if err != nil {
		return nil, err
	}
	Sort(events, Ascending)
	return events, nil
}

// WithClock replaces the wall clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
