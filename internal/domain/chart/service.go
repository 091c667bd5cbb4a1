package chart

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/domain/appointment"
	"github.com/clinrec/clinrec/internal/domain/history"
	"github.com/clinrec/clinrec/internal/domain/medication"
	"github.com/clinrec/clinrec/internal/domain/note"
	"github.com/clinrec/clinrec/internal/domain/record"
	"github.com/clinrec/clinrec/internal/domain/timeline"
	"github.com/clinrec/clinrec/internal/platform/clinerr"
)

// The chart reads across every clinical domain. Nothing here is cached:
// every call recomputes its answer from the stores, so repeated calls
// without intervening writes are identical.

type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*record.Patient, error)
	RecordIDByPatient(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error)
}

type EventReader interface {
	EventByID(ctx context.Context, id uuid.UUID) (*timeline.Event, error)
	EventsThrough(ctx context.Context, recordID uuid.UUID, date time.Time) ([]*timeline.Event, error)
}

type MedicationReader interface {
	ActiveByRecord(ctx context.Context, recordID uuid.UUID) ([]*medication.Medication, error)
	ActiveOn(ctx context.Context, recordID uuid.UUID, on time.Time) ([]*medication.Medication, error)
	Get(ctx context.Context, id uuid.UUID) (*medication.Medication, []*medication.Prescription, error)
}

type HistoryReader interface {
	Current(ctx context.Context, recordID uuid.UUID) (*history.Version, error)
	VersionOn(ctx context.Context, recordID uuid.UUID, on time.Time) (*history.Version, error)
	Get(ctx context.Context, id uuid.UUID) (*history.Version, error)
}

type NoteReader interface {
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*note.ClinicalNote, error)
	Get(ctx context.Context, id uuid.UUID) (*note.ClinicalNote, []*note.Addendum, error)
}

type AppointmentReader interface {
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// CurrentState is the clinical picture as of now.
type CurrentState struct {
	PatientID         uuid.UUID                `json:"patient_id"`
	PatientName       string                   `json:"patient_name"`
	AsOfDate          time.Time                `json:"as_of_date"`
	ActiveMedications []*medication.Medication `json:"active_medications"`
	CurrentHistory    *history.Version         `json:"current_psychiatric_history"`
	MostRecentNote    *note.ClinicalNote       `json:"most_recent_note"`
}

// HistoricalState is the clinical picture as of an arbitrary past date.
type HistoricalState struct {
	PatientID         uuid.UUID                `json:"patient_id"`
	Date              time.Time                `json:"date"`
	Events            []*timeline.Event        `json:"events_through_date"`
	ActiveMedications []*medication.Medication `json:"active_medications_on_date"`
	History           *history.Version         `json:"psychiatric_history_on_date"`
}

// SourceView is an event joined with its originating entity and that
// entity's immutable children.
type SourceView struct {
	Event         *timeline.Event            `json:"event"`
	SourceType    timeline.SourceKind        `json:"source_type"`
	Note          *note.ClinicalNote         `json:"note,omitempty"`
	Addenda       []*note.Addendum           `json:"addenda,omitempty"`
	Medication    *medication.Medication     `json:"medication,omitempty"`
	Prescriptions []*medication.Prescription `json:"prescriptions,omitempty"`
	Appointment   *appointment.Appointment   `json:"appointment,omitempty"`
	History       *history.Version           `json:"history_version,omitempty"`
}

type Service struct {
	patients     PatientDirectory
	events       EventReader
	medications  MedicationReader
	histories    HistoryReader
	notes        NoteReader
	appointments AppointmentReader
	now          func() time.Time
}

func NewService(patients PatientDirectory, events EventReader, medications MedicationReader,
	histories HistoryReader, notes NoteReader, appointments AppointmentReader) *Service {
	return &Service{
		patients:     patients,
		events:       events,
		medications:  medications,
		histories:    histories,
		notes:        notes,
		appointments: appointments,
		now:          time.Now,
	}
}

// CurrentState reconstructs the as-of-now picture for a patient.
func (s *Service) CurrentState(ctx context.Context, patientID uuid.UUID) (*CurrentState, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	recordID, err := s.patients.RecordIDByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	meds, err := s.medications.ActiveByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	current, err := s.histories.Current(ctx, recordID)
	if err != nil && !clinerr.HasCode(err, clinerr.CodeHistoryNotFound) {
		return nil, err
	}
	latest, err := s.mostRecentFinalizedNote(ctx, recordID)
	if err != nil {
		return nil, err
	}

	return &CurrentState{
		PatientID:         p.ID,
		PatientName:       p.FullName(),
		AsOfDate:          timeline.DateOnly(s.now()),
		ActiveMedications: meds,
		CurrentHistory:    current,
		MostRecentNote:    latest,
	}, nil
}

// HistoricalState reconstructs the picture as of date D: the ordered events
// with a date on/before D, the medications in effect on D, and the history
// version that was current on D.
func (s *Service) HistoricalState(ctx context.Context, patientID uuid.UUID, date time.Time) (*HistoricalState, error) {
	recordID, err := s.patients.RecordIDByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	date = timeline.DateOnly(date)

	events, err := s.events.EventsThrough(ctx, recordID, date)
	if err != nil {
		return nil, err
	}
	meds, err := s.medications.ActiveOn(ctx, recordID, date)
	if err != nil {
		return nil, err
	}
	// End-of-day boundary: a version created or superseded during D still
	// counts as current on D.
	v, err := s.histories.VersionOn(ctx, recordID, date.Add(24*time.Hour-time.Nanosecond))
	if err != nil && !clinerr.HasCode(err, clinerr.CodeHistoryNotFound) {
		return nil, err
	}

	return &HistoricalState{
		PatientID:         patientID,
		Date:              date,
		Events:            events,
		ActiveMedications: meds,
		History:           v,
	}, nil
}

// EventSource resolves an event back to its originating entity with that
// entity's immutable children attached. Foundational and manual events have
// no source and resolve to the bare event.
func (s *Service) EventSource(ctx context.Context, eventID uuid.UUID) (*SourceView, error) {
	e, err := s.events.EventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	view := &SourceView{Event: e, SourceType: e.Source.Kind}

	switch e.Source.Kind {
	case timeline.SourceNote:
		n, addenda, err := s.notes.Get(ctx, e.Source.ID)
		if err != nil {
			return nil, err
		}
		view.Note = n
		view.Addenda = addenda
	case timeline.SourceMedication:
		m, prescriptions, err := s.medications.Get(ctx, e.Source.ID)
		if err != nil {
			return nil, err
		}
		view.Medication = m
		view.Prescriptions = prescriptions
	case timeline.SourceAppointment:
		a, err := s.appointments.Get(ctx, e.Source.ID)
		if err != nil {
			return nil, err
		}
		view.Appointment = a
	case timeline.SourceHistory:
		v, err := s.histories.Get(ctx, e.Source.ID)
		if err != nil {
			return nil, err
		}
		view.History = v
	}
	return view, nil
}

func (s *Service) mostRecentFinalizedNote(ctx context.Context, recordID uuid.UUID) (*note.ClinicalNote, error) {
	notes, err := s.notes.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	var latest *note.ClinicalNote
	for _, n := range notes {
		if !n.Finalized() {
			continue
		}
		if latest == nil || n.EncounterDate.After(latest.EncounterDate) ||
			(n.EncounterDate.Equal(latest.EncounterDate) && n.CreatedAt.After(latest.CreatedAt)) {
			latest = n
		}
	}
	return latest, nil
}

// WithClock replaces the wall clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
