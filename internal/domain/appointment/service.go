package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/domain/timeline"
	"github.com/clinrec/clinrec/internal/platform/clinerr"
	"github.com/clinrec/clinrec/internal/platform/db"
)

// Service owns scheduling. Every appointment deterministically carries one
// Encounter event at its scheduled date; the event for a future appointment
// is deleted on reschedule or cancel and regenerated by the next ensure,
// while the event of a past appointment is immutable and survives status
// changes.
type Service struct {
	repo    Repository
	emitter *timeline.Emitter
	purger  timeline.EncounterEventPurger
	tx      db.Runner
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, emitter *timeline.Emitter, purger timeline.EncounterEventPurger, tx db.Runner, log zerolog.Logger) *Service {
	return &Service{repo: repo, emitter: emitter, purger: purger, tx: tx, log: log, now: time.Now}
}

// Create inserts a scheduled appointment and ensures its Encounter event,
// past or future scheduled date alike.
func (s *Service) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	if a.RecordID == uuid.Nil {
		return nil, clinerr.MissingFields("clinical_record_id is required")
	}
	if a.ScheduledDate.IsZero() {
		return nil, clinerr.MissingFields("scheduled_date is required")
	}
	a.Status = StatusScheduled
	a.ScheduledDate = timeline.DateOnly(a.ScheduledDate)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.emitter.EncounterEnsured(ctx, a.RecordID, a.ID, a.ScheduledDate, a.Reason)
	return a, nil
}

// EnsureEncounterEvent re-runs the Encounter emission for an appointment.
// The pre-check makes repeat calls converge on exactly one event, so this is
// safe to call any number of times, and it is how a missing event heals
// after an emission failure or a reschedule.
func (s *Service) EnsureEncounterEvent(ctx context.Context, id uuid.UUID) error {
	a, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if a.Status == StatusCancelled {
		return clinerr.StateConflict("appointment %s is cancelled", id)
	}
	s.emitter.EncounterEnsured(ctx, a.RecordID, a.ID, a.ScheduledDate, a.Reason)
	return nil
}

// Reschedule moves a future scheduled appointment to a new date. The stale
// Encounter event is deleted with the schedule change and a fresh one is
// ensured at the new date.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time) (*Appointment, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled {
		return nil, clinerr.StateConflict("appointment %s is %s, only scheduled appointments can be rescheduled", id, a.Status)
	}
	today := timeline.DateOnly(s.now())
	if !a.ScheduledDate.After(today) {
		return nil, clinerr.StateConflict("appointment %s is due or past, it can no longer be rescheduled", id)
	}
	newDate = timeline.DateOnly(newDate)
	if newDate.IsZero() {
		return nil, clinerr.MissingFields("scheduled_date is required")
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.purger.PurgeFutureEncounterEvent(ctx, a.ID, today); err != nil {
			return err
		}
		return s.repo.UpdateSchedule(ctx, id, newDate)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.StateConflict("appointment %s is no longer scheduled", id)
		}
		return nil, err
	}

	a.ScheduledDate = newDate
	s.emitter.EncounterEnsured(ctx, a.RecordID, a.ID, newDate, a.Reason)
	return a, nil
}

// Cancel cancels a future scheduled appointment and deletes its Encounter
// event outright. Past appointments are not cancellable.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled {
		return nil, clinerr.StateConflict("appointment %s is %s, it cannot be cancelled", id, a.Status)
	}
	today := timeline.DateOnly(s.now())
	if !a.ScheduledDate.After(today) {
		return nil, clinerr.StateConflict("appointment %s is due or past, it cannot be cancelled", id)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.purger.PurgeFutureEncounterEvent(ctx, a.ID, today); err != nil {
			return err
		}
		return s.repo.UpdateStatus(ctx, id, StatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	a.Status = StatusCancelled
	return a, nil
}

// Complete marks a due or past scheduled appointment completed. The
// Encounter event is untouched.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.closeOut(ctx, id, StatusCompleted)
}

// MarkNoShow marks a due or past scheduled appointment as a no-show. The
// Encounter event, once past, is immutable and survives this.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.closeOut(ctx, id, StatusNoShow)
}

func (s *Service) closeOut(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled {
		return nil, clinerr.StateConflict("appointment %s is %s", id, a.Status)
	}
	if a.ScheduledDate.After(timeline.DateOnly(s.now())) {
		return nil, clinerr.StateConflict("appointment %s has not happened yet", id)
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	a.Status = status
	return a, nil
}

// Get returns an appointment or APPOINTMENT_NOT_FOUND.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.get(ctx, id)
}

// ListByRecord returns all appointments on a record, newest first.
func (s *Service) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Appointment, error) {
	return s.repo.ListByRecord(ctx, recordID)
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.NotFound(clinerr.CodeAppointmentNotFound, "appointment %s not found", id)
		}
		return nil, err
	}
	return a, nil
}

// WithClock replaces the wall clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
