package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/platform/clinerr"
	"github.com/clinrec/clinrec/internal/platform/telemetry"
)

// Emitter turns domain triggers into timeline events. Each method is one
// write contract: it runs the idempotency pre-check, inserts exactly one
// event, and notifies the dispatcher.
//
// Entity-triggered emissions run after the entity transaction has already
// committed. A failure at that point is a recoverable inconsistency, so it
// is logged and counted, never surfaced to the triggering caller; re-running
// the emission heals it because of the pre-check.
type Emitter struct {
	store      Store
	dispatcher *Dispatcher
	metrics    *telemetry.Provider
	log        zerolog.Logger
	now        func() time.Time
}

func NewEmitter(store Store, d *Dispatcher, metrics *telemetry.Provider, log zerolog.Logger) *Emitter {
	return &Emitter{
		store:      store,
		dispatcher: d,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

// ValidateEventDate enforces the shared rule that an event date must not be
// after today. Types that schedule ahead (medication change, prescription
// issuance, encounters) are exempt; their events are hidden by the read-time
// visibility filter instead.
func ValidateEventDate(t EventType, eventDate, today time.Time) error {
	if t.AllowsFutureDate() {
		return nil
	}
	if DateOnly(eventDate).After(DateOnly(today)) {
		return clinerr.MissingFields("event date %s is in the future",
			DateOnly(eventDate).Format("2006-01-02"))
	}
	return nil
}

// emit runs the shared persist-and-notify path for entity-triggered events.
// `on` narrows the idempotency pre-check to the event date when non-nil.
func (em *Emitter) emit(ctx context.Context, e *Event, on *time.Time) {
	exists, err := em.store.ExistsBySource(ctx, e.RecordID, e.Source, e.Type, on)
	if err != nil {
		em.fail(e, err)
		return
	}
	if exists {
		em.metrics.EmissionSkipped(string(e.Type))
		em.log.Debug().
			Str("record_id", e.RecordID.String()).
			Str("event_type", string(e.Type)).
			Str("source_id", e.Source.ID.String()).
			Msg("event already emitted, skipping")
		return
	}

	e.ID = uuid.New()
	e.RecordedAt = em.now().UTC()
	e.EventDate = DateOnly(e.EventDate)

	if err := em.store.Append(ctx, e); err != nil {
		em.fail(e, err)
		return
	}

	em.metrics.EventEmitted(string(e.Type))
	em.dispatcher.Publish(e)
}

func (em *Emitter) fail(e *Event, err error) {
	em.metrics.EmissionFailure(string(e.Type))
	em.log.Error().Err(err).
		Str("record_id", e.RecordID.String()).
		Str("event_type", string(e.Type)).
		Str("source_type", string(e.Source.Kind)).
		Str("source_id", e.Source.ID.String()).
		Msg("event emission failed after entity write, needs reconciliation")
}

// Foundational emits the one-time record creation event. Not re-triggerable:
// the pre-check suppresses any repeat.
func (em *Emitter) Foundational(ctx context.Context, recordID uuid.UUID) {
	em.emit(ctx, &Event{
		RecordID:  recordID,
		Type:      TypeFoundational,
		EventDate: em.now(),
		Title:     "Clinical record created",
	}, nil)
}

// NoteFinalized emits the event for a Draft to Finalized transition.
func (em *Emitter) NoteFinalized(ctx context.Context, recordID, noteID uuid.UUID, encounterDate time.Time, noteTitle string) {
	desc := fmt.Sprintf("Clinical note %q finalized", noteTitle)
	em.emit(ctx, &Event{
		RecordID:    recordID,
		Type:        TypeNote,
		EventDate:   encounterDate,
		Source:      NoteRef(noteID),
		Title:       noteTitle,
		Description: &desc,
	}, nil)
}

// MedicationStarted emits the event for a newly created Active medication.
func (em *Emitter) MedicationStarted(ctx context.Context, recordID, medicationID uuid.UUID, issueDate time.Time, drug string, dosage float64, unit, frequency string) {
	desc := fmt.Sprintf("Started %s %g %s, %s", drug, dosage, unit, frequency)
	em.emit(ctx, &Event{
		RecordID:    recordID,
		Type:        TypeMedicationStart,
		EventDate:   issueDate,
		Source:      MedicationRef(medicationID),
		Title:       fmt.Sprintf("Medication started: %s", drug),
		Description: &desc,
	}, nil)
}

// MedicationChanged emits the event for a predecessor-linked successor row.
// The source is the successor, so a change following an earlier change on
// the same line is never suppressed by the pre-check.
func (em *Emitter) MedicationChanged(ctx context.Context, recordID, successorID uuid.UUID, effectiveDate time.Time, drug string, oldDosage, newDosage float64, unit string) {
	desc := fmt.Sprintf("Dosage of %s changed from %g %s to %g %s", drug, oldDosage, unit, newDosage, unit)
	em.emit(ctx, &Event{
		RecordID:    recordID,
		Type:        TypeMedicationChange,
		EventDate:   effectiveDate,
		Source:      MedicationRef(successorID),
		Title:       fmt.Sprintf("Medication changed: %s", drug),
		Description: &desc,
	}, nil)
}

// MedicationStopped emits the event for an Active to Discontinued
// transition.
func (em *Emitter) MedicationStopped(ctx context.Context, recordID, medicationID uuid.UUID, endDate time.Time, drug, reason string) {
	desc := fmt.Sprintf("Stopped %s: %s", drug, reason)
	if reason == "" {
		desc = fmt.Sprintf("Stopped %s", drug)
	}
	em.emit(ctx, &Event{
		RecordID:    recordID,
		Type:        TypeMedicationStop,
		EventDate:   endDate,
		Source:      MedicationRef(medicationID),
		Title:       fmt.Sprintf("Medication stopped: %s", drug),
		Description: &desc,
	}, nil)
}

// PrescriptionIssued emits the event for a repeat prescription on an Active
// medication. The same medication issues many prescriptions over time, so
// the pre-check is narrowed to the issue date.
func (em *Emitter) PrescriptionIssued(ctx context.Context, recordID, medicationID uuid.UUID, issueDate time.Time, drug string) {
	desc := fmt.Sprintf("New prescription issued for %s", drug)
	em.emit(ctx, &Event{
		RecordID:    recordID,
		Type:        TypePrescriptionIssued,
		EventDate:   issueDate,
		Source:      MedicationRef(medicationID),
		Title:       fmt.Sprintf("Prescription issued: %s", drug),
		Description: &desc,
	}, &issueDate)
}

// HistoryUpdated emits the event for a psychiatric history version of 2 or
// higher. Version 1 is created with the record and never calls this.
func (em *Emitter) HistoryUpdated(ctx context.Context, recordID, versionID uuid.UUID, versionNumber int) {
	desc := fmt.Sprintf("Psychiatric history updated to version %d", versionNumber)
	em.emit(ctx, &Event{
		RecordID:    recordID,
		Type:        TypeHistoryUpdate,
		EventDate:   em.now(),
		Source:      HistoryRef(versionID),
		Title:       "Psychiatric history updated",
		Description: &desc,
	}, nil)
}

// EncounterEnsured emits the encounter event for an appointment at its
// scheduled date, past or future. The pre-check makes repeated ensure calls
// converge on exactly one event.
func (em *Emitter) EncounterEnsured(ctx context.Context, recordID, appointmentID uuid.UUID, scheduledDate time.Time, reason string) {
	title := "Scheduled encounter"
	var desc *string
	if reason != "" {
		desc = &reason
	}
	em.emit(ctx, &Event{
		RecordID:    recordID,
		Type:        TypeEncounter,
		EventDate:   scheduledDate,
		Source:      AppointmentRef(appointmentID),
		Title:       title,
		Description: desc,
	}, nil)
}

// Manual appends a Hospitalization, LifeEvent, or Other event with no
// backing entity. Unlike the entity-triggered contracts there is no prior
// entity phase, so validation and persistence errors surface to the caller.
func (em *Emitter) Manual(ctx context.Context, recordID uuid.UUID, t EventType, eventDate time.Time, title string, description *string) (*Event, error) {
	manual := false
	for _, mt := range ManualTypes {
		if t == mt {
			manual = true
			break
		}
	}
	if !manual {
		return nil, clinerr.MissingFields("event type %q is not manually writable", t)
	}
	if title == "" {
		return nil, clinerr.MissingFields("title is required")
	}
	if err := ValidateEventDate(t, eventDate, em.now()); err != nil {
		return nil, err
	}

	e := &Event{
		ID:          uuid.New(),
		RecordID:    recordID,
		Type:        t,
		EventDate:   DateOnly(eventDate),
		RecordedAt:  em.now().UTC(),
		Title:       title,
		Description: description,
	}
	if err := em.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("append manual event: %w", err)
	}

	em.metrics.EventEmitted(string(e.Type))
	em.dispatcher.Publish(e)
	return e, nil
}

// WithClock replaces the wall clock. Tests only.
func (em *Emitter) WithClock(now func() time.Time) *Emitter {
	em.now = now
	return em
}
