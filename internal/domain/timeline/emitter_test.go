package timeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/platform/clinerr"
	"github.com/clinrec/clinrec/internal/platform/telemetry"
)

func TestManual_FutureDateRejected(t *testing.T) {
	store := newMockStore()
	em := newTestEmitter(store, date(2026, 3, 10))

	_, err := em.Manual(context.Background(), uuid.New(), TypeHospitalization,
		date(2026, 3, 11), "Admitted", nil)
	if !clinerr.HasCode(err, clinerr.CodeMissingRequiredFields) {
		t.Fatalf("expected MISSING_REQUIRED_FIELDS, got %v", err)
	}
	if !strings.Contains(err.Error(), "future") {
		t.Errorf("error message must name the future-date violation, got %q", err.Error())
	}
	if len(store.events) != 0 {
		t.Error("no event may be created on validation failure")
	}
}

func TestManual_RequiresTitle(t *testing.T) {
	em := newTestEmitter(newMockStore(), date(2026, 3, 10))

	_, err := em.Manual(context.Background(), uuid.New(), TypeLifeEvent, date(2026, 3, 1), "", nil)
	if !clinerr.HasCode(err, clinerr.CodeMissingRequiredFields) {
		t.Fatalf("expected MISSING_REQUIRED_FIELDS, got %v", err)
	}
}

func TestManual_RejectsEntityBackedTypes(t *testing.T) {
	em := newTestEmitter(newMockStore(), date(2026, 3, 10))

	for _, typ := range []EventType{TypeNote, TypeMedicationStart, TypeEncounter, TypeFoundational} {
		if _, err := em.Manual(context.Background(), uuid.New(), typ, date(2026, 3, 1), "x", nil); err == nil {
			t.Errorf("%s must not be manually writable", typ)
		}
	}
}

func TestManual_Backdated(t *testing.T) {
	store := newMockStore()
	today := date(2026, 3, 10)
	em := newTestEmitter(store, today)

	desc := "inpatient stay, discharged after two weeks"
	e, err := em.Manual(context.Background(), uuid.New(), TypeHospitalization,
		date(2019, 6, 1), "Hospitalized", &desc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !DateOnly(e.EventDate).Equal(date(2019, 6, 1)) {
		t.Errorf("eventDate must keep the backdated value, got %v", e.EventDate)
	}
	if !e.RecordedAt.After(e.EventDate) {
		t.Error("recordedAt must reflect documentation time, not the backdated eventDate")
	}
	if _, ok := store.events[e.ID]; !ok {
		t.Error("event must be persisted")
	}
}

func TestFoundational_Idempotent(t *testing.T) {
	store := newMockStore()
	recordID := uuid.New()
	em := newTestEmitter(store, date(2026, 3, 10))

	em.Foundational(context.Background(), recordID)
	em.Foundational(context.Background(), recordID)

	if len(store.events) != 1 {
		t.Fatalf("expected exactly one Foundational event, got %d", len(store.events))
	}
	for _, e := range store.events {
		if e.Type != TypeFoundational {
			t.Errorf("expected Foundational, got %s", e.Type)
		}
		if !e.Source.IsZero() {
			t.Error("Foundational events carry no source reference")
		}
	}
}

func TestEncounterEnsured_Idempotent(t *testing.T) {
	store := newMockStore()
	recordID := uuid.New()
	apptID := uuid.New()
	em := newTestEmitter(store, date(2026, 3, 10))

	em.EncounterEnsured(context.Background(), recordID, apptID, date(2026, 4, 1), "review")
	em.EncounterEnsured(context.Background(), recordID, apptID, date(2026, 4, 1), "review")

	if len(store.events) != 1 {
		t.Fatalf("ensure called twice must yield exactly one event, got %d", len(store.events))
	}
}

func TestPrescriptionIssued_RepeatableAcrossDates(t *testing.T) {
	store := newMockStore()
	recordID := uuid.New()
	medID := uuid.New()
	em := newTestEmitter(store, date(2026, 3, 10))

	em.PrescriptionIssued(context.Background(), recordID, medID, date(2026, 2, 1), "Sertraline")
	em.PrescriptionIssued(context.Background(), recordID, medID, date(2026, 3, 1), "Sertraline")
	// Retry of the second issuance: suppressed.
	em.PrescriptionIssued(context.Background(), recordID, medID, date(2026, 3, 1), "Sertraline")

	if len(store.events) != 2 {
		t.Fatalf("expected 2 prescription events, got %d", len(store.events))
	}
}

func TestEmit_FailureIsSwallowedAndCounted(t *testing.T) {
	store := newMockStore()
	store.appendErr = errors.New("connection reset")
	metrics := telemetry.NewProvider()
	em := NewEmitter(store, NewDispatcher(zerolog.Nop()), metrics, zerolog.Nop()).
		WithClock(fixedClock(date(2026, 3, 10)))

	// Must not panic or surface the failure.
	em.NoteFinalized(context.Background(), uuid.New(), uuid.New(), date(2026, 3, 9), "Session")

	if got := metrics.GetCounter("clinical.event.emission_failure", string(TypeNote)); got != 1 {
		t.Errorf("expected 1 counted failure, got %d", got)
	}
	if got := metrics.GetCounter("clinical.event.emitted", string(TypeNote)); got != 0 {
		t.Errorf("expected no emitted count, got %d", got)
	}
}

func TestEmit_ReEmissionHealsMissingEvent(t *testing.T) {
	store := newMockStore()
	store.appendErr = errors.New("connection reset")
	recordID := uuid.New()
	noteID := uuid.New()
	em := newTestEmitter(store, date(2026, 3, 10))

	em.NoteFinalized(context.Background(), recordID, noteID, date(2026, 3, 9), "Session")
	if len(store.events) != 0 {
		t.Fatal("precondition: first emission failed")
	}

	// Recovery re-runs the emission once the store is healthy.
	store.appendErr = nil
	em.NoteFinalized(context.Background(), recordID, noteID, date(2026, 3, 9), "Session")
	em.NoteFinalized(context.Background(), recordID, noteID, date(2026, 3, 9), "Session")

	if len(store.events) != 1 {
		t.Fatalf("expected exactly one event after recovery, got %d", len(store.events))
	}
}

func TestNoteFinalized_EventShape(t *testing.T) {
	store := newMockStore()
	recordID := uuid.New()
	noteID := uuid.New()
	em := newTestEmitter(store, date(2026, 3, 10))

	em.NoteFinalized(context.Background(), recordID, noteID, date(2026, 3, 2), "Intake assessment")

	if len(store.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(store.events))
	}
	for _, e := range store.events {
		if e.Type != TypeNote {
			t.Errorf("expected Note, got %s", e.Type)
		}
		if e.Source != NoteRef(noteID) {
			t.Errorf("expected note source ref, got %+v", e.Source)
		}
		if e.Title != "Intake assessment" {
			t.Errorf("title generated once at emission, got %q", e.Title)
		}
		if e.RecordID != recordID {
			t.Error("event must belong to the triggering record")
		}
	}
}

func TestValidateEventDate(t *testing.T) {
	today := date(2026, 3, 10)

	if err := ValidateEventDate(TypeNote, date(2026, 3, 11), today); err == nil {
		t.Error("Note: future date must be rejected")
	}
	if err := ValidateEventDate(TypeNote, today, today); err != nil {
		t.Errorf("Note: today must be accepted, got %v", err)
	}
	if err := ValidateEventDate(TypeNote, date(2001, 1, 1), today); err != nil {
		t.Errorf("Note: arbitrary backdating must be accepted, got %v", err)
	}

	for _, typ := range []EventType{TypeMedicationChange, TypePrescriptionIssued, TypeEncounter} {
		if err := ValidateEventDate(typ, date(2026, 12, 1), today); err != nil {
			t.Errorf("%s: future date must be permitted, got %v", typ, err)
		}
	}

	err := ValidateEventDate(TypeHospitalization, date(2026, 3, 11), today)
	if err == nil || !strings.Contains(err.Error(), "future") {
		t.Errorf("violation message must contain \"future\", got %v", err)
	}
}

func TestMedicationChanged_DistinctSuccessorsNotSuppressed(t *testing.T) {
	store := newMockStore()
	recordID := uuid.New()
	em := newTestEmitter(store, date(2026, 3, 10))

	em.MedicationChanged(context.Background(), recordID, uuid.New(), date(2026, 2, 1), "Sertraline", 50, 75, "mg")
	em.MedicationChanged(context.Background(), recordID, uuid.New(), date(2026, 3, 1), "Sertraline", 75, 100, "mg")

	if len(store.events) != 2 {
		t.Fatalf("distinct successor rows must each emit, got %d events", len(store.events))
	}
}
