package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/domain/timeline"
	"github.com/clinrec/clinrec/internal/platform/clinerr"
	"github.com/clinrec/clinrec/internal/platform/telemetry"
)

// -- Mocks --

type mockRepo struct {
	appointments map[uuid.UUID]*Appointment
}

func newMockRepo() *mockRepo {
	return &mockRepo{appointments: make(map[uuid.UUID]*Appointment)}
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	cp := *a
	m.appointments[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appointments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) ListByRecord(_ context.Context, recordID uuid.UUID) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.appointments {
		if a.RecordID == recordID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateSchedule(_ context.Context, id uuid.UUID, scheduledDate time.Time) error {
	a, ok := m.appointments[id]
	if !ok || a.Status != StatusScheduled {
		return pgx.ErrNoRows
	}
	a.ScheduledDate = scheduledDate
	return nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	a, ok := m.appointments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Status = status
	return nil
}

type passRunner struct{}

func (passRunner) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// eventSink is an in-memory timeline.Store that also serves as the purger.
type eventSink struct {
	events []*timeline.Event
}

func (s *eventSink) Append(_ context.Context, e *timeline.Event) error {
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *eventSink) GetByID(_ context.Context, _ uuid.UUID) (*timeline.Event, error) {
	return nil, pgx.ErrNoRows
}

func (s *eventSink) ListByRecord(_ context.Context, _ uuid.UUID, _ timeline.Filter) ([]*timeline.Event, error) {
	return s.events, nil
}

func (s *eventSink) ExistsBySource(_ context.Context, recordID uuid.UUID, src timeline.SourceRef, t timeline.EventType, _ *time.Time) (bool, error) {
	for _, e := range s.events {
		if e.RecordID == recordID && e.Source == src && e.Type == t {
			return true, nil
		}
	}
	return false, nil
}

func (s *eventSink) CountByRecord(_ context.Context, _ uuid.UUID) (int, error) {
	return len(s.events), nil
}

func (s *eventSink) PurgeFutureEncounterEvent(_ context.Context, appointmentID uuid.UUID, today time.Time) error {
	kept := s.events[:0]
	for _, e := range s.events {
		if e.Type == timeline.TypeEncounter &&
			e.Source == timeline.AppointmentRef(appointmentID) &&
			e.EventDate.After(today) {
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return nil
}

func (s *eventSink) encounterFor(appointmentID uuid.UUID) []*timeline.Event {
	var out []*timeline.Event
	for _, e := range s.events {
		if e.Type == timeline.TypeEncounter && e.Source == timeline.AppointmentRef(appointmentID) {
			out = append(out, e)
		}
	}
	return out
}

var today = time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC)

func newTestService(repo *mockRepo, sink *eventSink) *Service {
	clock := func() time.Time { return today }
	em := timeline.NewEmitter(sink, timeline.NewDispatcher(zerolog.Nop()), telemetry.NewProvider(), zerolog.Nop()).WithClock(clock)
	return NewService(repo, em, sink, passRunner{}, zerolog.Nop()).WithClock(clock)
}

func schedule(t *testing.T, svc *Service, recordID uuid.UUID, on time.Time) *Appointment {
	t.Helper()
	a, err := svc.Create(context.Background(), &Appointment{
		RecordID:      recordID,
		ScheduledDate: on,
		Reason:        "follow-up",
	})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return a
}

// -- Tests --

func TestCreate_EmitsEncounterEvent(t *testing.T) {
	sink := &eventSink{}
	svc := newTestService(newMockRepo(), sink)

	future := today.AddDate(0, 0, 14)
	a := schedule(t, svc, uuid.New(), future)

	events := sink.encounterFor(a.ID)
	if len(events) != 1 {
		t.Fatalf("expected one Encounter event, got %d", len(events))
	}
	if !events[0].EventDate.Equal(future) {
		t.Errorf("event must carry the scheduled date, got %s", events[0].EventDate)
	}
}

func TestEnsureEncounterEvent_Idempotent(t *testing.T) {
	sink := &eventSink{}
	svc := newTestService(newMockRepo(), sink)

	a := schedule(t, svc, uuid.New(), today.AddDate(0, 0, 7))
	for i := 0; i < 3; i++ {
		if err := svc.EnsureEncounterEvent(context.Background(), a.ID); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	if got := len(sink.encounterFor(a.ID)); got != 1 {
		t.Errorf("repeated ensure must converge on one event, got %d", got)
	}
}

func TestReschedule_ReplacesEvent(t *testing.T) {
	repo := newMockRepo()
	sink := &eventSink{}
	svc := newTestService(repo, sink)

	a := schedule(t, svc, uuid.New(), today.AddDate(0, 0, 7))
	newDate := today.AddDate(0, 0, 21)
	moved, err := svc.Reschedule(context.Background(), a.ID, newDate)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !moved.ScheduledDate.Equal(newDate) {
		t.Error("appointment must carry the new date")
	}

	events := sink.encounterFor(a.ID)
	if len(events) != 1 {
		t.Fatalf("expected exactly one Encounter event after reschedule, got %d", len(events))
	}
	if !events[0].EventDate.Equal(newDate) {
		t.Errorf("event must sit at the new date, got %s", events[0].EventDate)
	}
}

func TestReschedule_PastAppointmentRejected(t *testing.T) {
	sink := &eventSink{}
	svc := newTestService(newMockRepo(), sink)

	a := schedule(t, svc, uuid.New(), today.AddDate(0, 0, -7))
	_, err := svc.Reschedule(context.Background(), a.ID, today.AddDate(0, 0, 7))
	if !clinerr.HasCode(err, clinerr.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
	if got := len(sink.encounterFor(a.ID)); got != 1 {
		t.Errorf("the past event must be untouched, got %d", got)
	}
}

func TestCancel_FutureDeletesEvent(t *testing.T) {
	repo := newMockRepo()
	sink := &eventSink{}
	svc := newTestService(repo, sink)

	a := schedule(t, svc, uuid.New(), today.AddDate(0, 0, 7))
	cancelled, err := svc.Cancel(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled status, got %s", cancelled.Status)
	}
	if got := len(sink.encounterFor(a.ID)); got != 0 {
		t.Errorf("cancelling a future appointment must delete its event, got %d", got)
	}

	if err := svc.EnsureEncounterEvent(context.Background(), a.ID); !clinerr.HasCode(err, clinerr.CodeStateConflict) {
		t.Errorf("ensure on a cancelled appointment: expected STATE_CONFLICT, got %v", err)
	}
}

func TestCancel_PastRejected(t *testing.T) {
	sink := &eventSink{}
	svc := newTestService(newMockRepo(), sink)

	a := schedule(t, svc, uuid.New(), today)
	_, err := svc.Cancel(context.Background(), a.ID)
	if !clinerr.HasCode(err, clinerr.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT for a due appointment, got %v", err)
	}
	if got := len(sink.encounterFor(a.ID)); got != 1 {
		t.Errorf("the event must survive, got %d", got)
	}
}

func TestMarkNoShow_EventSurvives(t *testing.T) {
	repo := newMockRepo()
	sink := &eventSink{}
	svc := newTestService(repo, sink)

	a := schedule(t, svc, uuid.New(), today.AddDate(0, 0, -3))
	marked, err := svc.MarkNoShow(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("no-show: %v", err)
	}
	if marked.Status != StatusNoShow {
		t.Errorf("expected no_show, got %s", marked.Status)
	}
	if got := len(sink.encounterFor(a.ID)); got != 1 {
		t.Errorf("the past event must survive the status change, got %d", got)
	}
}

func TestMarkNoShow_FutureRejected(t *testing.T) {
	svc := newTestService(newMockRepo(), &eventSink{})

	a := schedule(t, svc, uuid.New(), today.AddDate(0, 0, 3))
	if _, err := svc.MarkNoShow(context.Background(), a.ID); !clinerr.HasCode(err, clinerr.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	svc := newTestService(newMockRepo(), &eventSink{})

	a := schedule(t, svc, uuid.New(), today)
	completed, err := svc.Complete(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", completed.Status)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(newMockRepo(), &eventSink{})
	if _, err := svc.Get(context.Background(), uuid.New()); !clinerr.HasCode(err, clinerr.CodeAppointmentNotFound) {
		t.Fatalf("expected APPOINTMENT_NOT_FOUND, got %v", err)
	}
}
