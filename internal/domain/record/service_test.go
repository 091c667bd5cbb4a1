package record

import (
	"context"
	"errors"
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
	patients  map[uuid.UUID]*Patient
	records   map[uuid.UUID]*ClinicalRecord
	createErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients: make(map[uuid.UUID]*Patient),
		records:  make(map[uuid.UUID]*ClinicalRecord),
	}
}

func (m *mockRepo) CreatePatient(_ context.Context, p *Patient) error {
	if m.createErr != nil {
		return m.createErr
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockRepo) ListPatients(_ context.Context, _, _ int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockRepo) CreateRecord(_ context.Context, r *ClinicalRecord) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.records[r.ID] = r
	return nil
}

func (m *mockRepo) GetRecordByPatient(_ context.Context, patientID uuid.UUID) (*ClinicalRecord, error) {
	for _, r := range m.records {
		if r.PatientID == patientID {
			return r, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) GetRecord(_ context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r, nil
}

type passRunner struct{}

func (passRunner) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type mockSeeder struct {
	seeded []uuid.UUID
	err    error
}

func (m *mockSeeder) SeedInitialVersion(_ context.Context, recordID uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.seeded = append(m.seeded, recordID)
	return nil
}

// eventSink is a minimal in-memory timeline.Store for observing emissions.
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

func newTestService(repo *mockRepo, sink *eventSink, seeder *mockSeeder) *Service {
	em := timeline.NewEmitter(sink, timeline.NewDispatcher(zerolog.Nop()), telemetry.NewProvider(), zerolog.Nop())
	return NewService(repo, seeder, em, passRunner{}, zerolog.Nop())
}

// -- Tests --

func TestCreatePatient_TwoPhase(t *testing.T) {
	repo := newMockRepo()
	sink := &eventSink{}
	seeder := &mockSeeder{}
	svc := newTestService(repo, sink, seeder)

	p := &Patient{FirstName: "Ada", LastName: "Byron", DateOfBirth: time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)}
	rec, err := svc.CreatePatient(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.PatientID != p.ID {
		t.Error("record must belong to the new patient")
	}
	if len(seeder.seeded) != 1 || seeder.seeded[0] != rec.ID {
		t.Error("history v1 must be seeded for the new record")
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected exactly one Foundational event, got %d", len(sink.events))
	}
	if sink.events[0].Type != timeline.TypeFoundational {
		t.Errorf("expected Foundational, got %s", sink.events[0].Type)
	}
	if sink.events[0].RecordID != rec.ID {
		t.Error("event must reference the new record")
	}
}

func TestCreatePatient_Validation(t *testing.T) {
	svc := newTestService(newMockRepo(), &eventSink{}, &mockSeeder{})
	dob := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		p    *Patient
	}{
		{"missing first name", &Patient{LastName: "Byron", DateOfBirth: dob}},
		{"missing last name", &Patient{FirstName: "Ada", DateOfBirth: dob}},
		{"missing dob", &Patient{FirstName: "Ada", LastName: "Byron"}},
		{"future dob", &Patient{FirstName: "Ada", LastName: "Byron", DateOfBirth: time.Now().AddDate(1, 0, 0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreatePatient(context.Background(), tc.p)
			if !clinerr.HasCode(err, clinerr.CodeMissingRequiredFields) {
				t.Fatalf("expected MISSING_REQUIRED_FIELDS, got %v", err)
			}
		})
	}
}

func TestCreatePatient_TxFailureEmitsNothing(t *testing.T) {
	repo := newMockRepo()
	sink := &eventSink{}
	seeder := &mockSeeder{err: errors.New("seed failed")}
	svc := newTestService(repo, sink, seeder)

	p := &Patient{FirstName: "Ada", LastName: "Byron", DateOfBirth: time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)}
	if _, err := svc.CreatePatient(context.Background(), p); err == nil {
		t.Fatal("expected error from failed transaction")
	}
	if len(sink.events) != 0 {
		t.Error("no event may be emitted when the entity phase fails")
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc := newTestService(newMockRepo(), &eventSink{}, &mockSeeder{})

	missing := uuid.New()
	_, err := svc.GetPatient(context.Background(), missing)
	if !clinerr.HasCode(err, clinerr.CodePatientNotFound) {
		t.Fatalf("expected PATIENT_NOT_FOUND, got %v", err)
	}
}

func TestRecordIDByPatient(t *testing.T) {
	repo := newMockRepo()
	sink := &eventSink{}
	svc := newTestService(repo, sink, &mockSeeder{})

	p := &Patient{FirstName: "Ada", LastName: "Byron", DateOfBirth: time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)}
	rec, err := svc.CreatePatient(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.RecordIDByPatient(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != rec.ID {
		t.Error("resolver must return the patient's record")
	}

	_, err = svc.RecordIDByPatient(context.Background(), uuid.New())
	if !clinerr.HasCode(err, clinerr.CodePatientNotFound) {
		t.Fatalf("expected PATIENT_NOT_FOUND, got %v", err)
	}
}
