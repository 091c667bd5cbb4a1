package record

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

// HistorySeeder creates version 1 of the psychiatric history inside the
// record creation transaction. Implemented by the history service; an
// interface here keeps this package from importing it.
type HistorySeeder interface {
	SeedInitialVersion(ctx context.Context, recordID uuid.UUID) error
}

// Service owns patient and clinical record creation. Creating a patient is
// two-phase: a transaction writes patient + record + history v1, then the
// Foundational event emission runs outside it.
type Service struct {
	repo    Repository
	seeder  HistorySeeder
	emitter *timeline.Emitter
	tx      db.Runner
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, seeder HistorySeeder, emitter *timeline.Emitter, tx db.Runner, log zerolog.Logger) *Service {
	return &Service{repo: repo, seeder: seeder, emitter: emitter, tx: tx, log: log, now: time.Now}
}

// CreatePatient validates, writes patient + clinical record + history v1
// atomically, then emits the Foundational event. History v1 is silent on
// the timeline.
func (s *Service) CreatePatient(ctx context.Context, p *Patient) (*ClinicalRecord, error) {
	if p.FirstName == "" || p.LastName == "" {
		return nil, clinerr.MissingFields("first_name and last_name are required")
	}
	if p.DateOfBirth.IsZero() {
		return nil, clinerr.MissingFields("date_of_birth is required")
	}
	if timeline.DateOnly(p.DateOfBirth).After(timeline.DateOnly(s.now())) {
		return nil, clinerr.MissingFields("date_of_birth is in the future")
	}

	rec := &ClinicalRecord{}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreatePatient(ctx, p); err != nil {
			return err
		}
		rec.PatientID = p.ID
		if err := s.repo.CreateRecord(ctx, rec); err != nil {
			return err
		}
		return s.seeder.SeedInitialVersion(ctx, rec.ID)
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Foundational(ctx, rec.ID)
	return rec, nil
}

// GetPatient returns the patient or PATIENT_NOT_FOUND.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.NotFound(clinerr.CodePatientNotFound, "patient %s not found", id)
		}
		return nil, err
	}
	return p, nil
}

// ListPatients returns a page of patients.
func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListPatients(ctx, limit, offset)
}

// RecordIDByPatient resolves the patient's clinical record, satisfying
// timeline.RecordResolver.
func (s *Service) RecordIDByPatient(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error) {
	rec, err := s.repo.GetRecordByPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, clinerr.NotFound(clinerr.CodePatientNotFound, "patient %s not found", patientID)
		}
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// RecordByPatient returns the full clinical record row.
func (s *Service) RecordByPatient(ctx context.Context, patientID uuid.UUID) (*ClinicalRecord, error) {
	rec, err := s.repo.GetRecordByPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.NotFound(clinerr.CodePatientNotFound, "patient %s not found", patientID)
		}
		return nil, err
	}
	return rec, nil
}

// WithClock replaces the wall clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
