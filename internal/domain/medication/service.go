package medication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinrec/clinrec/internal/domain/timeline"
	"github.com/clinrec/clinrec/internal/platform/clinerr"
	"github.com/clinrec/clinrec/internal/platform/db"
)

// maxChainHops bounds predecessor chain walks. Chains are acyclic by
// construction, the cap turns a corrupted chain into an error instead of an
// infinite loop.
const maxChainHops = 128

// Service owns the medication line of treatment. Start, Change, Stop and
// IssuePrescription each run the two-phase pattern: entity mutation in a
// transaction, then one event emission.
type Service struct {
	repo    Repository
	emitter *timeline.Emitter
	tx      db.Runner
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, emitter *timeline.Emitter, tx db.Runner, log zerolog.Logger) *Service {
	return &Service{repo: repo, emitter: emitter, tx: tx, log: log, now: time.Now}
}

// Start creates a new Active medication and emits the MedicationStart event.
func (s *Service) Start(ctx context.Context, m *Medication) (*Medication, error) {
	if m.RecordID == uuid.Nil {
		return nil, clinerr.MissingFields("clinical_record_id is required")
	}
	if m.Drug == "" || m.Unit == "" || m.Frequency == "" {
		return nil, clinerr.MissingFields("drug, unit and frequency are required")
	}
	if m.Dosage <= 0 {
		return nil, clinerr.MissingFields("dosage must be positive")
	}
	if m.PrescriptionIssueDate.IsZero() {
		return nil, clinerr.MissingFields("prescription_issue_date is required")
	}
	if err := timeline.ValidateEventDate(timeline.TypeMedicationStart, m.PrescriptionIssueDate, s.now()); err != nil {
		return nil, err
	}

	m.Status = StatusActive
	m.PrescriptionIssueDate = timeline.DateOnly(m.PrescriptionIssueDate)
	m.EndDate = nil
	m.PredecessorID = nil
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	s.emitter.MedicationStarted(ctx, m.RecordID, m.ID, m.PrescriptionIssueDate, m.Drug, m.Dosage, m.Unit, m.Frequency)
	return m, nil
}

// Change discontinues the predecessor and creates an Active successor linked
// by predecessor id, atomically, then emits one MedicationChange event. The
// effective date may be in the future: the predecessor then carries a future
// end date and keeps its Active status until that date arrives.
func (s *Service) Change(ctx context.Context, predecessorID uuid.UUID, newDosage float64, effectiveDate time.Time) (*Medication, error) {
	pred, err := s.get(ctx, predecessorID)
	if err != nil {
		return nil, err
	}
	if !pred.Active() {
		return nil, clinerr.StateConflict("medication %s is not active", predecessorID)
	}
	if newDosage <= 0 {
		return nil, clinerr.MissingFields("dosage must be positive")
	}
	effectiveDate = timeline.DateOnly(effectiveDate)
	if effectiveDate.Before(pred.PrescriptionIssueDate) {
		return nil, clinerr.InvalidDateRange("effective date %s is before the original start %s",
			effectiveDate.Format("2006-01-02"), pred.PrescriptionIssueDate.Format("2006-01-02"))
	}

	endDate := effectiveDate.AddDate(0, 0, -1)
	if endDate.Before(pred.PrescriptionIssueDate) {
		endDate = pred.PrescriptionIssueDate
	}
	status := StatusActive
	if !endDate.After(timeline.DateOnly(s.now())) {
		status = StatusDiscontinued
	}
	reason := fmt.Sprintf("Dosage changed to %g %s", newDosage, pred.Unit)

	successor := &Medication{
		RecordID:              pred.RecordID,
		Drug:                  pred.Drug,
		Dosage:                newDosage,
		Unit:                  pred.Unit,
		Frequency:             pred.Frequency,
		PrescriptionIssueDate: effectiveDate,
		Status:                StatusActive,
		PredecessorID:         &pred.ID,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Discontinue(ctx, pred.ID, endDate, status, &reason); err != nil {
			return err
		}
		return s.repo.Create(ctx, successor)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.StateConflict("medication %s is not active", predecessorID)
		}
		return nil, err
	}

	s.emitter.MedicationChanged(ctx, pred.RecordID, successor.ID, effectiveDate, pred.Drug, pred.Dosage, newDosage, pred.Unit)
	return successor, nil
}

// Stop discontinues an Active medication and emits the MedicationStop event.
func (s *Service) Stop(ctx context.Context, id uuid.UUID, endDate time.Time, reason string) (*Medication, error) {
	m, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Active() {
		return nil, clinerr.StateConflict("medication %s is not active", id)
	}
	endDate = timeline.DateOnly(endDate)
	if endDate.Before(m.PrescriptionIssueDate) {
		return nil, clinerr.InvalidDateRange("end date %s is before the start date %s",
			endDate.Format("2006-01-02"), m.PrescriptionIssueDate.Format("2006-01-02"))
	}
	if err := timeline.ValidateEventDate(timeline.TypeMedicationStop, endDate, s.now()); err != nil {
		return nil, err
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.repo.Discontinue(ctx, id, endDate, StatusDiscontinued, reasonPtr)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.StateConflict("medication %s is not active", id)
		}
		return nil, err
	}

	s.emitter.MedicationStopped(ctx, m.RecordID, m.ID, endDate, m.Drug, reason)
	return s.get(ctx, id)
}

// IssuePrescription logs a repeat prescription on an Active medication
// without altering its parameters, then emits the prescription event. The
// issue date must be strictly after the medication's original issue date;
// future dates are allowed and stay hidden from reads until due.
func (s *Service) IssuePrescription(ctx context.Context, medicationID uuid.UUID, issueDate time.Time) (*Prescription, error) {
	m, err := s.get(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	if !m.Active() {
		return nil, clinerr.StateConflict("medication %s is not active", medicationID)
	}
	issueDate = timeline.DateOnly(issueDate)
	if !issueDate.After(m.PrescriptionIssueDate) {
		return nil, clinerr.InvalidDateRange("issue date %s must be after the original issue date %s",
			issueDate.Format("2006-01-02"), m.PrescriptionIssueDate.Format("2006-01-02"))
	}

	p := &Prescription{MedicationID: medicationID, IssueDate: issueDate}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.repo.AddPrescription(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.emitter.PrescriptionIssued(ctx, m.RecordID, m.ID, issueDate, m.Drug)
	return p, nil
}

// Get returns a medication with its logged prescriptions.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medication, []*Prescription, error) {
	m, err := s.get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	prescriptions, err := s.repo.ListPrescriptions(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return m, prescriptions, nil
}

// Chain walks the predecessor chain from the given row back to the first
// medication in its line, newest first. The walk is capped; exceeding the
// cap means the chain is corrupted.
func (s *Service) Chain(ctx context.Context, id uuid.UUID) ([]*Medication, error) {
	seen := make(map[uuid.UUID]bool)
	var chain []*Medication
	next := &id
	for hops := 0; next != nil; hops++ {
		if hops >= maxChainHops || seen[*next] {
			return nil, fmt.Errorf("medication %s: predecessor chain exceeds %d hops or cycles", id, maxChainHops)
		}
		seen[*next] = true
		m, err := s.get(ctx, *next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, m)
		next = m.PredecessorID
	}
	return chain, nil
}

// ListByRecord returns every medication row on a record, discontinued
// predecessors included.
func (s *Service) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Medication, error) {
	return s.repo.ListByRecord(ctx, recordID)
}

// ActiveByRecord returns the medications active today. Expired rows left
// behind by a future-dated change are reconciled to Discontinued first, so
// the stored status never drifts from the dates.
func (s *Service) ActiveByRecord(ctx context.Context, recordID uuid.UUID) ([]*Medication, error) {
	today := timeline.DateOnly(s.now())
	if err := s.repo.ReconcileExpired(ctx, recordID, today); err != nil {
		return nil, err
	}
	return s.repo.ListActiveByRecord(ctx, recordID, today)
}

// ActiveOn returns the medications that were in effect on the given date.
func (s *Service) ActiveOn(ctx context.Context, recordID uuid.UUID, on time.Time) ([]*Medication, error) {
	return s.repo.ListActiveOn(ctx, recordID, timeline.DateOnly(on))
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Medication, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.NotFound(clinerr.CodeMedicationNotFound, "medication %s not found", id)
		}
		return nil, err
	}
	return m, nil
}

// WithClock replaces the wall clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
