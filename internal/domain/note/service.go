package note

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

// Service owns the note lifecycle. Drafts never touch the timeline; the
// Draft to Finalized transition is the only point that emits an event, and
// it runs two-phase like every entity-backed contract.
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

// CreateDraft inserts a new Draft note. Content fields may be empty at this
// point; completeness is checked at finalization.
func (s *Service) CreateDraft(ctx context.Context, n *ClinicalNote) (*ClinicalNote, error) {
	if n.RecordID == uuid.Nil {
		return nil, clinerr.MissingFields("clinical_record_id is required")
	}
	if n.EncounterDate.IsZero() {
		return nil, clinerr.MissingFields("encounter_date is required")
	}
	n.Status = StatusDraft
	n.EncounterDate = timeline.DateOnly(n.EncounterDate)
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// UpdateDraft overwrites the content of a Draft. Finalized notes are
// immutable and reject the update with STATE_CONFLICT.
func (s *Service) UpdateDraft(ctx context.Context, n *ClinicalNote) (*ClinicalNote, error) {
	existing, err := s.get(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	if existing.Finalized() {
		return nil, clinerr.StateConflict("note %s is finalized and cannot be edited", n.ID)
	}
	if n.EncounterDate.IsZero() {
		return nil, clinerr.MissingFields("encounter_date is required")
	}
	n.EncounterDate = timeline.DateOnly(n.EncounterDate)
	if err := s.repo.UpdateDraft(ctx, n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.StateConflict("note %s is finalized and cannot be edited", n.ID)
		}
		return nil, err
	}
	return s.get(ctx, n.ID)
}

// DeleteDraft removes a Draft. Finalized notes cannot be deleted.
func (s *Service) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	existing, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Finalized() {
		return clinerr.StateConflict("note %s is finalized and cannot be deleted", id)
	}
	if err := s.repo.DeleteDraft(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return clinerr.StateConflict("note %s is finalized and cannot be deleted", id)
		}
		return err
	}
	return nil
}

// Finalize runs the one-way Draft to Finalized transition. It requires
// non-empty subjective, assessment and plan sections and a non-future
// encounter date, stamps the note in a transaction, then emits the Note
// event. Repeat calls hit STATE_CONFLICT and emit nothing.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID) (*ClinicalNote, error) {
	n, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Finalized() {
		return nil, clinerr.StateConflict("note %s is already finalized", id)
	}
	var missing []string
	if n.Subjective == "" {
		missing = append(missing, "subjective")
	}
	if n.Assessment == "" {
		missing = append(missing, "assessment")
	}
	if n.Plan == "" {
		missing = append(missing, "plan")
	}
	if len(missing) > 0 {
		return nil, clinerr.MissingFields("cannot finalize note: %v must be non-empty", missing)
	}
	if err := timeline.ValidateEventDate(timeline.TypeNote, n.EncounterDate, s.now()); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.repo.Finalize(ctx, id)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.StateConflict("note %s is already finalized", id)
		}
		return nil, err
	}

	s.emitter.NoteFinalized(ctx, n.RecordID, n.ID, n.EncounterDate, n.Title())
	return s.get(ctx, id)
}

// AddAddendum appends an immutable correction to a finalized note. Drafts
// take edits directly and reject addenda.
func (s *Service) AddAddendum(ctx context.Context, noteID uuid.UUID, content string) (*Addendum, error) {
	if content == "" {
		return nil, clinerr.MissingFields("content is required")
	}
	n, err := s.get(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if !n.Finalized() {
		return nil, clinerr.StateConflict("note %s is a draft, edit it directly", noteID)
	}
	a := &Addendum{NoteID: noteID, Content: content}
	if err := s.repo.AddAddendum(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns a note with its addenda.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ClinicalNote, []*Addendum, error) {
	n, err := s.get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	addenda, err := s.repo.ListAddenda(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return n, addenda, nil
}

// ListByRecord returns all notes on a record, drafts included.
func (s *Service) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*ClinicalNote, error) {
	return s.repo.ListByRecord(ctx, recordID)
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*ClinicalNote, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.NotFound(clinerr.CodeNoteNotFound, "note %s not found", id)
		}
		return nil, err
	}
	return n, nil
}

// WithClock replaces the wall clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
