package history

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

// Sections is the free-text content of one history version.
type Sections struct {
	Presenting    string `json:"presenting_complaints"`
	PastHistory   string `json:"past_history"`
	FamilyHistory string `json:"family_history"`
	SocialHistory string `json:"social_history"`
}

// Service owns the psychiatric history version chain. Version 1 is seeded
// inside the record creation transaction and never touches the timeline;
// every later version supersedes its predecessor atomically and emits one
// HistoryUpdate event.
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

// SeedInitialVersion inserts version 1 with empty sections. It runs inside
// the caller's transaction and emits nothing.
func (s *Service) SeedInitialVersion(ctx context.Context, recordID uuid.UUID) error {
	return s.repo.Create(ctx, &Version{
		RecordID:      recordID,
		VersionNumber: 1,
		IsCurrent:     true,
	})
}

// Update supersedes the current version and inserts the next one with the
// given sections, atomically, then emits the HistoryUpdate event.
func (s *Service) Update(ctx context.Context, recordID uuid.UUID, sections Sections) (*Version, error) {
	current, err := s.Current(ctx, recordID)
	if err != nil {
		return nil, err
	}

	next := &Version{
		RecordID:      recordID,
		VersionNumber: current.VersionNumber + 1,
		IsCurrent:     true,
		Presenting:    sections.Presenting,
		PastHistory:   sections.PastHistory,
		FamilyHistory: sections.FamilyHistory,
		SocialHistory: sections.SocialHistory,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Supersede(ctx, current.ID, s.now().UTC()); err != nil {
			return err
		}
		return s.repo.Create(ctx, next)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.StateConflict("history version %d for record %s was superseded concurrently", current.VersionNumber, recordID)
		}
		return nil, err
	}

	s.emitter.HistoryUpdated(ctx, recordID, next.ID, next.VersionNumber)
	return next, nil
}

// Current returns the single current version for a record.
func (s *Service) Current(ctx context.Context, recordID uuid.UUID) (*Version, error) {
	v, err := s.repo.GetCurrent(ctx, recordID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.NotFound(clinerr.CodeHistoryNotFound, "no history for record %s", recordID)
		}
		return nil, err
	}
	return v, nil
}

// VersionOn returns the version that was current on the given date.
func (s *Service) VersionOn(ctx context.Context, recordID uuid.UUID, on time.Time) (*Version, error) {
	v, err := s.repo.GetOn(ctx, recordID, on)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.NotFound(clinerr.CodeHistoryNotFound, "no history for record %s on %s", recordID, on.Format("2006-01-02"))
		}
		return nil, err
	}
	return v, nil
}

// Get returns one version by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Version, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, clinerr.NotFound(clinerr.CodeHistoryNotFound, "history version %s not found", id)
		}
		return nil, err
	}
	return v, nil
}

// ListByRecord returns the whole chain, oldest first.
func (s *Service) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Version, error) {
	return s.repo.ListByRecord(ctx, recordID)
}

// WithClock replaces the wall clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
