package note

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *ClinicalNote) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicalNote, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*ClinicalNote, error)
	// UpdateDraft overwrites the content fields of a Draft row.
	UpdateDraft(ctx context.Context, n *ClinicalNote) error
	// Finalize stamps status and finalized_at. Content is untouched.
	Finalize(ctx context.Context, id uuid.UUID) error
	DeleteDraft(ctx context.Context, id uuid.UUID) error

	AddAddendum(ctx context.Context, a *Addendum) error
	ListAddenda(ctx context.Context, noteID uuid.UUID) ([]*Addendum, error)
}
