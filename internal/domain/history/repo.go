package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, v *Version) error
	GetByID(ctx context.Context, id uuid.UUID) (*Version, error)
	// GetCurrent returns the single current version for a record.
	GetCurrent(ctx context.Context, recordID uuid.UUID) (*Version, error)
	// GetOn returns the version that was current on the given date: created
	// on/before it and superseded after it, if at all.
	GetOn(ctx context.Context, recordID uuid.UUID, on time.Time) (*Version, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Version, error)
	// Supersede clears is_current and stamps superseded_at on one row.
	Supersede(ctx context.Context, id uuid.UUID, at time.Time) error
}
