package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Appointment, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, scheduledDate time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}
