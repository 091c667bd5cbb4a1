package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Medication, error)
	// ListActiveByRecord returns the rows active as of the given day: status
	// Active, issue date on/before it, end date null or after it. Rows from a
	// dosage change whose effective date has not arrived are excluded.
	ListActiveByRecord(ctx context.Context, recordID uuid.UUID, today time.Time) ([]*Medication, error)
	// ListActiveOn returns the rows whose issue date is on/before the given
	// date and whose end date is null or on/after it.
	ListActiveOn(ctx context.Context, recordID uuid.UUID, on time.Time) ([]*Medication, error)
	// ReconcileExpired flips Active rows whose end date has passed to
	// Discontinued. A future-dated dosage change leaves the predecessor
	// Active with a future end date; there is no scheduler, so the status
	// catches up here on the next activeness read.
	ReconcileExpired(ctx context.Context, recordID uuid.UUID, today time.Time) error
	// Discontinue stamps end date, status and reason on one row.
	Discontinue(ctx context.Context, id uuid.UUID, endDate time.Time, status Status, reason *string) error

	AddPrescription(ctx context.Context, p *Prescription) error
	ListPrescriptions(ctx context.Context, medicationID uuid.UUID) ([]*Prescription, error)
}
