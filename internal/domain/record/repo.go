package record

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error)

	CreateRecord(ctx context.Context, r *ClinicalRecord) error
	GetRecordByPatient(ctx context.Context, patientID uuid.UUID) (*ClinicalRecord, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error)
}
