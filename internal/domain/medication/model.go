package medication

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive       Status = "Active"
	StatusDiscontinued Status = "Discontinued"
)

// Medication is one row in a versioned line of treatment. A dosage change
// discontinues the old row and creates a successor linked by PredecessorID;
// the predecessor graph is a forest of chains, never a general graph.
type Medication struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	RecordID              uuid.UUID  `db:"clinical_record_id" json:"clinical_record_id"`
	Drug                  string     `db:"drug" json:"drug"`
	Dosage                float64    `db:"dosage" json:"dosage"`
	Unit                  string     `db:"unit" json:"unit"`
	Frequency             string     `db:"frequency" json:"frequency"`
	PrescriptionIssueDate time.Time  `db:"prescription_issue_date" json:"prescription_issue_date"`
	EndDate               *time.Time `db:"end_date" json:"end_date,omitempty"`
	Status                Status     `db:"status" json:"status"`
	DiscontinuationReason *string    `db:"discontinuation_reason" json:"discontinuation_reason,omitempty"`
	PredecessorID         *uuid.UUID `db:"predecessor_id" json:"predecessor_id,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
}

func (m *Medication) Active() bool {
	return m.Status == StatusActive
}

// Prescription is one logged repeat issuance on an Active medication. It
// carries no parameter change.
type Prescription struct {
	ID           uuid.UUID `db:"id" json:"id"`
	MedicationID uuid.UUID `db:"medication_id" json:"medication_id"`
	IssueDate    time.Time `db:"issue_date" json:"issue_date"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
