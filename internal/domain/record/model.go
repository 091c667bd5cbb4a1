package record

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. Demographics are deliberately minimal:
// the clinical substance lives on the timeline, not here.
type Patient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	DateOfBirth time.Time `db:"date_of_birth" json:"date_of_birth"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// ClinicalRecord maps to the clinical_record table. Exactly one per
// patient, created with the patient, parent of every timeline event. It
// outlives all of them.
type ClinicalRecord struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
