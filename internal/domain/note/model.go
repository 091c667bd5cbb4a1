package note

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft     Status = "Draft"
	StatusFinalized Status = "Finalized"
)

// ClinicalNote is SOAP-structured documentation. Drafts are freely editable
// and deletable; finalization is one-way and freezes every content field.
type ClinicalNote struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	RecordID      uuid.UUID  `db:"clinical_record_id" json:"clinical_record_id"`
	Status        Status     `db:"status" json:"status"`
	EncounterDate time.Time  `db:"encounter_date" json:"encounter_date"`
	Subjective    string     `db:"subjective" json:"subjective"`
	Objective     string     `db:"objective" json:"objective"`
	Assessment    string     `db:"assessment" json:"assessment"`
	Plan          string     `db:"plan" json:"plan"`
	FinalizedAt   *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

func (n *ClinicalNote) Finalized() bool {
	return n.Status == StatusFinalized
}

// Title is the line shown on the timeline event for this note.
func (n *ClinicalNote) Title() string {
	return "Clinical note " + n.EncounterDate.Format("2006-01-02")
}

// Addendum is an immutable correction appended to a finalized note. It never
// alters the original content.
type Addendum struct {
	ID        uuid.UUID `db:"id" json:"id"`
	NoteID    uuid.UUID `db:"note_id" json:"note_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
