package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Appointment is a scheduling record. Every appointment produces exactly one
// Encounter event dated to its scheduled date; future-dated events sit in
// the store hidden from reads until the date arrives.
type Appointment struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RecordID      uuid.UUID `db:"clinical_record_id" json:"clinical_record_id"`
	ScheduledDate time.Time `db:"scheduled_date" json:"scheduled_date"`
	Reason        string    `db:"reason" json:"reason"`
	Status        Status    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
