package history

import (
	"time"

	"github.com/google/uuid"
)

// Version is one row in the append-only psychiatric history chain. Version
// numbers are contiguous from 1 and exactly one row per clinical record is
// current at any moment; that row has no superseded timestamp.
type Version struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	RecordID      uuid.UUID  `db:"clinical_record_id" json:"clinical_record_id"`
	VersionNumber int        `db:"version_number" json:"version_number"`
	IsCurrent     bool       `db:"is_current" json:"is_current"`
	Presenting    string     `db:"presenting_complaints" json:"presenting_complaints"`
	PastHistory   string     `db:"past_history" json:"past_history"`
	FamilyHistory string     `db:"family_history" json:"family_history"`
	SocialHistory string     `db:"social_history" json:"social_history"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	SupersededAt  *time.Time `db:"superseded_at" json:"superseded_at,omitempty"`
}
