package timeline

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a clinical event. The enumeration is closed: the
// store rejects anything else.
type EventType string

const (
	TypeFoundational       EventType = "Foundational"
	TypeNote               EventType = "Note"
	TypeMedicationStart    EventType = "MedicationStart"
	TypeMedicationChange   EventType = "MedicationChange"
	TypeMedicationStop     EventType = "MedicationStop"
	TypePrescriptionIssued EventType = "MedicationPrescriptionIssued"
	TypeHistoryUpdate      EventType = "HistoryUpdate"
	TypeEncounter          EventType = "Encounter"
	TypeHospitalization    EventType = "Hospitalization"
	TypeLifeEvent          EventType = "LifeEvent"
	TypeOther              EventType = "Other"
)

// typePriority is the fixed same-date tie-break table. Lower sorts earlier.
var typePriority = map[EventType]int{
	TypeFoundational:       0,
	TypeNote:               1,
	TypeMedicationStart:    2,
	TypeMedicationChange:   2,
	TypeMedicationStop:     2,
	TypePrescriptionIssued: 2,
	TypeHistoryUpdate:      3,
	TypeEncounter:          4,
	TypeHospitalization:    5,
	TypeLifeEvent:          5,
	TypeOther:              5,
}

// Valid reports whether t is a member of the closed enumeration.
func (t EventType) Valid() bool {
	_, ok := typePriority[t]
	return ok
}

// Priority returns the ordering priority for same-date, same-instant ties.
func (t EventType) Priority() int {
	return typePriority[t]
}

// futureDatedTypes may carry an eventDate after today at creation time.
// Their events stay hidden from reads until the date arrives.
var futureDatedTypes = map[EventType]bool{
	TypeMedicationChange:   true,
	TypePrescriptionIssued: true,
	TypeEncounter:          true,
}

// AllowsFutureDate reports whether events of this type may be created with
// an eventDate after today.
func (t EventType) AllowsFutureDate() bool {
	return futureDatedTypes[t]
}

// ManualTypes are the event types writable directly, with no backing entity.
var ManualTypes = []EventType{TypeHospitalization, TypeLifeEvent, TypeOther}

// SourceKind tags the entity family an event originated from.
type SourceKind string

const (
	SourceNone        SourceKind = ""
	SourceNote        SourceKind = "note"
	SourceMedication  SourceKind = "medication"
	SourceAppointment SourceKind = "appointment"
	SourceHistory     SourceKind = "history"
)

// SourceRef is a tagged reference to the originating entity. The zero value
// means the event has no backing entity (Foundational and manual events).
// Exactly one entity reference is possible structurally: a kind and one id.
type SourceRef struct {
	Kind SourceKind
	ID   uuid.UUID
}

// NoteRef references a clinical note.
func NoteRef(id uuid.UUID) SourceRef { return SourceRef{Kind: SourceNote, ID: id} }

// MedicationRef references a medication row.
func MedicationRef(id uuid.UUID) SourceRef { return SourceRef{Kind: SourceMedication, ID: id} }

// AppointmentRef references an appointment.
func AppointmentRef(id uuid.UUID) SourceRef { return SourceRef{Kind: SourceAppointment, ID: id} }

// HistoryRef references a psychiatric history version.
func HistoryRef(id uuid.UUID) SourceRef { return SourceRef{Kind: SourceHistory, ID: id} }

// IsZero reports whether the reference is empty.
func (s SourceRef) IsZero() bool { return s.Kind == SourceNone }

// Event maps to the clinical_event table. Rows are immutable once written.
type Event struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RecordID    uuid.UUID `db:"clinical_record_id" json:"clinical_record_id"`
	Type        EventType `db:"event_type" json:"event_type"`
	EventDate   time.Time `db:"event_date" json:"event_date"`
	RecordedAt  time.Time `db:"recorded_at" json:"recorded_at"`
	Source      SourceRef `db:"-" json:"source"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
}

// DateOnly truncates t to date granularity in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
