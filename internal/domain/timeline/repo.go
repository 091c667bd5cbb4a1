package timeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows a ListByRecord read. The zero value returns everything
// visible through VisibleThrough.
type Filter struct {
	Types []EventType
	From  *time.Time
	To    *time.Time

	// VisibleThrough is the visibility cutoff: events dated strictly after
	// it are excluded. Callers set it to today.
	VisibleThrough time.Time
}

// Store is the append-only persistence contract for clinical events. There
// is deliberately no update or delete operation: rows written through this
// interface are immutable.
type Store interface {
	Append(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID, f Filter) ([]*Event, error)
	// ExistsBySource is the idempotency pre-check: it reports whether an
	// event of type t already references src within the record. A non-nil
	// `on` narrows the check to that event date, for source entities that
	// legitimately emit the same type more than once.
	ExistsBySource(ctx context.Context, recordID uuid.UUID, src SourceRef, t EventType, on *time.Time) (bool, error)
	CountByRecord(ctx context.Context, recordID uuid.UUID) (int, error)
}

// EncounterEventPurger removes future-dated Encounter events when their
// appointment is rescheduled or cancelled. Kept separate from Store so no
// general event deletion leaks into the append-only contract; only the
// appointment service consumes it.
type EncounterEventPurger interface {
	PurgeFutureEncounterEvent(ctx context.Context, appointmentID uuid.UUID, today time.Time) error
}
