package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinrec/clinrec/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewStore returns the postgres-backed event store. The same value also
// satisfies EncounterEventPurger.
func NewStore(pool *pgxpool.Pool) Store {
	return &repoPG{pool: pool}
}

// NewPurger returns the purger view of the postgres store.
func NewPurger(pool *pgxpool.Pool) EncounterEventPurger {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const eventCols = `id, clinical_record_id, event_type, event_date, recorded_at,
	source_type, source_id, title, description`

func (r *repoPG) Append(ctx context.Context, e *Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	var srcType *string
	var srcID *uuid.UUID
	if !e.Source.IsZero() {
		s := string(e.Source.Kind)
		srcType = &s
		srcID = &e.Source.ID
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_event (
			id, clinical_record_id, event_type, event_date, recorded_at,
			source_type, source_id, title, description
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.RecordID, e.Type, DateOnly(e.EventDate), e.RecordedAt,
		srcType, srcID, e.Title, e.Description,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	return scanEvent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+eventCols+` FROM clinical_event WHERE id = $1`, id))
}

func (r *repoPG) ListByRecord(ctx context.Context, recordID uuid.UUID, f Filter) ([]*Event, error) {
	sql := `SELECT ` + eventCols + ` FROM clinical_event WHERE clinical_record_id = $1`
	args := []interface{}{recordID}

	if !f.VisibleThrough.IsZero() {
		args = append(args, DateOnly(f.VisibleThrough))
		sql += fmt.Sprintf(` AND event_date <= $%d`, len(args))
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		sql += fmt.Sprintf(` AND event_type = ANY($%d)`, len(args))
	}
	if f.From != nil {
		args = append(args, DateOnly(*f.From))
		sql += fmt.Sprintf(` AND event_date >= $%d`, len(args))
	}
	if f.To != nil {
		args = append(args, DateOnly(*f.To))
		sql += fmt.Sprintf(` AND event_date <= $%d`, len(args))
	}

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *repoPG) ExistsBySource(ctx context.Context, recordID uuid.UUID, src SourceRef, t EventType, on *time.Time) (bool, error) {
	sql := `SELECT 1 FROM clinical_event WHERE clinical_record_id = $1 AND event_type = $2`
	args := []interface{}{recordID, t}

	if src.IsZero() {
		sql += ` AND source_type IS NULL`
	} else {
		args = append(args, string(src.Kind), src.ID)
		sql += fmt.Sprintf(` AND source_type = $%d AND source_id = $%d`, len(args)-1, len(args))
	}
	if on != nil {
		args = append(args, DateOnly(*on))
		sql += fmt.Sprintf(` AND event_date = $%d`, len(args))
	}

	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (`+sql+`)`, args...).Scan(&exists)
	return exists, err
}

func (r *repoPG) CountByRecord(ctx context.Context, recordID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_event WHERE clinical_record_id = $1`, recordID).Scan(&n)
	return n, err
}

func (r *repoPG) PurgeFutureEncounterEvent(ctx context.Context, appointmentID uuid.UUID, today time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM clinical_event
		WHERE source_type = $1 AND source_id = $2 AND event_type = $3 AND event_date > $4`,
		string(SourceAppointment), appointmentID, TypeEncounter, DateOnly(today))
	return err
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var srcType *string
	var srcID *uuid.UUID
	if err := row.Scan(&e.ID, &e.RecordID, &e.Type, &e.EventDate, &e.RecordedAt,
		&srcType, &srcID, &e.Title, &e.Description); err != nil {
		return nil, err
	}
	if srcType != nil && srcID != nil {
		e.Source = SourceRef{Kind: SourceKind(*srcType), ID: *srcID}
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var e Event
		var srcType *string
		var srcID *uuid.UUID
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Type, &e.EventDate, &e.RecordedAt,
			&srcType, &srcID, &e.Title, &e.Description); err != nil {
			return nil, err
		}
		if srcType != nil && srcID != nil {
			e.Source = SourceRef{Kind: SourceKind(*srcType), ID: *srcID}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
