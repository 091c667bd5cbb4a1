package note

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinrec/clinrec/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
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

const noteCols = `id, clinical_record_id, status, encounter_date, subjective, objective, assessment, plan, finalized_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, n *ClinicalNote) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_note (id, clinical_record_id, status, encounter_date, subjective, objective, assessment, plan)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, n.RecordID, n.Status, n.EncounterDate, n.Subjective, n.Objective, n.Assessment, n.Plan,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicalNote, error) {
	return scanNote(r.conn(ctx).QueryRow(ctx,
		`SELECT `+noteCols+` FROM clinical_note WHERE id = $1`, id))
}

func (r *repoPG) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*ClinicalNote, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+noteCols+` FROM clinical_note WHERE clinical_record_id = $1 ORDER BY encounter_date DESC, created_at DESC`,
		recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotes(rows)
}

func (r *repoPG) UpdateDraft(ctx context.Context, n *ClinicalNote) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_note
		SET encounter_date = $2, subjective = $3, objective = $4, assessment = $5, plan = $6, updated_at = NOW()
		WHERE id = $1 AND status = 'Draft'`,
		n.ID, n.EncounterDate, n.Subjective, n.Objective, n.Assessment, n.Plan,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Finalize(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_note
		SET status = 'Finalized', finalized_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'Draft'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM clinical_note WHERE id = $1 AND status = 'Draft'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) AddAddendum(ctx context.Context, a *Addendum) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO note_addendum (id, note_id, content) VALUES ($1,$2,$3)`,
		a.ID, a.NoteID, a.Content,
	)
	return err
}

func (r *repoPG) ListAddenda(ctx context.Context, noteID uuid.UUID) ([]*Addendum, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, note_id, content, created_at FROM note_addendum WHERE note_id = $1 ORDER BY created_at`,
		noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addenda []*Addendum
	for rows.Next() {
		var a Addendum
		if err := rows.Scan(&a.ID, &a.NoteID, &a.Content, &a.CreatedAt); err != nil {
			return nil, err
		}
		addenda = append(addenda, &a)
	}
	return addenda, rows.Err()
}

func scanNote(row pgx.Row) (*ClinicalNote, error) {
	var n ClinicalNote
	if err := row.Scan(&n.ID, &n.RecordID, &n.Status, &n.EncounterDate, &n.Subjective, &n.Objective,
		&n.Assessment, &n.Plan, &n.FinalizedAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func collectNotes(rows pgx.Rows) ([]*ClinicalNote, error) {
	var notes []*ClinicalNote
	for rows.Next() {
		var n ClinicalNote
		if err := rows.Scan(&n.ID, &n.RecordID, &n.Status, &n.EncounterDate, &n.Subjective, &n.Objective,
			&n.Assessment, &n.Plan, &n.FinalizedAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}
