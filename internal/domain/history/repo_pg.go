package history

import (
	"context"
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

const versionCols = `id, clinical_record_id, version_number, is_current, presenting_complaints, past_history, family_history, social_history, created_at, superseded_at`

func (r *repoPG) Create(ctx context.Context, v *Version) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO psychiatric_history (id, clinical_record_id, version_number, is_current, presenting_complaints, past_history, family_history, social_history)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		v.ID, v.RecordID, v.VersionNumber, v.IsCurrent,
		v.Presenting, v.PastHistory, v.FamilyHistory, v.SocialHistory,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Version, error) {
	return scanVersion(r.conn(ctx).QueryRow(ctx,
		`SELECT `+versionCols+` FROM psychiatric_history WHERE id = $1`, id))
}

func (r *repoPG) GetCurrent(ctx context.Context, recordID uuid.UUID) (*Version, error) {
	return scanVersion(r.conn(ctx).QueryRow(ctx,
		`SELECT `+versionCols+` FROM psychiatric_history WHERE clinical_record_id = $1 AND is_current`, recordID))
}

func (r *repoPG) GetOn(ctx context.Context, recordID uuid.UUID, on time.Time) (*Version, error) {
	return scanVersion(r.conn(ctx).QueryRow(ctx, `
		SELECT `+versionCols+` FROM psychiatric_history
		WHERE clinical_record_id = $1
		  AND created_at <= $2
		  AND (superseded_at IS NULL OR superseded_at > $2)`,
		recordID, on))
}

func (r *repoPG) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Version, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+versionCols+` FROM psychiatric_history WHERE clinical_record_id = $1 ORDER BY version_number`,
		recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.RecordID, &v.VersionNumber, &v.IsCurrent, &v.Presenting,
			&v.PastHistory, &v.FamilyHistory, &v.SocialHistory, &v.CreatedAt, &v.SupersededAt); err != nil {
			return nil, err
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

func (r *repoPG) Supersede(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE psychiatric_history SET is_current = FALSE, superseded_at = $2
		WHERE id = $1 AND is_current`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanVersion(row pgx.Row) (*Version, error) {
	var v Version
	if err := row.Scan(&v.ID, &v.RecordID, &v.VersionNumber, &v.IsCurrent, &v.Presenting,
		&v.PastHistory, &v.FamilyHistory, &v.SocialHistory, &v.CreatedAt, &v.SupersededAt); err != nil {
		return nil, err
	}
	return &v, nil
}
