package medication

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

const medicationCols = `id, clinical_record_id, drug, dosage, unit, frequency, prescription_issue_date, end_date, status, discontinuation_reason, predecessor_id, created_at`

func (r *repoPG) Create(ctx context.Context, m *Medication) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication (id, clinical_record_id, drug, dosage, unit, frequency, prescription_issue_date, end_date, status, discontinuation_reason, predecessor_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		m.ID, m.RecordID, m.Drug, m.Dosage, m.Unit, m.Frequency,
		m.PrescriptionIssueDate, m.EndDate, m.Status, m.DiscontinuationReason, m.PredecessorID,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return scanMedication(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medicationCols+` FROM medication WHERE id = $1`, id))
}

func (r *repoPG) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medicationCols+` FROM medication WHERE clinical_record_id = $1 ORDER BY prescription_issue_date DESC, created_at DESC`,
		recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedications(rows)
}

func (r *repoPG) ListActiveByRecord(ctx context.Context, recordID uuid.UUID, today time.Time) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicationCols+` FROM medication
		WHERE clinical_record_id = $1
		  AND status = 'Active'
		  AND prescription_issue_date <= $2
		  AND (end_date IS NULL OR end_date > $2)
		ORDER BY prescription_issue_date DESC`,
		recordID, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedications(rows)
}

func (r *repoPG) ReconcileExpired(ctx context.Context, recordID uuid.UUID, today time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE medication SET status = 'Discontinued', updated_at = NOW()
		WHERE clinical_record_id = $1 AND status = 'Active'
		  AND end_date IS NOT NULL AND end_date <= $2`,
		recordID, today)
	return err
}

func (r *repoPG) ListActiveOn(ctx context.Context, recordID uuid.UUID, on time.Time) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicationCols+` FROM medication
		WHERE clinical_record_id = $1
		  AND prescription_issue_date <= $2
		  AND (end_date IS NULL OR end_date >= $2)
		ORDER BY prescription_issue_date DESC`,
		recordID, on)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedications(rows)
}

func (r *repoPG) Discontinue(ctx context.Context, id uuid.UUID, endDate time.Time, status Status, reason *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medication SET end_date = $2, status = $3, discontinuation_reason = $4
		WHERE id = $1 AND status = 'Active'`,
		id, endDate, status, reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) AddPrescription(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_prescription (id, medication_id, issue_date) VALUES ($1,$2,$3)`,
		p.ID, p.MedicationID, p.IssueDate,
	)
	return err
}

func (r *repoPG) ListPrescriptions(ctx context.Context, medicationID uuid.UUID) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, medication_id, issue_date, created_at FROM medication_prescription WHERE medication_id = $1 ORDER BY issue_date`,
		medicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prescriptions []*Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.MedicationID, &p.IssueDate, &p.CreatedAt); err != nil {
			return nil, err
		}
		prescriptions = append(prescriptions, &p)
	}
	return prescriptions, rows.Err()
}

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	if err := row.Scan(&m.ID, &m.RecordID, &m.Drug, &m.Dosage, &m.Unit, &m.Frequency,
		&m.PrescriptionIssueDate, &m.EndDate, &m.Status, &m.DiscontinuationReason,
		&m.PredecessorID, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMedications(rows pgx.Rows) ([]*Medication, error) {
	var medications []*Medication
	for rows.Next() {
		var m Medication
		if err := rows.Scan(&m.ID, &m.RecordID, &m.Drug, &m.Dosage, &m.Unit, &m.Frequency,
			&m.PrescriptionIssueDate, &m.EndDate, &m.Status, &m.DiscontinuationReason,
			&m.PredecessorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		medications = append(medications, &m)
	}
	return medications, rows.Err()
}
