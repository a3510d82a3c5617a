package patientrecord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caremesh/caremesh/internal/platform/db"
)

var ErrNotFound = errors.New("patient record not found")

const recordColumns = `id, organization_id, mrn, patient_name, birth_date, summary, data,
	created_by, created_at, updated_at`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Runner(ctx, r.pool)
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshal record data: %w", err)
	}

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_records (
			id, organization_id, mrn, patient_name, birth_date, summary, data, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.OrganizationID, rec.MRN, rec.PatientName, rec.BirthDate,
		rec.Summary, data, rec.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("create patient record: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM patient_records WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshal record data: %w", err)
	}

	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_records SET
			mrn = $2, patient_name = $3, birth_date = $4, summary = $5, data = $6,
			updated_at = NOW()
		WHERE id = $1`,
		rec.ID, rec.MRN, rec.PatientName, rec.BirthDate, rec.Summary, data,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_records WHERE organization_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordColumns+` FROM patient_records WHERE organization_id = $1
		 ORDER BY patient_name LIMIT $2 OFFSET $3`,
		orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (r *repoPG) scan(row pgx.Row) (*Record, error) {
	var rec Record
	var data []byte
	err := row.Scan(&rec.ID, &rec.OrganizationID, &rec.MRN, &rec.PatientName,
		&rec.BirthDate, &rec.Summary, &data, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("unmarshal record data: %w", err)
		}
	}
	return &rec, nil
}
