package ward

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/inpatient/internal/platform/apperr"
	"github.com/ehr/inpatient/internal/platform/db"
)

// =========== Ward Repository ===========

type wardRepoPG struct{ pool *pgxpool.Pool }

func NewWardRepoPG(pool *pgxpool.Pool) WardRepository { return &wardRepoPG{pool: pool} }

func (r *wardRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const wardCols = `id, hospital_id, name, ward_type, floor, active, created_at, updated_at`

func scanWard(row pgx.Row) (*Ward, error) {
	var w Ward
	err := row.Scan(&w.ID, &w.HospitalID, &w.Name, &w.WardType, &w.Floor, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.ErrWardNotFound
	}
	return &w, err
}

func (r *wardRepoPG) Create(ctx context.Context, w *Ward) error {
	w.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ward (id, hospital_id, name, ward_type, floor, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		w.ID, w.HospitalID, w.Name, w.WardType, w.Floor, w.Active,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *wardRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Ward, error) {
	return scanWard(r.conn(ctx).QueryRow(ctx, `SELECT `+wardCols+` FROM ward WHERE id = $1`, id))
}

func (r *wardRepoPG) Update(ctx context.Context, w *Ward) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE ward SET name = $2, ward_type = $3, floor = $4, active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		w.ID, w.Name, w.WardType, w.Floor, w.Active,
	).Scan(&w.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.ErrWardNotFound
	}
	return err
}

func (r *wardRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM ward w WHERE w.id = $1
		AND NOT EXISTS (SELECT 1 FROM bed b WHERE b.ward_id = w.id)`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return apperr.ErrWardNotEmpty
	}
	return nil
}

func (r *wardRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Ward, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM ward WHERE hospital_id = $1`, hospitalID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+wardCols+` FROM ward WHERE hospital_id = $1 ORDER BY name LIMIT $2 OFFSET $3`, hospitalID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Ward
	for rows.Next() {
		w, err := scanWard(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, w)
	}
	return items, total, rows.Err()
}

// =========== Bed Repository ===========

type bedRepoPG struct{ pool *pgxpool.Pool }

func NewBedRepoPG(pool *pgxpool.Pool) BedRepository { return &bedRepoPG{pool: pool} }

func (r *bedRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const bedCols = `id, ward_id, hospital_id, bed_number, bed_type, daily_rate, status, created_at, updated_at`

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.WardID, &b.HospitalID, &b.BedNumber, &b.BedType, &b.DailyRate, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.ErrBedNotFound
	}
	return &b, err
}

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bed (id, ward_id, hospital_id, bed_number, bed_type, daily_rate, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		b.ID, b.WardID, b.HospitalID, b.BedNumber, b.BedType, b.DailyRate, b.Status,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if db.IsUniqueViolation(err, "bed_ward_number_key") {
		return apperr.ErrDuplicateBedNumber.WithDetail("bed %s", b.BedNumber)
	}
	return err
}

func (r *bedRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM bed WHERE id = $1`, id))
}

func (r *bedRepoPG) Update(ctx context.Context, b *Bed) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE bed SET bed_type = $2, daily_rate = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING status, updated_at`,
		b.ID, b.BedType, b.DailyRate,
	).Scan(&b.Status, &b.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.ErrBedNotFound
	}
	return err
}

func (r *bedRepoPG) List(ctx context.Context, f BedFilter, limit, offset int) ([]*Bed, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.HospitalID != nil {
		args = append(args, *f.HospitalID)
		where = append(where, fmt.Sprintf("hospital_id = $%d", len(args)))
	}
	if f.WardID != nil {
		args = append(args, *f.WardID)
		where = append(where, fmt.Sprintf("ward_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bed`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM bed%s ORDER BY ward_id, bed_number LIMIT $%d OFFSET $%d`,
		bedCols, clause, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *bedRepoPG) CountByWard(ctx context.Context, wardID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bed WHERE ward_id = $1`, wardID).Scan(&n)
	return n, err
}

func (r *bedRepoPG) UpdateStatusIf(ctx context.Context, id uuid.UUID, to string, from ...string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bed SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`, id, to, from)
	if err != nil {
		return false, fmt.Errorf("update bed status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *bedRepoPG) CountByStatus(ctx context.Context, hospitalID uuid.UUID) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM bed WHERE hospital_id = $1 GROUP BY status`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
