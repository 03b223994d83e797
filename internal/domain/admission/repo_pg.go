package admission

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const admissionCols = `id, hospital_id, patient_id, bed_id, doctor_id, admitted_at, expected_discharge,
	actual_discharge, diagnosis, reason, discharge_notes, discharged_by, status, created_at, updated_at`

func scanAdmission(row pgx.Row) (*Admission, error) {
	var a Admission
	err := row.Scan(&a.ID, &a.HospitalID, &a.PatientID, &a.BedID, &a.DoctorID, &a.AdmittedAt, &a.ExpectedDischarge,
		&a.ActualDischarge, &a.Diagnosis, &a.Reason, &a.DischargeNotes, &a.DischargedBy, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.ErrAdmissionNotFound
	}
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Admission) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO admission (id, hospital_id, patient_id, bed_id, doctor_id, admitted_at, expected_discharge, diagnosis, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		a.ID, a.HospitalID, a.PatientID, a.BedID, a.DoctorID, a.AdmittedAt, a.ExpectedDischarge, a.Diagnosis, a.Reason, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err, "admission_active_bed_key"):
		return apperr.ErrBedUnavailable
	case db.IsUniqueViolation(err, "admission_active_patient_key"):
		return apperr.ErrPatientAlreadyAdmitted
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return scanAdmission(r.conn(ctx).QueryRow(ctx, `SELECT `+admissionCols+` FROM admission WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return scanAdmission(r.conn(ctx).QueryRow(ctx, `SELECT `+admissionCols+` FROM admission WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error) {
	a, err := scanAdmission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+admissionCols+` FROM admission WHERE patient_id = $1 AND status = 'admitted'`, patientID))
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeAdmissionNotFound {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *repoPG) UpdateBed(ctx context.Context, id, bedID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE admission SET bed_id = $2, updated_at = NOW() WHERE id = $1`, id, bedID)
	if err != nil {
		if db.IsUniqueViolation(err, "admission_active_bed_key") {
			return apperr.ErrBedUnavailable
		}
		return fmt.Errorf("update admission bed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrAdmissionNotFound
	}
	return nil
}

func (r *repoPG) MarkDischarged(ctx context.Context, a *Admission) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admission SET status = $2, actual_discharge = $3, discharge_notes = $4, discharged_by = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'admitted'`,
		a.ID, StatusDischarged, a.ActualDischarge, a.DischargeNotes, a.DischargedBy)
	if err != nil {
		return fmt.Errorf("discharge admission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrInvalidStatusTransition.WithDetail("admission %s is not admitted", a.ID)
	}
	a.Status = StatusDischarged
	return nil
}

func (r *repoPG) List(ctx context.Context, hospitalID uuid.UUID, f ListFilter, limit, offset int) ([]*Admission, int, error) {
	where := []string{"hospital_id = $1"}
	args := []interface{}{hospitalID}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("admitted_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where = append(where, fmt.Sprintf("admitted_at < $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM admission`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM admission%s ORDER BY admitted_at DESC LIMIT $%d OFFSET $%d`,
		admissionCols, clause, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) AddMovement(ctx context.Context, m *BedMovement) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bed_movement (id, admission_id, from_bed_id, to_bed_id, daily_rate, moved_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.AdmissionID, m.FromBedID, m.ToBedID, m.DailyRate, m.MovedAt)
	if err != nil {
		return fmt.Errorf("insert bed movement: %w", err)
	}
	return nil
}

func (r *repoPG) ListMovements(ctx context.Context, admissionID uuid.UUID) ([]*BedMovement, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, admission_id, from_bed_id, to_bed_id, daily_rate, moved_at
		FROM bed_movement WHERE admission_id = $1 ORDER BY moved_at, id`, admissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BedMovement
	for rows.Next() {
		var m BedMovement
		if err := rows.Scan(&m.ID, &m.AdmissionID, &m.FromBedID, &m.ToBedID, &m.DailyRate, &m.MovedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}
