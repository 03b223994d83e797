package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ehr/inpatient/internal/platform/apperr"
	"github.com/ehr/inpatient/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const invoiceCols = `id, hospital_id, patient_id, admission_id, invoice_number, subtotal, tax_percent, tax_amount,
	discount_amount, total_amount, amount_paid, status, due_date, notes, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.HospitalID, &inv.PatientID, &inv.AdmissionID, &inv.InvoiceNumber,
		&inv.Subtotal, &inv.TaxPercent, &inv.TaxAmount, &inv.DiscountAmount, &inv.TotalAmount, &inv.AmountPaid,
		&inv.Status, &inv.DueDate, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.ErrInvoiceNotFound
	}
	return &inv, err
}

func (r *repoPG) NextInvoiceNumber(ctx context.Context, hospitalID uuid.UUID) (int64, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice_sequence (hospital_id, last_value) VALUES ($1, 1)
		ON CONFLICT (hospital_id) DO UPDATE SET last_value = invoice_sequence.last_value + 1
		RETURNING last_value`, hospitalID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next invoice number: %w", err)
	}
	return n, nil
}

func (r *repoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO invoice (id, hospital_id, patient_id, admission_id, invoice_number, subtotal, tax_percent, tax_amount,
			discount_amount, total_amount, amount_paid, status, due_date, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`,
		inv.ID, inv.HospitalID, inv.PatientID, inv.AdmissionID, inv.InvoiceNumber, inv.Subtotal, inv.TaxPercent,
		inv.TaxAmount, inv.DiscountAmount, inv.TotalAmount, inv.AmountPaid, inv.Status, inv.DueDate, inv.Notes, inv.CreatedBy,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "invoice_hospital_number_key") {
			return fmt.Errorf("invoice number %s already used: %w", inv.InvoiceNumber, err)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}

	for i := range inv.Items {
		it := &inv.Items[i]
		it.ID = uuid.New()
		it.InvoiceID = inv.ID
		if _, err := q.Exec(ctx, `
			INSERT INTO invoice_item (id, invoice_id, position, description, category, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, it.InvoiceID, it.Position, it.Description, it.Category, it.Quantity, it.UnitPrice, it.LineTotal,
		); err != nil {
			return fmt.Errorf("insert invoice item %d: %w", it.Position, err)
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoice WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, position, description, category, quantity, unit_price, line_total
		FROM invoice_item WHERE invoice_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Position, &it.Description, &it.Category,
			&it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, it)
	}
	return inv, rows.Err()
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoice WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) UpdateSettlement(ctx context.Context, inv *Invoice) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE invoice SET amount_paid = $2, status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		inv.ID, inv.AmountPaid, inv.Status,
	).Scan(&inv.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.ErrInvoiceNotFound
	}
	return err
}

func (r *repoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Invoice, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM invoice WHERE %s ORDER BY created_at DESC, invoice_number DESC LIMIT $%d OFFSET $%d`,
		invoiceCols, where, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

func (r *repoPG) List(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Invoice, int, error) {
	if status != "" {
		return r.list(ctx, "hospital_id = $1 AND status = $2", []interface{}{hospitalID, status}, limit, offset)
	}
	return r.list(ctx, "hospital_id = $1", []interface{}{hospitalID}, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	return r.list(ctx, "patient_id = $1", []interface{}{patientID}, limit, offset)
}

func (r *repoPG) AddPayment(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payment (id, invoice_id, amount, method, transaction_ref, notes, received_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING received_at`,
		p.ID, p.InvoiceID, p.Amount, p.Method, p.TransactionRef, p.Notes, p.ReceivedBy,
	).Scan(&p.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *repoPG) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, amount, method, transaction_ref, notes, received_by, received_at
		FROM payment WHERE invoice_id = $1 ORDER BY received_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.TransactionRef, &p.Notes,
			&p.ReceivedBy, &p.ReceivedAt); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

func (r *repoPG) SumPayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, int, error) {
	var (
		sum decimal.Decimal
		n   int
	)
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM payment WHERE invoice_id = $1`, invoiceID).Scan(&sum, &n)
	return sum, n, err
}
