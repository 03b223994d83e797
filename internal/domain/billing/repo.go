package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository returns apperr.ErrInvoiceNotFound for unknown invoices.
type Repository interface {
	// NextInvoiceNumber returns the next value of the hospital's invoice
	// counter. Inside a transaction the counter row stays locked until
	// commit, so numbers are gap-free and never reused.
	NextInvoiceNumber(ctx context.Context, hospitalID uuid.UUID) (int64, error)
	// Create inserts the invoice and its items.
	Create(ctx context.Context, inv *Invoice) error
	// GetByID returns the invoice with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// GetForUpdate returns the invoice header and locks the row until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// UpdateSettlement writes amount_paid and status.
	UpdateSettlement(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Invoice, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error)

	AddPayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error)
	SumPayments(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, int, error)
}
