package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/inpatient/internal/platform/apperr"
)

const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusPartial   = "partial"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusDraft:     true,
	StatusPending:   true,
	StatusPartial:   true,
	StatusPaid:      true,
	StatusCancelled: true,
}

var validMethods = map[string]bool{
	"cash":          true,
	"card":          true,
	"upi":           true,
	"bank_transfer": true,
	"cheque":        true,
	"insurance":     true,
	"other":         true,
}

var hundred = decimal.NewFromInt(100)

// Invoice maps to the invoice table. Items are loaded by GetByID only.
type Invoice struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	HospitalID     uuid.UUID       `db:"hospital_id" json:"hospital_id"`
	PatientID      uuid.UUID       `db:"patient_id" json:"patient_id"`
	AdmissionID    *uuid.UUID      `db:"admission_id" json:"admission_id,omitempty"`
	InvoiceNumber  string          `db:"invoice_number" json:"invoice_number"`
	Items          []InvoiceItem   `db:"-" json:"items,omitempty"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxPercent     decimal.Decimal `db:"tax_percent" json:"tax_percent"`
	TaxAmount      decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	AmountPaid     decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	Status         string          `db:"status" json:"status"`
	DueDate        *time.Time      `db:"due_date" json:"due_date,omitempty"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy      *uuid.UUID      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Balance is what the patient still owes. A negative balance is credit
// from an overpayment.
func (inv *Invoice) Balance() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.AmountPaid)
}

// Payable reports whether payments may be recorded against the invoice.
// A payment on a draft moves it to the status its balance implies.
func (inv *Invoice) Payable() bool {
	return inv.Status != StatusCancelled && inv.Status != StatusPaid
}

// InvoiceItem maps to the invoice_item table. Position orders the items.
type InvoiceItem struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	InvoiceID   uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	Position    int             `db:"position" json:"position"`
	Description string          `db:"description" json:"description"`
	Category    *string         `db:"category" json:"category,omitempty"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal   decimal.Decimal `db:"line_total" json:"line_total"`
}

// Payment maps to the payment table. Payments are append-only.
type Payment struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	InvoiceID      uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Method         string          `db:"method" json:"method"`
	TransactionRef *string         `db:"transaction_ref" json:"transaction_ref,omitempty"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	ReceivedBy     *uuid.UUID      `db:"received_by" json:"received_by,omitempty"`
	ReceivedAt     time.Time       `db:"received_at" json:"received_at"`
}

// DeriveStatus maps paid against total. It is only applied to invoices that
// are neither draft nor cancelled.
func DeriveStatus(total, paid decimal.Decimal) string {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

// ItemInput is one requested invoice line.
type ItemInput struct {
	Description string
	Category    *string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Totals is the arithmetic result for a set of items.
type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// cents reports whether d has at most two decimal places.
func cents(d decimal.Decimal) bool {
	return d.Round(2).Equal(d)
}

// ComputeTotals validates the items and returns subtotal, tax and total.
// Tax is rounded half away from zero to cents. A discount larger than
// subtotal plus tax is rejected.
func ComputeTotals(items []ItemInput, taxPercent, discount decimal.Decimal) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, apperr.Validation("at least one item is required")
	}
	if taxPercent.IsNegative() || taxPercent.GreaterThan(hundred) {
		return Totals{}, apperr.Validation("tax_percent must be between 0 and 100")
	}
	if !taxPercent.Round(2).Equal(taxPercent) {
		return Totals{}, apperr.Validation("tax_percent allows at most two decimals")
	}
	if discount.IsNegative() {
		return Totals{}, apperr.Validation("discount must not be negative")
	}
	if !cents(discount) {
		return Totals{}, apperr.Validation("discount allows at most two decimals")
	}

	subtotal := decimal.Zero
	for i, it := range items {
		if it.Description == "" {
			return Totals{}, apperr.Validation("items[%d].description is required", i)
		}
		if it.Quantity <= 0 {
			return Totals{}, apperr.Validation("items[%d].quantity must be greater than 0", i)
		}
		if it.UnitPrice.IsNegative() {
			return Totals{}, apperr.Validation("items[%d].unit_price must not be negative", i)
		}
		if !cents(it.UnitPrice) {
			return Totals{}, apperr.Validation("items[%d].unit_price allows at most two decimals", i)
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	tax := subtotal.Mul(taxPercent).Div(hundred).Round(2)
	gross := subtotal.Add(tax)
	if discount.GreaterThan(gross) {
		return Totals{}, apperr.Validation("discount %s exceeds subtotal plus tax %s", discount, gross)
	}
	return Totals{Subtotal: subtotal, TaxAmount: tax, Total: gross.Sub(discount)}, nil
}

// CreateInvoiceRequest is the input to CreateInvoice.
type CreateInvoiceRequest struct {
	HospitalID  uuid.UUID
	PatientID   uuid.UUID
	AdmissionID *uuid.UUID
	Items       []ItemInput
	TaxPercent  decimal.Decimal
	Discount    decimal.Decimal
	DueDate     *time.Time
	Notes       *string
	CreatedBy   *uuid.UUID
	// Draft keeps the invoice editable and unpayable until IssueInvoice.
	Draft bool
}

// PaymentRequest is the input to RecordPayment.
type PaymentRequest struct {
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	Method         string
	TransactionRef *string
	Notes          *string
	ReceivedBy     *uuid.UUID
}

// Reconciliation compares the payment rows of an invoice with its
// AmountPaid column.
type Reconciliation struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Status        string          `json:"status"`
	PaymentCount  int             `json:"payment_count"`
	PaymentsTotal decimal.Decimal `json:"payments_total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Balance       decimal.Decimal `json:"balance"`
	Consistent    bool            `json:"consistent"`
}
