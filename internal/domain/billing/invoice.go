package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/inpatient/internal/platform/apperr"
)

// CreateInvoice prices the items, takes the next invoice number for the
// hospital and stores the invoice with AmountPaid zero.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	if req.HospitalID == uuid.Nil {
		return nil, apperr.Validation("hospital_id is required")
	}
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	totals, err := ComputeTotals(req.Items, req.TaxPercent, req.Discount)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		HospitalID:     req.HospitalID,
		PatientID:      req.PatientID,
		AdmissionID:    req.AdmissionID,
		Subtotal:       totals.Subtotal,
		TaxPercent:     req.TaxPercent,
		TaxAmount:      totals.TaxAmount,
		DiscountAmount: req.Discount,
		TotalAmount:    totals.Total,
		AmountPaid:     decimal.Zero,
		DueDate:        req.DueDate,
		Notes:          req.Notes,
		CreatedBy:      req.CreatedBy,
	}
	for i, it := range req.Items {
		inv.Items = append(inv.Items, InvoiceItem{
			Position:    i + 1,
			Description: it.Description,
			Category:    it.Category,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}
	if req.Draft {
		inv.Status = StatusDraft
	} else {
		inv.Status = DeriveStatus(inv.TotalAmount, inv.AmountPaid)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.NextInvoiceNumber(ctx, inv.HospitalID)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = fmt.Sprintf("%s%06d", s.prefix, n)
		return s.repo.Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InvoiceEvent("created")
	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Str("total", inv.TotalAmount.StringFixed(2)).
		Str("status", inv.Status).
		Msg("invoice created")
	return inv, nil
}

// IssueInvoice finalizes a draft. Its items are frozen from here on and the
// status follows the payment thresholds.
func (s *Service) IssueInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	var inv *Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return apperr.ErrInvoiceNotEditable.WithDetail("invoice %s is %s", inv.InvoiceNumber, inv.Status)
		}
		inv.Status = DeriveStatus(inv.TotalAmount, inv.AmountPaid)
		return s.repo.UpdateSettlement(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.InvoiceEvent("issued")
	s.logger.Info().Str("invoice_id", id.String()).Str("status", inv.Status).Msg("invoice issued")
	return inv, nil
}

// CancelInvoice cancels a draft or pending invoice that has no payments.
// Cancelled is terminal.
func (s *Service) CancelInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	var inv *Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft && inv.Status != StatusPending {
			return apperr.ErrInvoiceNotEditable.WithDetail("invoice %s is %s", inv.InvoiceNumber, inv.Status)
		}
		if !inv.AmountPaid.IsZero() {
			return apperr.ErrInvoiceNotEditable.WithDetail("invoice %s has payments", inv.InvoiceNumber)
		}
		inv.Status = StatusCancelled
		return s.repo.UpdateSettlement(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.InvoiceEvent("cancelled")
	s.logger.Info().Str("invoice_id", id.String()).Msg("invoice cancelled")
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Invoice, int, error) {
	if status != "" && !validStatuses[status] {
		return nil, 0, apperr.Validation("invalid invoice status: %s", status)
	}
	return s.repo.List(ctx, hospitalID, status, limit, offset)
}

func (s *Service) ListPatientInvoices(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
