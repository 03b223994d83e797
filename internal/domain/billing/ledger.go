package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/inpatient/internal/platform/apperr"
)

// RecordPayment appends a payment and settles the invoice in one unit of
// work under the invoice row lock, so concurrent payments on one invoice
// apply one after another. Overpayment is accepted and leaves a credit.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (*Payment, *Invoice, error) {
	if !req.Amount.IsPositive() {
		return nil, nil, apperr.ErrInvalidAmount
	}
	if !cents(req.Amount) {
		return nil, nil, apperr.ErrInvalidAmount.WithDetail("amount allows at most two decimals")
	}
	if !validMethods[req.Method] {
		return nil, nil, apperr.Validation("invalid payment method: %s", req.Method)
	}

	var (
		p   *Payment
		inv *Invoice
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetForUpdate(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		if !inv.Payable() {
			return apperr.ErrInvoiceNotPayable.WithDetail("invoice %s is %s", inv.InvoiceNumber, inv.Status)
		}

		p = &Payment{
			InvoiceID:      inv.ID,
			Amount:         req.Amount,
			Method:         req.Method,
			TransactionRef: req.TransactionRef,
			Notes:          req.Notes,
			ReceivedBy:     req.ReceivedBy,
		}
		if err := s.repo.AddPayment(ctx, p); err != nil {
			return err
		}
		inv.AmountPaid = inv.AmountPaid.Add(req.Amount)
		inv.Status = DeriveStatus(inv.TotalAmount, inv.AmountPaid)
		return s.repo.UpdateSettlement(ctx, inv)
	})
	if err != nil {
		return nil, nil, err
	}

	s.metrics.PaymentRecorded(p.Method, p.Amount)
	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("payment_id", p.ID.String()).
		Str("amount", p.Amount.StringFixed(2)).
		Str("status", inv.Status).
		Msg("payment recorded")
	if inv.Balance().IsNegative() {
		s.logger.Warn().Str("invoice_id", inv.ID.String()).Str("credit", inv.Balance().Neg().StringFixed(2)).Msg("invoice overpaid")
	}
	return p, inv, nil
}

func (s *Service) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	if _, err := s.repo.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, invoiceID)
}

// Reconcile checks that the payment rows add up to AmountPaid.
func (s *Service) Reconcile(ctx context.Context, invoiceID uuid.UUID) (*Reconciliation, error) {
	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	sum, n, err := s.repo.SumPayments(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	rec := &Reconciliation{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        inv.Status,
		PaymentCount:  n,
		PaymentsTotal: sum,
		AmountPaid:    inv.AmountPaid,
		TotalAmount:   inv.TotalAmount,
		Balance:       inv.Balance(),
		Consistent:    sum.Equal(inv.AmountPaid),
	}
	if !rec.Consistent {
		s.logger.Error().
			Str("invoice_id", inv.ID.String()).
			Str("payments_total", sum.StringFixed(2)).
			Str("amount_paid", inv.AmountPaid.StringFixed(2)).
			Msg("payment ledger does not match invoice")
	}
	return rec, nil
}
