package billing

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/ehr/inpatient/internal/platform/apperr"
	"github.com/ehr/inpatient/internal/platform/auth"
	"github.com/ehr/inpatient/pkg/pagination"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints - billing, registrar
	read := api.Group("", auth.RequireRole(auth.RoleBilling, auth.RoleRegistrar))
	read.GET("/invoices/:id", h.GetInvoice)
	read.GET("/hospitals/:hospital_id/invoices", h.ListInvoices)
	read.GET("/patients/:patient_id/invoices", h.ListPatientInvoices)

	// Invoice and ledger writes - billing
	write := api.Group("", auth.RequireRole(auth.RoleBilling))
	write.POST("/invoices", h.CreateInvoice)
	write.POST("/invoices/:id/issue", h.IssueInvoice)
	write.POST("/invoices/:id/cancel", h.CancelInvoice)
	write.POST("/invoices/:id/payments", h.RecordPayment)
	write.GET("/invoices/:id/payments", h.ListPayments)
	write.GET("/invoices/:id/reconcile", h.Reconcile)
	write.GET("/hospitals/:hospital_id/invoices/export", h.ExportInvoices)
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func callerID(c echo.Context) *uuid.UUID {
	if id, ok := auth.UserUUIDFromContext(c.Request().Context()); ok {
		return &id
	}
	return nil
}

// -- Invoice Handlers --

type itemRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	Category    *string         `json:"category" validate:"omitempty,max=50"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"dnonneg"`
}

type createInvoiceRequest struct {
	HospitalID     uuid.UUID       `json:"hospital_id" validate:"required"`
	PatientID      uuid.UUID       `json:"patient_id" validate:"required"`
	AdmissionID    *uuid.UUID      `json:"admission_id"`
	Items          []itemRequest   `json:"items" validate:"required,min=1,dive"`
	TaxPercent     decimal.Decimal `json:"tax_percent" validate:"dnonneg"`
	DiscountAmount decimal.Decimal `json:"discount_amount" validate:"dnonneg"`
	DueDate        string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes          *string         `json:"notes" validate:"omitempty,max=4000"`
	Draft          bool            `json:"draft"`
}

func (h *Handler) CreateInvoice(c echo.Context) error {
	var req createInvoiceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}

	in := CreateInvoiceRequest{
		HospitalID:  req.HospitalID,
		PatientID:   req.PatientID,
		AdmissionID: req.AdmissionID,
		TaxPercent:  req.TaxPercent,
		Discount:    req.DiscountAmount,
		Notes:       req.Notes,
		CreatedBy:   callerID(c),
		Draft:       req.Draft,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, ItemInput(it))
	}
	if req.DueDate != "" {
		d, _ := time.Parse(time.DateOnly, req.DueDate)
		in.DueDate = &d
	}

	inv, err := h.svc.CreateInvoice(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) GetInvoice(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) IssueInvoice(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.IssueInvoice(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) CancelInvoice(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.CancelInvoice(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	hospitalID, err := pathUUID(c, "hospital_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListInvoices(c.Request().Context(), hospitalID, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPatientInvoices(c echo.Context) error {
	patientID, err := pathUUID(c, "patient_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientInvoices(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ExportInvoices(c echo.Context) error {
	hospitalID, err := pathUUID(c, "hospital_id")
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := h.svc.ExportInvoices(c.Request().Context(), hospitalID, c.QueryParam("status"), &buf); err != nil {
		return apperr.HTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=invoices-%s.xlsx", time.Now().UTC().Format("20060102")))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

// -- Ledger Handlers --

type paymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method" validate:"required,max=30"`
	TransactionRef *string         `json:"transaction_ref" validate:"omitempty,max=255"`
	Notes          *string         `json:"notes" validate:"omitempty,max=2000"`
}

type paymentResponse struct {
	Payment *Payment `json:"payment"`
	Invoice *Invoice `json:"invoice"`
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	p, inv, err := h.svc.RecordPayment(c.Request().Context(), PaymentRequest{
		InvoiceID:      id,
		Amount:         req.Amount,
		Method:         req.Method,
		TransactionRef: req.TransactionRef,
		Notes:          req.Notes,
		ReceivedBy:     callerID(c),
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, paymentResponse{Payment: p, Invoice: inv})
}

func (h *Handler) ListPayments(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListPayments(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Reconcile(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.svc.Reconcile(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}
