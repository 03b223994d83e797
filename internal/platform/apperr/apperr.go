package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Code is the stable, machine-readable identifier of a domain error. Codes
// are part of the API contract and are returned in error bodies.
type Code string

const (
	CodeWardNotFound            Code = "WardNotFound"
	CodeWardNotEmpty            Code = "WardNotEmpty"
	CodeBedNotFound             Code = "BedNotFound"
	CodeBedInUse                Code = "BedInUse"
	CodeBedUnavailable          Code = "BedUnavailable"
	CodeDuplicateBedNumber      Code = "DuplicateBedNumber"
	CodeAdmissionNotFound       Code = "AdmissionNotFound"
	CodePatientAlreadyAdmitted  Code = "PatientAlreadyAdmitted"
	CodeInvalidStatusTransition Code = "InvalidStatusTransition"
	CodeInvoiceNotFound         Code = "InvoiceNotFound"
	CodeInvoiceNotEditable      Code = "InvoiceNotEditable"
	CodeInvoiceNotPayable       Code = "InvoiceNotPayable"
	CodeInvalidAmount           Code = "InvalidAmount"
	CodeValidation              Code = "ValidationError"
)

// Error is a typed domain error. Two errors are equal under errors.Is when
// their codes match, so a detailed error still matches its sentinel.
type Error struct {
	Code    Code
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetail returns a copy of e carrying an additional detail message.
func (e *Error) WithDetail(format string, args ...interface{}) *Error {
	return &Error{Code: e.Code, Message: e.Message, Detail: fmt.Sprintf(format, args...)}
}

var (
	ErrWardNotFound            = &Error{Code: CodeWardNotFound, Message: "ward not found"}
	ErrWardNotEmpty            = &Error{Code: CodeWardNotEmpty, Message: "ward still owns beds"}
	ErrBedNotFound             = &Error{Code: CodeBedNotFound, Message: "bed not found"}
	ErrBedInUse                = &Error{Code: CodeBedInUse, Message: "bed is linked to an active admission"}
	ErrBedUnavailable          = &Error{Code: CodeBedUnavailable, Message: "bed is not available"}
	ErrDuplicateBedNumber      = &Error{Code: CodeDuplicateBedNumber, Message: "bed number already exists in ward"}
	ErrAdmissionNotFound       = &Error{Code: CodeAdmissionNotFound, Message: "admission not found"}
	ErrPatientAlreadyAdmitted  = &Error{Code: CodePatientAlreadyAdmitted, Message: "patient already has an active admission"}
	ErrInvalidStatusTransition = &Error{Code: CodeInvalidStatusTransition, Message: "invalid status transition"}
	ErrInvoiceNotFound         = &Error{Code: CodeInvoiceNotFound, Message: "invoice not found"}
	ErrInvoiceNotEditable      = &Error{Code: CodeInvoiceNotEditable, Message: "invoice can no longer be edited"}
	ErrInvoiceNotPayable       = &Error{Code: CodeInvoiceNotPayable, Message: "invoice does not accept payments"}
	ErrInvalidAmount           = &Error{Code: CodeInvalidAmount, Message: "amount must be greater than zero"}
	ErrValidation              = &Error{Code: CodeValidation, Message: "validation failed"}
)

// Validation builds a ValidationError with a formatted detail.
func Validation(format string, args ...interface{}) error {
	return ErrValidation.WithDetail(format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or "" when err
// is not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var statusByCode = map[Code]int{
	CodeWardNotFound:            http.StatusNotFound,
	CodeBedNotFound:             http.StatusNotFound,
	CodeAdmissionNotFound:       http.StatusNotFound,
	CodeInvoiceNotFound:         http.StatusNotFound,
	CodeWardNotEmpty:            http.StatusConflict,
	CodeBedInUse:                http.StatusConflict,
	CodeBedUnavailable:          http.StatusConflict,
	CodeDuplicateBedNumber:      http.StatusConflict,
	CodePatientAlreadyAdmitted:  http.StatusConflict,
	CodeInvalidStatusTransition: http.StatusConflict,
	CodeInvoiceNotEditable:      http.StatusConflict,
	CodeInvoiceNotPayable:       http.StatusConflict,
	CodeInvalidAmount:           http.StatusUnprocessableEntity,
	CodeValidation:              http.StatusBadRequest,
}

// HTTPStatus maps err to an HTTP status code. Errors outside the taxonomy
// are treated as internal failures.
func HTTPStatus(err error) int {
	if status, ok := statusByCode[CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Body is the JSON error payload returned by handlers.
type Body struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// HTTPError converts err into an echo.HTTPError. Internal errors are masked
// so driver messages never reach clients; the underlying error is kept as the
// internal cause for the logger middleware.
func HTTPError(err error) *echo.HTTPError {
	var e *Error
	if !errors.As(err, &e) {
		he := echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		he.Internal = err
		return he
	}
	return echo.NewHTTPError(HTTPStatus(err), Body{Code: e.Code, Message: e.Error()})
}
