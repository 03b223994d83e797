package admission

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/inpatient/internal/platform/apperr"
	"github.com/ehr/inpatient/internal/platform/auth"
	"github.com/ehr/inpatient/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.StaffRoles...))
	read.GET("/admissions/:id", h.GetAdmission)
	read.GET("/admissions/:id/movements", h.ListMovements)
	read.GET("/hospitals/:hospital_id/admissions", h.ListAdmissions)
	read.GET("/hospitals/:hospital_id/admissions/current", h.ListCurrentAdmissions)

	admit := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar))
	admit.POST("/admissions", h.Admit)

	transfer := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	transfer.POST("/admissions/:id/transfer", h.Transfer)

	discharge := api.Group("", auth.RequireRole(auth.RolePhysician))
	discharge.POST("/admissions/:id/discharge", h.Discharge)

	charges := api.Group("", auth.RequireRole(auth.RoleBilling, auth.RoleRegistrar))
	charges.GET("/admissions/:id/charges", h.StayCharges)
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

type admitRequest struct {
	PatientID         uuid.UUID `json:"patient_id" validate:"required"`
	BedID             uuid.UUID `json:"bed_id" validate:"required"`
	DoctorID          uuid.UUID `json:"doctor_id" validate:"required"`
	Reason            *string   `json:"reason" validate:"omitempty,max=2000"`
	Diagnosis         *string   `json:"diagnosis" validate:"omitempty,max=2000"`
	ExpectedDischarge string    `json:"expected_discharge" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) Admit(c echo.Context) error {
	var req admitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	in := AdmitRequest{
		PatientID: req.PatientID,
		BedID:     req.BedID,
		DoctorID:  req.DoctorID,
		Reason:    req.Reason,
		Diagnosis: req.Diagnosis,
	}
	if req.ExpectedDischarge != "" {
		t, _ := time.Parse(time.DateOnly, req.ExpectedDischarge)
		in.ExpectedDischarge = &t
	}
	a, err := h.svc.Admit(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAdmission(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAdmission(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type transferRequest struct {
	NewBedID uuid.UUID `json:"new_bed_id" validate:"required"`
}

func (h *Handler) Transfer(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	a, err := h.svc.Transfer(c.Request().Context(), id, req.NewBedID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type dischargeRequest struct {
	DischargedBy *uuid.UUID `json:"discharged_by"`
	Notes        *string    `json:"notes" validate:"omitempty,max=4000"`
}

// Discharge records the caller as discharging clinician. Only admins may
// record a discharge on behalf of someone else via discharged_by.
func (h *Handler) Discharge(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req dischargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	ctx := c.Request().Context()
	by, ok := auth.UserUUIDFromContext(ctx)
	if req.DischargedBy != nil && (!ok || *req.DischargedBy != by) {
		if !auth.HasRole(auth.RolesFromContext(ctx), auth.RoleAdmin) {
			return echo.NewHTTPError(http.StatusForbidden, "only an admin may discharge on behalf of another user")
		}
		by = *req.DischargedBy
	}
	a, err := h.svc.Discharge(ctx, id, by, req.Notes)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListMovements(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListMovements(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) StayCharges(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	sc, err := h.svc.StayCharges(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sc)
}

func (h *Handler) ListAdmissions(c echo.Context) error {
	hospitalID, err := pathUUID(c, "hospital_id")
	if err != nil {
		return err
	}
	f := ListFilter{Status: c.QueryParam("status")}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name)
		}
		*p.dst = &t
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAdmissions(c.Request().Context(), hospitalID, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListCurrentAdmissions(c echo.Context) error {
	hospitalID, err := pathUUID(c, "hospital_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCurrentAdmissions(c.Request().Context(), hospitalID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
