package ward

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

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
	// Read endpoints - any staff
	read := api.Group("", auth.RequireRole(auth.StaffRoles...))
	read.GET("/hospitals/:hospital_id/wards", h.ListWards)
	read.GET("/wards/:id", h.GetWard)
	read.GET("/beds", h.ListBeds)
	read.GET("/beds/:id", h.GetBed)
	read.GET("/hospitals/:hospital_id/beds/available", h.ListAvailableBeds)
	read.GET("/hospitals/:hospital_id/occupancy", h.OccupancySummary)

	// Registry writes - admin
	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/hospitals/:hospital_id/wards", h.CreateWard)
	write.PUT("/wards/:id", h.UpdateWard)
	write.DELETE("/wards/:id", h.DeleteWard)
	write.POST("/wards/:id/beds", h.CreateBed)
	write.PUT("/beds/:id", h.UpdateBed)

	status := api.Group("", auth.RequireRole(auth.RoleNurse))
	status.PATCH("/beds/:id/status", h.SetBedStatus)
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Ward Handlers --

type createWardRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	WardType string  `json:"ward_type" validate:"omitempty,max=50"`
	Floor    *string `json:"floor" validate:"omitempty,max=20"`
}

func (h *Handler) CreateWard(c echo.Context) error {
	hospitalID, err := pathUUID(c, "hospital_id")
	if err != nil {
		return err
	}
	var req createWardRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	w := &Ward{HospitalID: hospitalID, Name: req.Name, WardType: req.WardType, Floor: req.Floor}
	if err := h.svc.CreateWard(c.Request().Context(), w); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) GetWard(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	w, err := h.svc.GetWard(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) ListWards(c echo.Context) error {
	hospitalID, err := pathUUID(c, "hospital_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListWards(c.Request().Context(), hospitalID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type updateWardRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	WardType *string `json:"ward_type" validate:"omitempty,max=50"`
	Floor    *string `json:"floor" validate:"omitempty,max=20"`
	Active   *bool   `json:"active"`
}

func (h *Handler) UpdateWard(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req updateWardRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	w, err := h.svc.UpdateWard(c.Request().Context(), id, WardUpdate(req))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) DeleteWard(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteWard(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Bed Handlers --

type createBedRequest struct {
	BedNumber string          `json:"bed_number" validate:"required,max=20"`
	BedType   string          `json:"bed_type" validate:"omitempty,max=50"`
	DailyRate decimal.Decimal `json:"daily_rate" validate:"dnonneg"`
}

func (h *Handler) CreateBed(c echo.Context) error {
	wardID, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req createBedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	b := &Bed{BedNumber: req.BedNumber, BedType: req.BedType, DailyRate: req.DailyRate}
	if err := h.svc.CreateBed(c.Request().Context(), wardID, b); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBed(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	b, err := h.svc.GetBed(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

type updateBedRequest struct {
	BedType   *string          `json:"bed_type" validate:"omitempty,max=50"`
	DailyRate *decimal.Decimal `json:"daily_rate" validate:"omitempty,dnonneg"`
}

func (h *Handler) UpdateBed(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req updateBedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	b, err := h.svc.UpdateBed(c.Request().Context(), id, BedUpdate(req))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

type setBedStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) SetBedStatus(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req setBedStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	b, err := h.svc.SetBedStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBeds(c echo.Context) error {
	var f BedFilter
	if v := c.QueryParam("ward_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid ward_id")
		}
		f.WardID = &id
	}
	if v := c.QueryParam("hospital_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
		}
		f.HospitalID = &id
	}
	f.Status = c.QueryParam("status")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBeds(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListAvailableBeds(c echo.Context) error {
	hospitalID, err := pathUUID(c, "hospital_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAvailableBeds(c.Request().Context(), hospitalID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) OccupancySummary(c echo.Context) error {
	hospitalID, err := pathUUID(c, "hospital_id")
	if err != nil {
		return err
	}
	o, err := h.svc.OccupancySummary(c.Request().Context(), hospitalID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}
