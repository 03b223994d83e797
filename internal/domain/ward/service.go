package ward

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/inpatient/internal/platform/apperr"
	"github.com/ehr/inpatient/internal/platform/metrics"
)

// Service is the ward and bed registry. It never moves a bed into or out of
// occupied; that belongs to the admission lifecycle.
type Service struct {
	wards   WardRepository
	beds    BedRepository
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewService(wards WardRepository, beds BedRepository, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		wards:   wards,
		beds:    beds,
		logger:  logger.With().Str("component", "ward").Logger(),
		metrics: m,
	}
}

// -- Wards --

func (s *Service) CreateWard(ctx context.Context, w *Ward) error {
	if w.HospitalID == uuid.Nil {
		return apperr.Validation("hospital_id is required")
	}
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return apperr.Validation("name is required")
	}
	if w.WardType == "" {
		w.WardType = "general"
	}
	if !validWardTypes[w.WardType] {
		return apperr.Validation("invalid ward_type: %s", w.WardType)
	}
	w.Active = true
	if err := s.wards.Create(ctx, w); err != nil {
		return err
	}
	s.logger.Info().Str("ward_id", w.ID.String()).Str("hospital_id", w.HospitalID.String()).Msg("ward created")
	return nil
}

func (s *Service) GetWard(ctx context.Context, id uuid.UUID) (*Ward, error) {
	return s.wards.GetByID(ctx, id)
}

func (s *Service) ListWards(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Ward, int, error) {
	return s.wards.ListByHospital(ctx, hospitalID, limit, offset)
}

// WardUpdate carries the mutable ward fields; nil leaves a field unchanged.
type WardUpdate struct {
	Name     *string
	WardType *string
	Floor    *string
	Active   *bool
}

func (s *Service) UpdateWard(ctx context.Context, id uuid.UUID, u WardUpdate) (*Ward, error) {
	w, err := s.wards.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, apperr.Validation("name must not be empty")
		}
		w.Name = name
	}
	if u.WardType != nil {
		if !validWardTypes[*u.WardType] {
			return nil, apperr.Validation("invalid ward_type: %s", *u.WardType)
		}
		w.WardType = *u.WardType
	}
	if u.Floor != nil {
		w.Floor = u.Floor
	}
	if u.Active != nil {
		w.Active = *u.Active
	}
	if err := s.wards.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// DeleteWard removes a ward that owns no beds.
func (s *Service) DeleteWard(ctx context.Context, id uuid.UUID) error {
	if _, err := s.wards.GetByID(ctx, id); err != nil {
		return err
	}
	n, err := s.beds.CountByWard(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.ErrWardNotEmpty.WithDetail("%d beds", n)
	}
	if err := s.wards.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("ward_id", id.String()).Msg("ward deleted")
	return nil
}

// -- Beds --

// CreateBed adds an available bed to an active ward.
func (s *Service) CreateBed(ctx context.Context, wardID uuid.UUID, b *Bed) error {
	w, err := s.wards.GetByID(ctx, wardID)
	if err != nil {
		return err
	}
	if !w.Active {
		return apperr.Validation("ward %s is inactive", w.Name)
	}
	b.BedNumber = strings.TrimSpace(b.BedNumber)
	if b.BedNumber == "" {
		return apperr.Validation("bed_number is required")
	}
	if b.BedType == "" {
		b.BedType = "standard"
	}
	if !validBedTypes[b.BedType] {
		return apperr.Validation("invalid bed_type: %s", b.BedType)
	}
	if b.DailyRate.IsNegative() {
		return apperr.Validation("daily_rate must not be negative")
	}
	b.WardID = w.ID
	b.HospitalID = w.HospitalID
	b.Status = BedAvailable
	if err := s.beds.Create(ctx, b); err != nil {
		return err
	}
	s.logger.Info().Str("bed_id", b.ID.String()).Str("ward_id", w.ID.String()).Str("bed_number", b.BedNumber).Msg("bed created")
	return nil
}

func (s *Service) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return s.beds.GetByID(ctx, id)
}

// BedUpdate carries the mutable bed attributes; nil leaves a field unchanged.
type BedUpdate struct {
	BedType   *string
	DailyRate *decimal.Decimal
}

// UpdateBed changes type or rate. A new rate applies to stay segments that
// start after the change; segments already running keep the rate recorded
// when they began.
func (s *Service) UpdateBed(ctx context.Context, id uuid.UUID, u BedUpdate) (*Bed, error) {
	b, err := s.beds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.BedType != nil {
		if !validBedTypes[*u.BedType] {
			return nil, apperr.Validation("invalid bed_type: %s", *u.BedType)
		}
		b.BedType = *u.BedType
	}
	if u.DailyRate != nil {
		if u.DailyRate.IsNegative() {
			return nil, apperr.Validation("daily_rate must not be negative")
		}
		b.DailyRate = *u.DailyRate
	}
	if err := s.beds.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SetBedStatus moves a bed between available, maintenance and reserved.
// Occupied beds are refused with BedInUse, and occupied is never a valid
// target. The check and the write are one conditional update.
func (s *Service) SetBedStatus(ctx context.Context, id uuid.UUID, status string) (*Bed, error) {
	if status == BedOccupied {
		return nil, apperr.ErrInvalidStatusTransition.WithDetail("beds become occupied only through admission")
	}
	if !manualStatuses[status] {
		return nil, apperr.Validation("invalid bed status: %s", status)
	}

	ok, err := s.beds.UpdateStatusIf(ctx, id, status, BedAvailable, BedMaintenance, BedReserved)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := s.beds.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, apperr.ErrBedInUse
	}

	b, err := s.beds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.BedStatusChanged(status)
	s.logger.Info().Str("bed_id", id.String()).Str("status", status).Msg("bed status changed")
	return b, nil
}

func (s *Service) ListBeds(ctx context.Context, f BedFilter, limit, offset int) ([]*Bed, int, error) {
	if f.Status != "" && f.Status != BedOccupied && !manualStatuses[f.Status] {
		return nil, 0, apperr.Validation("invalid bed status: %s", f.Status)
	}
	return s.beds.List(ctx, f, limit, offset)
}

func (s *Service) ListAvailableBeds(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Bed, int, error) {
	return s.beds.List(ctx, BedFilter{HospitalID: &hospitalID, Status: BedAvailable}, limit, offset)
}

func (s *Service) OccupancySummary(ctx context.Context, hospitalID uuid.UUID) (*Occupancy, error) {
	counts, err := s.beds.CountByStatus(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	return newOccupancy(hospitalID, counts), nil
}

// IsNotFound reports whether err means the ward or bed does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrWardNotFound) || errors.Is(err, apperr.ErrBedNotFound)
}
