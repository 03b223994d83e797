package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/inpatient/internal/domain/ward"
	"github.com/ehr/inpatient/internal/platform/apperr"
	"github.com/ehr/inpatient/internal/platform/db"
	"github.com/ehr/inpatient/internal/platform/metrics"
)

// Service runs the admit, transfer and discharge lifecycle. Every bed status
// change happens inside the same transaction as the admission write, and
// every bed claim is a compare-and-set on the bed row.
type Service struct {
	repo    Repository
	beds    BedStore
	tx      db.Transactor
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo Repository, beds BedStore, tx db.Transactor, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		beds:    beds,
		tx:      tx,
		logger:  logger.With().Str("component", "admission").Logger(),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Admit claims an available bed for the patient and opens an admission.
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (*Admission, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	if req.BedID == uuid.Nil {
		return nil, apperr.Validation("bed_id is required")
	}
	if req.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	now := s.now()
	if req.ExpectedDischarge != nil && req.ExpectedDischarge.Before(now.Truncate(day)) {
		return nil, apperr.Validation("expected_discharge must not be in the past")
	}

	var a *Admission
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		bed, err := s.beds.GetByID(ctx, req.BedID)
		if err != nil {
			return err
		}
		active, err := s.repo.ActiveForPatient(ctx, req.PatientID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperr.ErrPatientAlreadyAdmitted.WithDetail("admission %s", active.ID)
		}

		ok, err := s.beds.UpdateStatusIf(ctx, bed.ID, ward.BedOccupied, ward.BedAvailable)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrBedUnavailable.WithDetail("bed %s", bed.BedNumber)
		}

		a = &Admission{
			HospitalID:        bed.HospitalID,
			PatientID:         req.PatientID,
			BedID:             bed.ID,
			DoctorID:          req.DoctorID,
			AdmittedAt:        now,
			ExpectedDischarge: req.ExpectedDischarge,
			Diagnosis:         req.Diagnosis,
			Reason:            req.Reason,
			Status:            StatusAdmitted,
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		return s.repo.AddMovement(ctx, &BedMovement{
			AdmissionID: a.ID,
			ToBedID:     bed.ID,
			DailyRate:   bed.DailyRate,
			MovedAt:     now,
		})
	})
	if err != nil {
		s.contention("admit", req.BedID, err)
		return nil, err
	}

	s.metrics.Admitted()
	s.logger.Info().
		Str("admission_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("bed_id", a.BedID.String()).
		Msg("patient admitted")
	return a, nil
}

// Transfer moves an active admission to another available bed in the same
// hospital. The old bed is released and the new one claimed in one unit of
// work, so no reader sees both beds in the same state.
func (s *Service) Transfer(ctx context.Context, admissionID, newBedID uuid.UUID) (*Admission, error) {
	if newBedID == uuid.Nil {
		return nil, apperr.Validation("new_bed_id is required")
	}

	var a *Admission
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.GetForUpdate(ctx, admissionID)
		if err != nil {
			return err
		}
		if !a.Active() {
			return apperr.ErrInvalidStatusTransition.WithDetail("admission is %s", a.Status)
		}
		if a.BedID == newBedID {
			return apperr.Validation("new bed is the current bed")
		}

		bed, err := s.beds.GetByID(ctx, newBedID)
		if err != nil {
			return err
		}
		if bed.HospitalID != a.HospitalID {
			return apperr.Validation("bed %s belongs to another hospital", bed.BedNumber)
		}

		ok, err := s.beds.UpdateStatusIf(ctx, newBedID, ward.BedOccupied, ward.BedAvailable)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrBedUnavailable.WithDetail("bed %s", bed.BedNumber)
		}
		if err := s.release(ctx, a.BedID); err != nil {
			return err
		}
		if err := s.repo.UpdateBed(ctx, a.ID, newBedID); err != nil {
			return err
		}

		from := a.BedID
		a.BedID = newBedID
		return s.repo.AddMovement(ctx, &BedMovement{
			AdmissionID: a.ID,
			FromBedID:   &from,
			ToBedID:     newBedID,
			DailyRate:   bed.DailyRate,
			MovedAt:     s.now(),
		})
	})
	if err != nil {
		s.contention("transfer", newBedID, err)
		return nil, err
	}

	s.metrics.Transferred()
	s.logger.Info().
		Str("admission_id", a.ID.String()).
		Str("bed_id", newBedID.String()).
		Msg("patient transferred")
	return a, nil
}

// Discharge closes an active admission and frees its bed.
func (s *Service) Discharge(ctx context.Context, admissionID, dischargedBy uuid.UUID, notes *string) (*Admission, error) {
	if dischargedBy == uuid.Nil {
		return nil, apperr.Validation("discharged_by is required")
	}

	var a *Admission
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.GetForUpdate(ctx, admissionID)
		if err != nil {
			return err
		}
		if !a.Active() {
			return apperr.ErrInvalidStatusTransition.WithDetail("admission is %s", a.Status)
		}

		now := s.now()
		a.ActualDischarge = &now
		a.DischargeNotes = notes
		a.DischargedBy = &dischargedBy
		if err := s.repo.MarkDischarged(ctx, a); err != nil {
			return err
		}
		return s.release(ctx, a.BedID)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Discharged()
	s.logger.Info().
		Str("admission_id", a.ID.String()).
		Str("bed_id", a.BedID.String()).
		Msg("patient discharged")
	return a, nil
}

// release flips an occupied bed back to available. A bed held by an active
// admission is always occupied, so a miss means the registry and the
// admission disagree and the unit of work must roll back.
func (s *Service) release(ctx context.Context, bedID uuid.UUID) error {
	ok, err := s.beds.UpdateStatusIf(ctx, bedID, ward.BedAvailable, ward.BedOccupied)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("release bed %s: bed is not occupied", bedID)
	}
	return nil
}

func (s *Service) contention(op string, bedID uuid.UUID, err error) {
	if apperr.CodeOf(err) != apperr.CodeBedUnavailable {
		return
	}
	s.metrics.BedUnavailable(op)
	s.logger.Warn().Str("bed_id", bedID.String()).Str("operation", op).Msg("bed not available")
}

func (s *Service) GetAdmission(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListAdmissions(ctx context.Context, hospitalID uuid.UUID, f ListFilter, limit, offset int) ([]*Admission, int, error) {
	if f.Status != "" && f.Status != StatusAdmitted && f.Status != StatusDischarged {
		return nil, 0, apperr.Validation("invalid admission status: %s", f.Status)
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, 0, apperr.Validation("from must be before to")
	}
	return s.repo.List(ctx, hospitalID, f, limit, offset)
}

func (s *Service) ListCurrentAdmissions(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	return s.repo.List(ctx, hospitalID, ListFilter{Status: StatusAdmitted}, limit, offset)
}

func (s *Service) ListMovements(ctx context.Context, admissionID uuid.UUID) ([]*BedMovement, error) {
	if _, err := s.repo.GetByID(ctx, admissionID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, admissionID)
}

// StayCharges prices the stay up to discharge, or up to now while the
// patient is still admitted.
func (s *Service) StayCharges(ctx context.Context, admissionID uuid.UUID) (*StayCharges, error) {
	a, err := s.repo.GetByID(ctx, admissionID)
	if err != nil {
		return nil, err
	}
	moves, err := s.repo.ListMovements(ctx, admissionID)
	if err != nil {
		return nil, err
	}
	end := s.now()
	if a.ActualDischarge != nil {
		end = *a.ActualDischarge
	}
	return computeCharges(a, moves, end), nil
}
