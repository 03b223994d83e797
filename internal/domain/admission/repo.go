package admission

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/inpatient/internal/domain/ward"
)

// Repository returns apperr.ErrAdmissionNotFound for unknown ids. Create
// returns apperr.ErrBedUnavailable or apperr.ErrPatientAlreadyAdmitted when
// the bed or patient already has an active admission.
type Repository interface {
	Create(ctx context.Context, a *Admission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Admission, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Admission, error)
	// ActiveForPatient returns nil without error when the patient is not admitted.
	ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error)
	UpdateBed(ctx context.Context, id, bedID uuid.UUID) error
	MarkDischarged(ctx context.Context, a *Admission) error
	List(ctx context.Context, hospitalID uuid.UUID, f ListFilter, limit, offset int) ([]*Admission, int, error)
	AddMovement(ctx context.Context, m *BedMovement) error
	ListMovements(ctx context.Context, admissionID uuid.UUID) ([]*BedMovement, error)
}

// BedStore is the slice of the bed registry the lifecycle needs. Status
// changes go through UpdateStatusIf only.
type BedStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*ward.Bed, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, to string, from ...string) (bool, error)
}
