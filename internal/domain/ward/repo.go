package ward

import (
	"context"

	"github.com/google/uuid"
)

// WardRepository returns apperr.ErrWardNotFound for unknown ids.
type WardRepository interface {
	Create(ctx context.Context, w *Ward) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ward, error)
	Update(ctx context.Context, w *Ward) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Ward, int, error)
}

// BedRepository returns apperr.ErrBedNotFound for unknown ids and
// apperr.ErrDuplicateBedNumber when a ward already has the bed number.
type BedRepository interface {
	Create(ctx context.Context, b *Bed) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	// Update writes bed type and daily rate. Status is never written here.
	Update(ctx context.Context, b *Bed) error
	List(ctx context.Context, f BedFilter, limit, offset int) ([]*Bed, int, error)
	CountByWard(ctx context.Context, wardID uuid.UUID) (int, error)
	// UpdateStatusIf sets status to `to` only if the current status is one of
	// from, as a single atomic compare-and-set. It reports whether the bed
	// changed; false means the bed is missing or in another status.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, to string, from ...string) (bool, error)
	CountByStatus(ctx context.Context, hospitalID uuid.UUID) (map[string]int, error)
}
