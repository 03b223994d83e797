package ward

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ward maps to the ward table.
type Ward struct {
	ID         uuid.UUID `db:"id" json:"id"`
	HospitalID uuid.UUID `db:"hospital_id" json:"hospital_id"`
	Name       string    `db:"name" json:"name"`
	WardType   string    `db:"ward_type" json:"ward_type"`
	Floor      *string   `db:"floor" json:"floor,omitempty"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

var validWardTypes = map[string]bool{
	"general":    true,
	"icu":        true,
	"pediatric":  true,
	"maternity":  true,
	"surgical":   true,
	"emergency":  true,
	"isolation":  true,
	"private":    true,
	"cardiology": true,
}

// Bed maps to the bed table. HospitalID is copied from the owning ward so
// availability queries never need a join.
type Bed struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	WardID     uuid.UUID       `db:"ward_id" json:"ward_id"`
	HospitalID uuid.UUID       `db:"hospital_id" json:"hospital_id"`
	BedNumber  string          `db:"bed_number" json:"bed_number"`
	BedType    string          `db:"bed_type" json:"bed_type"`
	DailyRate  decimal.Decimal `db:"daily_rate" json:"daily_rate"`
	Status     string          `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Bed statuses. Occupied is only ever set by the admission lifecycle.
const (
	BedAvailable   = "available"
	BedOccupied    = "occupied"
	BedMaintenance = "maintenance"
	BedReserved    = "reserved"
)

// manualStatuses are the targets staff may set directly.
var manualStatuses = map[string]bool{
	BedAvailable:   true,
	BedMaintenance: true,
	BedReserved:    true,
}

var validBedTypes = map[string]bool{
	"standard":  true,
	"icu":       true,
	"pediatric": true,
	"bariatric": true,
	"isolation": true,
	"cot":       true,
	"private":   true,
}

// BedFilter narrows ListBeds. Zero values mean "any".
type BedFilter struct {
	HospitalID *uuid.UUID
	WardID     *uuid.UUID
	Status     string
}

// Occupancy counts a hospital's beds by status.
type Occupancy struct {
	HospitalID  uuid.UUID `json:"hospital_id"`
	Total       int       `json:"total"`
	Available   int       `json:"available"`
	Occupied    int       `json:"occupied"`
	Maintenance int       `json:"maintenance"`
	Reserved    int       `json:"reserved"`
	// OccupancyRate is occupied / (total - maintenance), rounded to 4 places.
	OccupancyRate decimal.Decimal `json:"occupancy_rate"`
}

func newOccupancy(hospitalID uuid.UUID, counts map[string]int) *Occupancy {
	o := &Occupancy{
		HospitalID:  hospitalID,
		Available:   counts[BedAvailable],
		Occupied:    counts[BedOccupied],
		Maintenance: counts[BedMaintenance],
		Reserved:    counts[BedReserved],
	}
	o.Total = o.Available + o.Occupied + o.Maintenance + o.Reserved
	o.OccupancyRate = decimal.Zero
	if usable := o.Total - o.Maintenance; usable > 0 {
		o.OccupancyRate = decimal.NewFromInt(int64(o.Occupied)).
			Div(decimal.NewFromInt(int64(usable))).Round(4)
	}
	return o
}
