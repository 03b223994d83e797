package admission

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusAdmitted   = "admitted"
	StatusDischarged = "discharged"
)

// Admission maps to the admission table. Rows are never deleted.
type Admission struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	HospitalID        uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	BedID             uuid.UUID  `db:"bed_id" json:"bed_id"`
	DoctorID          uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	AdmittedAt        time.Time  `db:"admitted_at" json:"admitted_at"`
	ExpectedDischarge *time.Time `db:"expected_discharge" json:"expected_discharge,omitempty"`
	ActualDischarge   *time.Time `db:"actual_discharge" json:"actual_discharge,omitempty"`
	Diagnosis         *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	Reason            *string    `db:"reason" json:"reason,omitempty"`
	DischargeNotes    *string    `db:"discharge_notes" json:"discharge_notes,omitempty"`
	DischargedBy      *uuid.UUID `db:"discharged_by" json:"discharged_by,omitempty"`
	Status            string     `db:"status" json:"status"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

func (a *Admission) Active() bool { return a.Status == StatusAdmitted }

// BedMovement records a bed the admission moved into. FromBedID is nil for
// the admitting bed. DailyRate is the bed rate when the move happened.
type BedMovement struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	AdmissionID uuid.UUID       `db:"admission_id" json:"admission_id"`
	FromBedID   *uuid.UUID      `db:"from_bed_id" json:"from_bed_id,omitempty"`
	ToBedID     uuid.UUID       `db:"to_bed_id" json:"to_bed_id"`
	DailyRate   decimal.Decimal `db:"daily_rate" json:"daily_rate"`
	MovedAt     time.Time       `db:"moved_at" json:"moved_at"`
}

// ListFilter narrows ListAdmissions. From and To bound admitted_at
// (inclusive, exclusive).
type ListFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
}

// AdmitRequest is the input to Admit. The hospital is taken from the bed.
type AdmitRequest struct {
	PatientID         uuid.UUID
	BedID             uuid.UUID
	DoctorID          uuid.UUID
	Reason            *string
	Diagnosis         *string
	ExpectedDischarge *time.Time
}

// ChargeSegment is one stretch of the stay spent in a single bed.
type ChargeSegment struct {
	BedID     uuid.UUID       `json:"bed_id"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Days      int             `json:"days"`
	DailyRate decimal.Decimal `json:"daily_rate"`
	Amount    decimal.Decimal `json:"amount"`
}

// StayCharges prices an admission's bed usage so an invoice can be built
// from it.
type StayCharges struct {
	AdmissionID uuid.UUID       `json:"admission_id"`
	Segments    []ChargeSegment `json:"segments"`
	TotalDays   int             `json:"total_days"`
	Total       decimal.Decimal `json:"total"`
	Final       bool            `json:"final"`
}

const day = 24 * time.Hour

// billedDays rounds a segment up to whole days. A move within the first
// hour of a segment is treated as a correction and not billed.
func billedDays(d time.Duration) int {
	if d < time.Hour {
		return 0
	}
	days := int(d / day)
	if d%day != 0 {
		days++
	}
	return days
}

// computeCharges prices movements in order up to end. A stay shorter than
// an hour is still billed one day in its first bed.
func computeCharges(a *Admission, moves []*BedMovement, end time.Time) *StayCharges {
	sc := &StayCharges{AdmissionID: a.ID, Total: decimal.Zero, Final: !a.Active()}
	for i, m := range moves {
		to := end
		if i+1 < len(moves) {
			to = moves[i+1].MovedAt
		}
		days := billedDays(to.Sub(m.MovedAt))
		sc.Segments = append(sc.Segments, ChargeSegment{
			BedID:     m.ToBedID,
			From:      m.MovedAt,
			To:        to,
			Days:      days,
			DailyRate: m.DailyRate,
		})
		sc.TotalDays += days
	}
	if sc.TotalDays == 0 && len(sc.Segments) > 0 {
		sc.Segments[0].Days = 1
		sc.TotalDays = 1
	}
	for i := range sc.Segments {
		seg := &sc.Segments[i]
		seg.Amount = seg.DailyRate.Mul(decimal.NewFromInt(int64(seg.Days)))
		sc.Total = sc.Total.Add(seg.Amount)
	}
	return sc
}
