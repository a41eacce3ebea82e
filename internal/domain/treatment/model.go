package treatment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the therapy modality of a treatment plan.
type Type string

const (
	TypeChemotherapy       Type = "CHEMOTHERAPY"
	TypeRadiotherapy       Type = "RADIOTHERAPY"
	TypeImmunotherapy      Type = "IMMUNOTHERAPY"
	TypeSurgery            Type = "SURGERY"
	TypeHormoneTherapy     Type = "HORMONE_THERAPY"
	TypeTargetedTherapy    Type = "TARGETED_THERAPY"
	TypeStemCellTransplant Type = "STEM_CELL_TRANSPLANT"
)

var validTypes = map[Type]bool{
	TypeChemotherapy: true, TypeRadiotherapy: true, TypeImmunotherapy: true,
	TypeSurgery: true, TypeHormoneTherapy: true, TypeTargetedTherapy: true,
	TypeStemCellTransplant: true,
}

func (t Type) Valid() bool { return validTypes[t] }

// Status is the lifecycle state of a treatment plan.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusSuspended Status = "SUSPENDED"
	StatusCancelled Status = "CANCELLED"
	StatusFollowUp  Status = "FOLLOW_UP"
)

var validStatuses = map[Status]bool{
	StatusActive: true, StatusCompleted: true, StatusSuspended: true,
	StatusCancelled: true, StatusFollowUp: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// SessionStatus is the state of a single administered or planned session.
type SessionStatus string

const (
	SessionScheduled   SessionStatus = "SCHEDULED"
	SessionInProgress  SessionStatus = "IN_PROGRESS"
	SessionCompleted   SessionStatus = "COMPLETED"
	SessionCancelled   SessionStatus = "CANCELLED"
	SessionRescheduled SessionStatus = "RESCHEDULED"
)

// Percentage is a 0-100 value with two fraction digits. It renders as a JSON
// number rather than the quoted string decimal.Decimal defaults to.
type Percentage struct {
	decimal.Decimal
}

func NewPercentage(d decimal.Decimal) *Percentage {
	return &Percentage{Decimal: d.Round(2)}
}

func (p Percentage) MarshalJSON() ([]byte, error) {
	return []byte(p.StringFixed(2)), nil
}

func (p Percentage) inRange() bool {
	return !p.IsNegative() && p.LessThanOrEqual(decimal.NewFromInt(100))
}

func percentageFromNull(n decimal.NullDecimal) *Percentage {
	if !n.Valid {
		return nil
	}
	return &Percentage{Decimal: n.Decimal}
}

func (p *Percentage) nullDecimal() decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: p.Decimal, Valid: true}
}

// Treatment maps to the treatments table. DoctorName, PatientName and
// PatientProfileCode are resolved from the profile tables on read.
type Treatment struct {
	ID                      uuid.UUID   `db:"id" json:"id"`
	DoctorID                uuid.UUID   `db:"doctor_id" json:"doctor_id"`
	PatientID               uuid.UUID   `db:"patient_id" json:"patient_id"`
	DoctorName              string      `db:"-" json:"doctor_name,omitempty"`
	PatientName             string      `db:"-" json:"patient_name,omitempty"`
	PatientProfileCode      string      `db:"-" json:"patient_profile_code,omitempty"`
	Type                    Type        `db:"type" json:"type"`
	Protocol                string      `db:"protocol" json:"protocol"`
	CurrentCycle            int         `db:"current_cycle" json:"current_cycle"`
	TotalCycles             int         `db:"total_cycles" json:"total_cycles"`
	StartDate               time.Time   `db:"start_date" json:"start_date"`
	EndDate                 *time.Time  `db:"end_date" json:"end_date,omitempty"`
	NextSession             *time.Time  `db:"next_session" json:"next_session,omitempty"`
	Status                  Status      `db:"status" json:"status"`
	Effectiveness           *Percentage `db:"effectiveness" json:"effectiveness,omitempty"`
	Adherence               *Percentage `db:"adherence" json:"adherence,omitempty"`
	SessionDurationMinutes  *int        `db:"session_duration_minutes" json:"session_duration_minutes,omitempty"`
	Location                *string     `db:"location" json:"location,omitempty"`
	Medications             StringList  `db:"medications" json:"medications"`
	SideEffects             StringList  `db:"side_effects" json:"side_effects"`
	Notes                   *string     `db:"notes" json:"notes,omitempty"`
	PreparationInstructions *string     `db:"preparation_instructions" json:"preparation_instructions,omitempty"`
	IsActive                bool        `db:"is_active" json:"is_active"`
	CreatedAt               time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time   `db:"updated_at" json:"updated_at"`
}

// ProgressPercentage is floor(current_cycle * 100 / total_cycles).
func (t *Treatment) ProgressPercentage() int {
	if t.TotalCycles <= 0 {
		return 0
	}
	return t.CurrentCycle * 100 / t.TotalCycles
}

func (t Treatment) MarshalJSON() ([]byte, error) {
	type plain Treatment
	return json.Marshal(struct {
		plain
		ProgressPercentage int `json:"progress_percentage"`
	}{plain(t), t.ProgressPercentage()})
}

// appendNote adds line to the notes, separated from earlier text by a newline.
func (t *Treatment) appendNote(line string) {
	if t.Notes == nil || *t.Notes == "" {
		t.Notes = &line
		return
	}
	joined := *t.Notes + "\n" + line
	t.Notes = &joined
}

// Session maps to the treatment_sessions table.
type Session struct {
	ID                      uuid.UUID     `db:"id" json:"id"`
	TreatmentID             uuid.UUID     `db:"treatment_id" json:"treatment_id"`
	SessionNumber           int           `db:"session_number" json:"session_number"`
	CycleNumber             int           `db:"cycle_number" json:"cycle_number"`
	SessionDate             time.Time     `db:"session_date" json:"session_date"`
	Status                  SessionStatus `db:"status" json:"status"`
	DurationMinutes         *int          `db:"duration_minutes" json:"duration_minutes,omitempty"`
	Location                *string       `db:"location" json:"location,omitempty"`
	MedicationsAdministered StringList    `db:"medications_administered" json:"medications_administered"`
	SideEffects             StringList    `db:"side_effects" json:"side_effects"`
	VitalSigns              VitalSigns    `db:"vital_signs" json:"vital_signs"`
	Notes                   *string       `db:"notes" json:"notes,omitempty"`
	CompletedAt             *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt             *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason      *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt               time.Time     `db:"created_at" json:"created_at"`
}

// Stats summarizes a doctor's caseload. Paused mirrors Suspended; there is
// no separate paused status.
type Stats struct {
	Active               int          `json:"active"`
	Completed            int          `json:"completed"`
	Paused               int          `json:"paused"`
	Suspended            int          `json:"suspended"`
	AverageEffectiveness Percentage   `json:"average_effectiveness"`
	AverageAdherence     Percentage   `json:"average_adherence"`
	ByType               map[Type]int `json:"by_type"`
}
