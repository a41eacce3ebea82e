// Package profile resolves the doctors and patients that treatments refer to.
// Profiles are created and maintained elsewhere; this package only reads them.
package profile

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("profile not found")

// Profile holds the identity fields shared by doctors and patients.
type Profile struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ProfileCode string    `db:"profile_code" json:"profile_code"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
}

func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Doctor maps to doctor_profiles joined with profiles.
type Doctor struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Profile        Profile   `json:"profile"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Specialization string    `db:"specialization" json:"specialization"`
	LicenseNumber  string    `db:"license_number" json:"license_number"`
}

// Patient maps to patient_profiles joined with profiles.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Profile     Profile    `json:"profile"`
	DoctorID    *uuid.UUID `db:"doctor_profile_id" json:"doctor_id,omitempty"`
	CancerType  *string    `db:"cancer_type" json:"cancer_type,omitempty"`
	CancerStage *string    `db:"cancer_stage" json:"cancer_stage,omitempty"`
}

type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}
