package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johaanq/oncontrol-backend/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT d.id, d.organization_id, d.specialization, d.license_number,
			p.id, p.profile_code, p.first_name, p.last_name
		FROM doctor_profiles d JOIN profiles p ON p.id = d.profile_id
		WHERE d.id = $1`, id).
		Scan(&d.ID, &d.OrganizationID, &d.Specialization, &d.LicenseNumber,
			&d.Profile.ID, &d.Profile.ProfileCode, &d.Profile.FirstName, &d.Profile.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor %s: %w", id, err)
	}
	return &d, nil
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var pt Patient
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT pp.id, pp.doctor_profile_id, pp.cancer_type, pp.cancer_stage,
			p.id, p.profile_code, p.first_name, p.last_name
		FROM patient_profiles pp JOIN profiles p ON p.id = pp.profile_id
		WHERE pp.id = $1`, id).
		Scan(&pt.ID, &pt.DoctorID, &pt.CancerType, &pt.CancerStage,
			&pt.Profile.ID, &pt.Profile.ProfileCode, &pt.Profile.FirstName, &pt.Profile.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return &pt, nil
}
