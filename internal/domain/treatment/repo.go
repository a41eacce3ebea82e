package treatment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TreatmentRepository interface {
	Create(ctx context.Context, t *Treatment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Treatment, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Treatment, error)
	Update(ctx context.Context, t *Treatment) error
	// ListByDoctor and ListByPatient return only is_active rows.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Treatment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Treatment, error)
	// CurrentByPatient returns the ACTIVE, is_active treatment with the latest start date.
	CurrentByPatient(ctx context.Context, patientID uuid.UUID) (*Treatment, error)
	CountByDoctorAndStatus(ctx context.Context, doctorID uuid.UUID) (map[Status]int, error)
	CountByDoctorAndType(ctx context.Context, doctorID uuid.UUID) (map[Type]int, error)
}

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	CountByTreatmentAndStatus(ctx context.Context, treatmentID uuid.UUID, status SessionStatus) (int, error)
	// ListByTreatment orders by session date, newest first.
	ListByTreatment(ctx context.Context, treatmentID uuid.UUID) ([]*Session, error)
	// ListUpcomingByPatient returns SCHEDULED sessions after the given instant, oldest first.
	ListUpcomingByPatient(ctx context.Context, patientID uuid.UUID, after time.Time) ([]*Session, error)
}
