package treatment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/johaanq/oncontrol-backend/internal/domain/profile"
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProfileLookup resolves the doctor and patient a treatment belongs to.
type ProfileLookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*profile.Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*profile.Patient, error)
}

type Service struct {
	treatments TreatmentRepository
	sessions   SessionRepository
	profiles   ProfileLookup
	tx         TxRunner

	cache    StatsCache
	cacheTTL time.Duration
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time

	// serializeSessions locks the treatment row while a session is registered.
	serializeSessions bool
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l.With().Str("component", "treatment").Logger() }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSessionSerialization makes concurrent registrations against the same
// treatment run one after another. Without it two registrations can observe
// the same completed count and receive the same session number.
func WithSessionSerialization(on bool) Option {
	return func(s *Service) { s.serializeSessions = on }
}

func NewService(treatments TreatmentRepository, sessions SessionRepository, profiles ProfileLookup, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		treatments: treatments,
		sessions:   sessions,
		profiles:   profiles,
		tx:         tx,
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Inputs --

type CreateTreatmentInput struct {
	Type                    Type       `json:"type"`
	Protocol                string     `json:"protocol"`
	TotalCycles             int        `json:"total_cycles"`
	StartDate               Date       `json:"start_date"`
	EndDate                 *Date      `json:"end_date"`
	NextSession             *time.Time `json:"next_session"`
	SessionDurationMinutes  *int       `json:"session_duration_minutes"`
	Location                *string    `json:"location"`
	Medications             StringList `json:"medications"`
	Notes                   *string    `json:"notes"`
	PreparationInstructions *string    `json:"preparation_instructions"`
}

// UpdateTreatmentInput carries a partial update. Nil fields are left alone;
// non-nil lists replace the stored list.
type UpdateTreatmentInput struct {
	CurrentCycle            *int        `json:"current_cycle"`
	EndDate                 *Date       `json:"end_date"`
	NextSession             *time.Time  `json:"next_session"`
	Status                  *Status     `json:"status"`
	Effectiveness           *Percentage `json:"effectiveness"`
	Adherence               *Percentage `json:"adherence"`
	Location                *string     `json:"location"`
	Medications             StringList  `json:"medications"`
	SideEffects             StringList  `json:"side_effects"`
	Notes                   *string     `json:"notes"`
	PreparationInstructions *string     `json:"preparation_instructions"`
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// -- Lifecycle --

func (s *Service) CreateTreatment(ctx context.Context, doctorID, patientID uuid.UUID, in CreateTreatmentInput) (*Treatment, error) {
	if in.TotalCycles <= 0 {
		return nil, invalid("total_cycles must be positive")
	}
	if !in.Type.Valid() {
		return nil, invalid("unknown treatment type %q", in.Type)
	}
	if strings.TrimSpace(in.Protocol) == "" {
		return nil, invalid("protocol is required")
	}
	if in.StartDate.IsZero() {
		return nil, invalid("start_date is required")
	}

	doctor, err := s.profiles.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, lookupError("doctor", doctorID, err)
	}
	patient, err := s.profiles.GetPatient(ctx, patientID)
	if err != nil {
		return nil, lookupError("patient", patientID, err)
	}

	meds := in.Medications
	if meds == nil {
		meds = StringList{}
	}
	t := &Treatment{
		DoctorID:                doctorID,
		PatientID:               patientID,
		DoctorName:              doctor.Profile.FullName(),
		PatientName:             patient.Profile.FullName(),
		PatientProfileCode:      patient.Profile.ProfileCode,
		Type:                    in.Type,
		Protocol:                in.Protocol,
		CurrentCycle:            1,
		TotalCycles:             in.TotalCycles,
		StartDate:               in.StartDate.Time,
		EndDate:                 in.EndDate.ptr(),
		NextSession:             in.NextSession,
		Status:                  StatusActive,
		SessionDurationMinutes:  in.SessionDurationMinutes,
		Location:                in.Location,
		Medications:             meds,
		SideEffects:             StringList{},
		Notes:                   in.Notes,
		PreparationInstructions: in.PreparationInstructions,
		IsActive:                true,
	}
	if err := s.treatments.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create treatment: %w", err)
	}

	s.metrics.treatmentCreated(t.Type)
	s.invalidateStats(ctx, doctorID)
	s.logger.Info().
		Str("treatment_id", t.ID.String()).
		Str("doctor_id", doctorID.String()).
		Str("patient_id", patientID.String()).
		Str("type", string(t.Type)).
		Msg("treatment created")
	return t, nil
}

func lookupError(kind string, id uuid.UUID, err error) error {
	if errors.Is(err, profile.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return fmt.Errorf("lookup %s %s: %w", kind, id, err)
}

func (s *Service) GetTreatment(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	return s.treatments.GetByID(ctx, id)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Treatment, error) {
	return nonNil(s.treatments.ListByDoctor(ctx, doctorID))
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Treatment, error) {
	return nonNil(s.treatments.ListByPatient(ctx, patientID))
}

func nonNil[T any](items []T, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// CurrentForPatient returns the patient's most recently started active treatment.
func (s *Service) CurrentForPatient(ctx context.Context, patientID uuid.UUID) (*Treatment, error) {
	return s.treatments.CurrentByPatient(ctx, patientID)
}

// mutate loads a treatment, applies fn and persists the result in one transaction.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(t *Treatment) error) (*Treatment, error) {
	var out *Treatment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.treatments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		if err := s.treatments.Update(ctx, t); err != nil {
			return fmt.Errorf("update treatment %s: %w", id, err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, out.DoctorID)
	return out, nil
}

func (s *Service) UpdateTreatment(ctx context.Context, id uuid.UUID, in UpdateTreatmentInput) (*Treatment, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, invalid("unknown status %q", *in.Status)
	}
	if in.Effectiveness != nil && !in.Effectiveness.inRange() {
		return nil, invalid("effectiveness must be between 0 and 100")
	}
	if in.Adherence != nil && !in.Adherence.inRange() {
		return nil, invalid("adherence must be between 0 and 100")
	}

	return s.mutate(ctx, id, func(t *Treatment) error {
		if in.CurrentCycle != nil {
			if *in.CurrentCycle < 1 || *in.CurrentCycle > t.TotalCycles {
				return invalid("current_cycle must be between 1 and %d", t.TotalCycles)
			}
			t.CurrentCycle = *in.CurrentCycle
		}
		if in.EndDate != nil {
			t.EndDate = in.EndDate.ptr()
		}
		if in.NextSession != nil {
			t.NextSession = in.NextSession
		}
		if in.Status != nil {
			t.Status = *in.Status
		}
		if in.Effectiveness != nil {
			t.Effectiveness = NewPercentage(in.Effectiveness.Decimal)
		}
		if in.Adherence != nil {
			t.Adherence = NewPercentage(in.Adherence.Decimal)
		}
		if in.Location != nil {
			t.Location = in.Location
		}
		if in.Medications != nil {
			t.Medications = in.Medications
		}
		if in.SideEffects != nil {
			t.SideEffects = in.SideEffects.Dedupe()
		}
		if in.Notes != nil {
			t.Notes = in.Notes
		}
		if in.PreparationInstructions != nil {
			t.PreparationInstructions = in.PreparationInstructions
		}
		return nil
	})
}

// UpdateStatus overwrites the status without a transition check. A supplied
// reason, even an empty one, is appended to the notes.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, reason *string) (*Treatment, error) {
	if !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	t, err := s.mutate(ctx, id, func(t *Treatment) error {
		t.Status = status
		if reason != nil {
			t.appendNote(fmt.Sprintf("Status changed to %s: %s", status, *reason))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.statusChanged(status)
	s.logger.Info().
		Str("treatment_id", id.String()).
		Str("status", string(status)).
		Msg("treatment status changed")
	return t, nil
}

// DiscontinueTreatment soft-deletes a treatment: it leaves doctor and patient
// listings but stays readable by id.
func (s *Service) DiscontinueTreatment(ctx context.Context, id uuid.UUID, reason string) (*Treatment, error) {
	t, err := s.mutate(ctx, id, func(t *Treatment) error {
		if !t.IsActive {
			return invalid("treatment %s is already discontinued", id)
		}
		today := s.now().UTC().Truncate(24 * time.Hour)
		t.IsActive = false
		t.EndDate = &today
		if r := strings.TrimSpace(reason); r != "" {
			t.appendNote("Discontinued: " + r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("treatment_id", id.String()).Msg("treatment discontinued")
	return t, nil
}
