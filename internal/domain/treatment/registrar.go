package treatment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RegisterSessionInput struct {
	CycleNumber             int        `json:"cycle_number"`
	SessionDate             time.Time  `json:"session_date"`
	MedicationsAdministered StringList `json:"medications_administered"`
	SideEffects             StringList `json:"side_effects"`
	VitalSigns              VitalSigns `json:"vital_signs"`
	Notes                   *string    `json:"notes"`
}

// sessionOutcome records what a registered session did to its treatment.
type sessionOutcome struct {
	advanced     bool
	completed    bool
	effectsAdded bool
}

func (o sessionOutcome) changed() bool {
	return o.advanced || o.effectsAdded
}

func (o sessionOutcome) label() string {
	switch {
	case o.completed:
		return "completed"
	case o.advanced:
		return "advanced"
	default:
		return "unchanged"
	}
}

// applySession folds a completed session into its treatment. The cycle only
// moves forward and never past total_cycles; reaching the final cycle marks
// the treatment COMPLETED. Reported side effects join the treatment's set.
func applySession(t *Treatment, cycle int, sideEffects []string) sessionOutcome {
	var out sessionOutcome

	next := cycle
	if next > t.TotalCycles {
		next = t.TotalCycles
	}
	if next > t.CurrentCycle {
		t.CurrentCycle = next
		out.advanced = true
		if t.CurrentCycle == t.TotalCycles && t.Status != StatusCompleted {
			t.Status = StatusCompleted
			out.completed = true
		}
	}

	t.SideEffects, out.effectsAdded = t.SideEffects.Union(sideEffects...)
	return out
}

// RegisterSession records a completed session and advances the treatment.
// The session number is the count of completed sessions plus one; unless
// session serialization is enabled, concurrent calls for one treatment can
// be assigned the same number.
func (s *Service) RegisterSession(ctx context.Context, treatmentID uuid.UUID, in RegisterSessionInput) (*Session, error) {
	if in.CycleNumber <= 0 {
		return nil, invalid("cycle_number must be positive")
	}
	if in.SessionDate.IsZero() {
		return nil, invalid("session_date is required")
	}

	load := s.treatments.GetByID
	if s.serializeSessions {
		load = s.treatments.GetByIDForUpdate
	}

	var (
		session *Session
		outcome sessionOutcome
		t       *Treatment
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = load(ctx, treatmentID)
		if err != nil {
			return err
		}

		completed, err := s.sessions.CountByTreatmentAndStatus(ctx, treatmentID, SessionCompleted)
		if err != nil {
			return fmt.Errorf("count sessions: %w", err)
		}

		now := s.now()
		session = &Session{
			TreatmentID:             treatmentID,
			SessionNumber:           completed + 1,
			CycleNumber:             in.CycleNumber,
			SessionDate:             in.SessionDate,
			Status:                  SessionCompleted,
			DurationMinutes:         t.SessionDurationMinutes,
			Location:                t.Location,
			MedicationsAdministered: orEmpty(in.MedicationsAdministered),
			SideEffects:             orEmpty(in.SideEffects),
			VitalSigns:              in.VitalSigns,
			Notes:                   in.Notes,
			CompletedAt:             &now,
		}
		if session.VitalSigns == nil {
			session.VitalSigns = VitalSigns{}
		}
		if err := s.sessions.Create(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		outcome = applySession(t, in.CycleNumber, in.SideEffects)
		if !outcome.changed() {
			return nil
		}
		if err := s.treatments.Update(ctx, t); err != nil {
			return fmt.Errorf("update treatment %s: %w", treatmentID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.changed() {
		s.invalidateStats(ctx, t.DoctorID)
	}
	s.metrics.sessionRegistered(outcome.label())
	s.logger.Info().
		Str("treatment_id", treatmentID.String()).
		Int("session_number", session.SessionNumber).
		Int("cycle_number", session.CycleNumber).
		Int("current_cycle", t.CurrentCycle).
		Str("outcome", outcome.label()).
		Msg("treatment session registered")
	return session, nil
}

func orEmpty(l StringList) StringList {
	if l == nil {
		return StringList{}
	}
	return l
}

func (s *Service) ListSessions(ctx context.Context, treatmentID uuid.UUID) ([]*Session, error) {
	return nonNil(s.sessions.ListByTreatment(ctx, treatmentID))
}

// UpcomingSessions lists the patient's scheduled sessions that are still ahead.
func (s *Service) UpcomingSessions(ctx context.Context, patientID uuid.UUID) ([]*Session, error) {
	return nonNil(s.sessions.ListUpcomingByPatient(ctx, patientID, s.now()))
}
