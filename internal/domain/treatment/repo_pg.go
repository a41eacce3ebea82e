package treatment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/johaanq/oncontrol-backend/internal/platform/db"
)

// =========== Treatment Repository ===========

type treatmentRepoPG struct{ pool *pgxpool.Pool }

func NewTreatmentRepoPG(pool *pgxpool.Pool) TreatmentRepository {
	return &treatmentRepoPG{pool: pool}
}

func (r *treatmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const treatmentCols = `t.id, t.doctor_id, t.patient_id, t.type, t.protocol,
	t.current_cycle, t.total_cycles, t.start_date, t.end_date, t.next_session,
	t.status, t.effectiveness, t.adherence, t.session_duration_minutes, t.location,
	t.medications, t.side_effects, t.notes, t.preparation_instructions, t.is_active,
	t.created_at, t.updated_at,
	COALESCE(dp.first_name || ' ' || dp.last_name, ''),
	COALESCE(pp.first_name || ' ' || pp.last_name, ''),
	COALESCE(pp.profile_code, '')`

const treatmentFrom = ` FROM treatments t
	LEFT JOIN doctor_profiles d ON d.id = t.doctor_id
	LEFT JOIN profiles dp ON dp.id = d.profile_id
	LEFT JOIN patient_profiles p ON p.id = t.patient_id
	LEFT JOIN profiles pp ON pp.id = p.profile_id`

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	var meds, effects string
	var eff, adh decimal.NullDecimal
	err := row.Scan(&t.ID, &t.DoctorID, &t.PatientID, &t.Type, &t.Protocol,
		&t.CurrentCycle, &t.TotalCycles, &t.StartDate, &t.EndDate, &t.NextSession,
		&t.Status, &eff, &adh, &t.SessionDurationMinutes, &t.Location,
		&meds, &effects, &t.Notes, &t.PreparationInstructions, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt,
		&t.DoctorName, &t.PatientName, &t.PatientProfileCode)
	if err != nil {
		return nil, err
	}
	t.Effectiveness = percentageFromNull(eff)
	t.Adherence = percentageFromNull(adh)
	t.Medications = DecodeStringList(meds)
	t.SideEffects = DecodeStringList(effects)
	return &t, nil
}

func (r *treatmentRepoPG) queryTreatments(ctx context.Context, sql string, args ...interface{}) ([]*Treatment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Treatment{}
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *treatmentRepoPG) Create(ctx context.Context, t *Treatment) error {
	t.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatments (id, doctor_id, patient_id, type, protocol,
			current_cycle, total_cycles, start_date, end_date, next_session, status,
			effectiveness, adherence, session_duration_minutes, location,
			medications, side_effects, notes, preparation_instructions, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING created_at, updated_at`,
		t.ID, t.DoctorID, t.PatientID, string(t.Type), t.Protocol,
		t.CurrentCycle, t.TotalCycles, t.StartDate, t.EndDate, t.NextSession, string(t.Status),
		t.Effectiveness.nullDecimal(), t.Adherence.nullDecimal(), t.SessionDurationMinutes, t.Location,
		t.Medications.Encode(), t.SideEffects.Encode(), t.Notes, t.PreparationInstructions, t.IsActive,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return err
}

func (r *treatmentRepoPG) get(ctx context.Context, id uuid.UUID, lock string) (*Treatment, error) {
	t, err := scanTreatment(r.conn(ctx).QueryRow(ctx, `SELECT `+treatmentCols+treatmentFrom+` WHERE t.id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: treatment %s", ErrNotFound, id)
	}
	return t, err
}

func (r *treatmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	return r.get(ctx, id, "")
}

func (r *treatmentRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	return r.get(ctx, id, " FOR UPDATE OF t")
}

func (r *treatmentRepoPG) Update(ctx context.Context, t *Treatment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE treatments SET current_cycle=$2, end_date=$3, next_session=$4, status=$5,
			effectiveness=$6, adherence=$7, location=$8, medications=$9, side_effects=$10,
			notes=$11, preparation_instructions=$12, is_active=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.CurrentCycle, t.EndDate, t.NextSession, string(t.Status),
		t.Effectiveness.nullDecimal(), t.Adherence.nullDecimal(), t.Location,
		t.Medications.Encode(), t.SideEffects.Encode(),
		t.Notes, t.PreparationInstructions, t.IsActive).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: treatment %s", ErrNotFound, t.ID)
	}
	return err
}

func (r *treatmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Treatment, error) {
	return r.queryTreatments(ctx, `SELECT `+treatmentCols+treatmentFrom+`
		WHERE t.doctor_id = $1 AND t.is_active ORDER BY t.start_date DESC, t.created_at DESC`, doctorID)
}

func (r *treatmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Treatment, error) {
	return r.queryTreatments(ctx, `SELECT `+treatmentCols+treatmentFrom+`
		WHERE t.patient_id = $1 AND t.is_active ORDER BY t.start_date DESC, t.created_at DESC`, patientID)
}

func (r *treatmentRepoPG) CurrentByPatient(ctx context.Context, patientID uuid.UUID) (*Treatment, error) {
	t, err := scanTreatment(r.conn(ctx).QueryRow(ctx, `SELECT `+treatmentCols+treatmentFrom+`
		WHERE t.patient_id = $1 AND t.status = $2 AND t.is_active
		ORDER BY t.start_date DESC, t.created_at DESC LIMIT 1`, patientID, string(StatusActive)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active treatment for patient %s", ErrNotFound, patientID)
	}
	return t, err
}

func (r *treatmentRepoPG) CountByDoctorAndStatus(ctx context.Context, doctorID uuid.UUID) (map[Status]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT status, COUNT(*) FROM treatments WHERE doctor_id = $1 GROUP BY status`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[Status(s)] = n
	}
	return counts, rows.Err()
}

func (r *treatmentRepoPG) CountByDoctorAndType(ctx context.Context, doctorID uuid.UUID) (map[Type]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT type, COUNT(*) FROM treatments WHERE doctor_id = $1 GROUP BY type`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Type]int)
	for rows.Next() {
		var tp string
		var n int
		if err := rows.Scan(&tp, &n); err != nil {
			return nil, err
		}
		counts[Type(tp)] = n
	}
	return counts, rows.Err()
}

// =========== Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

func (r *sessionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const sessionCols = `s.id, s.treatment_id, s.session_number, s.cycle_number, s.session_date,
	s.status, s.duration_minutes, s.location, s.medications_administered, s.side_effects,
	s.vital_signs, s.notes, s.completed_at, s.cancelled_at, s.cancellation_reason, s.created_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var meds, effects, vitals string
	err := row.Scan(&s.ID, &s.TreatmentID, &s.SessionNumber, &s.CycleNumber, &s.SessionDate,
		&s.Status, &s.DurationMinutes, &s.Location, &meds, &effects,
		&vitals, &s.Notes, &s.CompletedAt, &s.CancelledAt, &s.CancellationReason, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.MedicationsAdministered = DecodeStringList(meds)
	s.SideEffects = DecodeStringList(effects)
	s.VitalSigns = DecodeVitalSigns(vitals)
	return &s, nil
}

func (r *sessionRepoPG) querySessions(ctx context.Context, sql string, args ...interface{}) ([]*Session, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatment_sessions (id, treatment_id, session_number, cycle_number,
			session_date, status, duration_minutes, location, medications_administered,
			side_effects, vital_signs, notes, completed_at, cancelled_at, cancellation_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at`,
		s.ID, s.TreatmentID, s.SessionNumber, s.CycleNumber,
		s.SessionDate, string(s.Status), s.DurationMinutes, s.Location, s.MedicationsAdministered.Encode(),
		s.SideEffects.Encode(), s.VitalSigns.Encode(), s.Notes, s.CompletedAt, s.CancelledAt, s.CancellationReason,
	).Scan(&s.CreatedAt)
}

func (r *sessionRepoPG) CountByTreatmentAndStatus(ctx context.Context, treatmentID uuid.UUID, status SessionStatus) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM treatment_sessions WHERE treatment_id = $1 AND status = $2`,
		treatmentID, string(status)).Scan(&n)
	return n, err
}

func (r *sessionRepoPG) ListByTreatment(ctx context.Context, treatmentID uuid.UUID) ([]*Session, error) {
	return r.querySessions(ctx, `SELECT `+sessionCols+` FROM treatment_sessions s
		WHERE s.treatment_id = $1 ORDER BY s.session_date DESC, s.session_number DESC`, treatmentID)
}

func (r *sessionRepoPG) ListUpcomingByPatient(ctx context.Context, patientID uuid.UUID, after time.Time) ([]*Session, error) {
	return r.querySessions(ctx, `SELECT `+sessionCols+` FROM treatment_sessions s
		JOIN treatments t ON t.id = s.treatment_id
		WHERE t.patient_id = $1 AND s.status = $2 AND s.session_date > $3
		ORDER BY s.session_date ASC`, patientID, string(SessionScheduled), after)
}
