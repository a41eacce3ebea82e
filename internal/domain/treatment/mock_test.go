package treatment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johaanq/oncontrol-backend/internal/domain/profile"
)

// -- In-memory store --

// memStore backs both mock repositories. Rows are copied in and out so that
// callers never share pointers with stored state, as with a real database.
type memStore struct {
	mu         sync.Mutex
	treatments map[uuid.UUID]Treatment
	sessions   map[uuid.UUID]Session
	rowLocks   map[uuid.UUID]*sync.Mutex

	// failUpdate, when set, is returned by the next treatment Update.
	failUpdate error
	// beforeCount runs inside CountByTreatmentAndStatus before counting.
	beforeCount func()
	// beforeListByDoctor runs once at the start of the next ListByDoctor.
	beforeListByDoctor func()
}

func newMemStore() *memStore {
	return &memStore{
		treatments: make(map[uuid.UUID]Treatment),
		sessions:   make(map[uuid.UUID]Session),
		rowLocks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *memStore) snapshot() (map[uuid.UUID]Treatment, map[uuid.UUID]Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := make(map[uuid.UUID]Treatment, len(m.treatments))
	for k, v := range m.treatments {
		ts[k] = cloneTreatment(v)
	}
	ss := make(map[uuid.UUID]Session, len(m.sessions))
	for k, v := range m.sessions {
		ss[k] = v
	}
	return ts, ss
}

func (m *memStore) restore(ts map[uuid.UUID]Treatment, ss map[uuid.UUID]Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.treatments = ts
	m.sessions = ss
}

func cloneTreatment(t Treatment) Treatment {
	t.Medications = append(StringList(nil), t.Medications...)
	t.SideEffects = append(StringList(nil), t.SideEffects...)
	if t.Medications == nil {
		t.Medications = StringList{}
	}
	if t.SideEffects == nil {
		t.SideEffects = StringList{}
	}
	return t
}

func (m *memStore) put(t *Treatment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.treatments[t.ID] = cloneTreatment(*t)
}

func (m *memStore) treatment(id uuid.UUID) Treatment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTreatment(m.treatments[id])
}

func (m *memStore) sessionsOf(id uuid.UUID) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.TreatmentID == id {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// -- Mock transaction runner --

type txState struct {
	unlocks []func()
}

type txKey struct{}

type mockTxRunner struct {
	store *memStore
}

// WithinTx restores the store snapshot if fn fails. Tests that exercise
// rollback run single-threaded, so the snapshot cannot drop other writes.
func (r *mockTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}
	st := &txState{}
	ts, ss := r.store.snapshot()
	err := fn(context.WithValue(ctx, txKey{}, st))
	if err != nil {
		r.store.restore(ts, ss)
	}
	for i := len(st.unlocks) - 1; i >= 0; i-- {
		st.unlocks[i]()
	}
	return err
}

// -- Mock repositories --

type mockTreatmentRepo struct{ store *memStore }

func (r *mockTreatmentRepo) Create(_ context.Context, t *Treatment) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.store.put(t)
	return nil
}

func (r *mockTreatmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Treatment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.treatments[id]
	if !ok {
		return nil, fmt.Errorf("%w: treatment %s", ErrNotFound, id)
	}
	c := cloneTreatment(t)
	return &c, nil
}

func (r *mockTreatmentRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	st, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return nil, errors.New("row lock outside transaction")
	}
	r.store.mu.Lock()
	lock, ok := r.store.rowLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.store.rowLocks[id] = lock
	}
	r.store.mu.Unlock()

	lock.Lock()
	st.unlocks = append(st.unlocks, lock.Unlock)
	return r.GetByID(ctx, id)
}

func (r *mockTreatmentRepo) Update(_ context.Context, t *Treatment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.failUpdate; err != nil {
		r.store.failUpdate = nil
		return err
	}
	if _, ok := r.store.treatments[t.ID]; !ok {
		return fmt.Errorf("%w: treatment %s", ErrNotFound, t.ID)
	}
	t.UpdatedAt = time.Now()
	r.store.treatments[t.ID] = cloneTreatment(*t)
	return nil
}

func (r *mockTreatmentRepo) list(match func(Treatment) bool) []*Treatment {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*Treatment
	for _, t := range r.store.treatments {
		if match(t) {
			c := cloneTreatment(t)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out
}

func (r *mockTreatmentRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*Treatment, error) {
	if hook := r.store.beforeListByDoctor; hook != nil {
		r.store.beforeListByDoctor = nil
		hook()
	}
	return r.list(func(t Treatment) bool { return t.DoctorID == doctorID && t.IsActive }), nil
}

func (r *mockTreatmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Treatment, error) {
	return r.list(func(t Treatment) bool { return t.PatientID == patientID && t.IsActive }), nil
}

func (r *mockTreatmentRepo) CurrentByPatient(_ context.Context, patientID uuid.UUID) (*Treatment, error) {
	items := r.list(func(t Treatment) bool {
		return t.PatientID == patientID && t.IsActive && t.Status == StatusActive
	})
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no active treatment for patient %s", ErrNotFound, patientID)
	}
	return items[0], nil
}

func (r *mockTreatmentRepo) CountByDoctorAndStatus(_ context.Context, doctorID uuid.UUID) (map[Status]int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make(map[Status]int)
	for _, t := range r.store.treatments {
		if t.DoctorID == doctorID {
			out[t.Status]++
		}
	}
	return out, nil
}

func (r *mockTreatmentRepo) CountByDoctorAndType(_ context.Context, doctorID uuid.UUID) (map[Type]int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make(map[Type]int)
	for _, t := range r.store.treatments {
		if t.DoctorID == doctorID {
			out[t.Type]++
		}
	}
	return out, nil
}

type mockSessionRepo struct{ store *memStore }

func (r *mockSessionRepo) Create(_ context.Context, s *Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s.ID = uuid.New()
	// Strictly increasing creation times keep insertion order observable.
	s.CreatedAt = time.Now().Add(time.Duration(len(r.store.sessions)) * time.Microsecond)
	r.store.sessions[s.ID] = *s
	return nil
}

func (r *mockSessionRepo) CountByTreatmentAndStatus(_ context.Context, treatmentID uuid.UUID, status SessionStatus) (int, error) {
	if r.store.beforeCount != nil {
		r.store.beforeCount()
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for _, s := range r.store.sessions {
		if s.TreatmentID == treatmentID && s.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *mockSessionRepo) ListByTreatment(_ context.Context, treatmentID uuid.UUID) ([]*Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*Session
	for _, s := range r.store.sessions {
		if s.TreatmentID == treatmentID {
			c := s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionDate.After(out[j].SessionDate) })
	return out, nil
}

func (r *mockSessionRepo) ListUpcomingByPatient(_ context.Context, patientID uuid.UUID, after time.Time) ([]*Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*Session
	for _, s := range r.store.sessions {
		t, ok := r.store.treatments[s.TreatmentID]
		if !ok || t.PatientID != patientID {
			continue
		}
		if s.Status == SessionScheduled && s.SessionDate.After(after) {
			c := s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionDate.Before(out[j].SessionDate) })
	return out, nil
}

// -- Profiles --

type mockProfiles struct {
	doctors  map[uuid.UUID]*profile.Doctor
	patients map[uuid.UUID]*profile.Patient
}

func (m *mockProfiles) GetDoctor(_ context.Context, id uuid.UUID) (*profile.Doctor, error) {
	if d, ok := m.doctors[id]; ok {
		return d, nil
	}
	return nil, profile.ErrNotFound
}

func (m *mockProfiles) GetPatient(_ context.Context, id uuid.UUID) (*profile.Patient, error) {
	if p, ok := m.patients[id]; ok {
		return p, nil
	}
	return nil, profile.ErrNotFound
}

// -- Stats cache --

type memCache struct {
	mu       sync.Mutex
	entries  map[string][]byte
	counters map[string]int64
	gets     int
	failGet  error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte), counters: make(map[string]int64)}
}

func (c *memCache) GetJSON(_ context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet != nil {
		return false, c.failGet
	}
	b, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) SetJSON(_ context.Context, key string, v interface{}, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = b
	return nil
}

func (c *memCache) Counter(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key], nil
}

func (c *memCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

func (c *memCache) generation(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[generationKey(key)]
}

// -- Fixture --

type fixture struct {
	store     *memStore
	profiles  *mockProfiles
	doctorID  uuid.UUID
	patientID uuid.UUID
	now       time.Time
}

func newFixture() *fixture {
	doctorID, patientID := uuid.New(), uuid.New()
	return &fixture{
		store: newMemStore(),
		profiles: &mockProfiles{
			doctors: map[uuid.UUID]*profile.Doctor{
				doctorID: {ID: doctorID, Profile: profile.Profile{ProfileCode: "DOC-0001", FirstName: "Lucia", LastName: "Ramos"}},
			},
			patients: map[uuid.UUID]*profile.Patient{
				patientID: {ID: patientID, Profile: profile.Profile{ProfileCode: "PAT-0001", FirstName: "Jorge", LastName: "Huaman"}},
			},
		},
		doctorID:  doctorID,
		patientID: patientID,
		now:       time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) service(opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	return NewService(
		&mockTreatmentRepo{store: f.store},
		&mockSessionRepo{store: f.store},
		f.profiles,
		&mockTxRunner{store: f.store},
		opts...,
	)
}

func (f *fixture) createInput(totalCycles int) CreateTreatmentInput {
	return CreateTreatmentInput{
		Type:        TypeChemotherapy,
		Protocol:    "FOLFOX",
		TotalCycles: totalCycles,
		StartDate:   NewDate(2025, time.January, 6),
		Medications: StringList{"oxaliplatin", "5-FU"},
	}
}
