package treatment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCreateTreatment(t *testing.T) {
	f := newFixture()
	svc := f.service()

	in := f.createInput(6)
	in.Location = ptr("Oncology ward B")
	in.SessionDurationMinutes = ptr(90)

	tr, err := svc.CreateTreatment(context.Background(), f.doctorID, f.patientID, in)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, tr.ID)
	assert.Equal(t, 1, tr.CurrentCycle)
	assert.Equal(t, 6, tr.TotalCycles)
	assert.Equal(t, StatusActive, tr.Status)
	assert.True(t, tr.IsActive)
	assert.Equal(t, StringList{"oxaliplatin", "5-FU"}, tr.Medications)
	assert.Equal(t, StringList{}, tr.SideEffects)
	assert.Equal(t, "Lucia Ramos", tr.DoctorName)
	assert.Equal(t, "Jorge Huaman", tr.PatientName)
	assert.Equal(t, "PAT-0001", tr.PatientProfileCode)
	assert.Equal(t, 16, tr.ProgressPercentage())

	stored := f.store.treatment(tr.ID)
	assert.Equal(t, 1, stored.CurrentCycle)
}

func TestCreateTreatment_EmptyMedications(t *testing.T) {
	f := newFixture()
	in := f.createInput(3)
	in.Medications = nil

	tr, err := f.service().CreateTreatment(context.Background(), f.doctorID, f.patientID, in)
	require.NoError(t, err)
	assert.Equal(t, StringList{}, tr.Medications)
}

func TestCreateTreatment_Validation(t *testing.T) {
	f := newFixture()
	svc := f.service()

	tests := []struct {
		name   string
		mutate func(*CreateTreatmentInput)
	}{
		{"zero cycles", func(in *CreateTreatmentInput) { in.TotalCycles = 0 }},
		{"negative cycles", func(in *CreateTreatmentInput) { in.TotalCycles = -2 }},
		{"unknown type", func(in *CreateTreatmentInput) { in.Type = "ACUPUNCTURE" }},
		{"blank protocol", func(in *CreateTreatmentInput) { in.Protocol = "  " }},
		{"missing start date", func(in *CreateTreatmentInput) { in.StartDate = Date{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.createInput(4)
			tt.mutate(&in)
			_, err := svc.CreateTreatment(context.Background(), f.doctorID, f.patientID, in)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
	assert.Empty(t, f.store.treatments)
}

func TestCreateTreatment_UnknownProfiles(t *testing.T) {
	f := newFixture()
	svc := f.service()

	_, err := svc.CreateTreatment(context.Background(), uuid.New(), f.patientID, f.createInput(3))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "doctor")

	_, err = svc.CreateTreatment(context.Background(), f.doctorID, uuid.New(), f.createInput(3))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "patient")

	assert.Empty(t, f.store.treatments)
}

func TestGetTreatment_NotFound(t *testing.T) {
	_, err := newFixture().service().GetTreatment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByDoctorAndPatient_ActiveOnly(t *testing.T) {
	f := newFixture()
	svc := f.service()
	ctx := context.Background()

	kept, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, f.createInput(3))
	require.NoError(t, err)
	dropped, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, f.createInput(3))
	require.NoError(t, err)
	_, err = svc.DiscontinueTreatment(ctx, dropped.ID, "")
	require.NoError(t, err)

	byDoctor, err := svc.ListByDoctor(ctx, f.doctorID)
	require.NoError(t, err)
	require.Len(t, byDoctor, 1)
	assert.Equal(t, kept.ID, byDoctor[0].ID)

	byPatient, err := svc.ListByPatient(ctx, f.patientID)
	require.NoError(t, err)
	require.Len(t, byPatient, 1)

	none, err := svc.ListByPatient(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCurrentForPatient(t *testing.T) {
	f := newFixture()
	svc := f.service()
	ctx := context.Background()

	_, err := svc.CurrentForPatient(ctx, f.patientID)
	assert.ErrorIs(t, err, ErrNotFound)

	older := f.createInput(3)
	older.StartDate = NewDate(2024, time.June, 1)
	_, err = svc.CreateTreatment(ctx, f.doctorID, f.patientID, older)
	require.NoError(t, err)

	newer := f.createInput(3)
	newer.StartDate = NewDate(2025, time.February, 1)
	latest, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, newer)
	require.NoError(t, err)

	cur, err := svc.CurrentForPatient(ctx, f.patientID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, cur.ID)

	_, err = svc.UpdateStatus(ctx, latest.ID, StatusSuspended, nil)
	require.NoError(t, err)
	cur, err = svc.CurrentForPatient(ctx, f.patientID)
	require.NoError(t, err)
	assert.NotEqual(t, latest.ID, cur.ID)
}

func TestUpdateTreatment_Partial(t *testing.T) {
	f := newFixture()
	svc := f.service()
	ctx := context.Background()

	in := f.createInput(6)
	in.Location = ptr("Room 4")
	in.Notes = ptr("baseline")
	tr, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, in)
	require.NoError(t, err)

	updated, err := svc.UpdateTreatment(ctx, tr.ID, UpdateTreatmentInput{
		CurrentCycle:  ptr(4),
		Effectiveness: &Percentage{Decimal: decimal.RequireFromString("75.456")},
		SideEffects:   StringList{"nausea", "nausea", "fatigue"},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, updated.CurrentCycle)
	assert.Equal(t, "75.46", updated.Effectiveness.StringFixed(2))
	assert.Equal(t, StringList{"nausea", "fatigue"}, updated.SideEffects)
	assert.Equal(t, "Room 4", *updated.Location)
	assert.Equal(t, "baseline", *updated.Notes)
	assert.Equal(t, StringList{"oxaliplatin", "5-FU"}, updated.Medications)
	assert.Nil(t, updated.Adherence)
	assert.Equal(t, StatusActive, updated.Status)

	cleared, err := svc.UpdateTreatment(ctx, tr.ID, UpdateTreatmentInput{Medications: StringList{}})
	require.NoError(t, err)
	assert.Equal(t, StringList{}, cleared.Medications)
	assert.Equal(t, 4, cleared.CurrentCycle)
}

func TestUpdateTreatment_Validation(t *testing.T) {
	f := newFixture()
	svc := f.service()
	ctx := context.Background()

	tr, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, f.createInput(3))
	require.NoError(t, err)

	tests := []struct {
		name string
		in   UpdateTreatmentInput
	}{
		{"cycle zero", UpdateTreatmentInput{CurrentCycle: ptr(0)}},
		{"cycle beyond total", UpdateTreatmentInput{CurrentCycle: ptr(4)}},
		{"unknown status", UpdateTreatmentInput{Status: ptr(Status("PAUSED"))}},
		{"effectiveness over 100", UpdateTreatmentInput{Effectiveness: &Percentage{Decimal: decimal.NewFromInt(101)}}},
		{"negative adherence", UpdateTreatmentInput{Adherence: &Percentage{Decimal: decimal.NewFromInt(-5)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateTreatment(ctx, tr.ID, tt.in)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	stored := f.store.treatment(tr.ID)
	assert.Equal(t, 1, stored.CurrentCycle)
	assert.Equal(t, StatusActive, stored.Status)

	_, err = svc.UpdateTreatment(ctx, uuid.New(), UpdateTreatmentInput{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_AppendsReason(t *testing.T) {
	f := newFixture()
	svc := f.service()
	ctx := context.Background()

	in := f.createInput(3)
	in.Notes = ptr("Started on FOLFOX")
	tr, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, in)
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, tr.ID, StatusSuspended, ptr("neutropenia"))
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, got.Status)
	assert.Equal(t, "Started on FOLFOX\nStatus changed to SUSPENDED: neutropenia", *got.Notes)

	got, err = svc.UpdateStatus(ctx, tr.ID, StatusActive, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, "Started on FOLFOX\nStatus changed to SUSPENDED: neutropenia", *got.Notes)
}

func TestUpdateStatus_BlankReasonIsRecorded(t *testing.T) {
	f := newFixture()
	svc := f.service()
	ctx := context.Background()

	tr, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, f.createInput(3))
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, tr.ID, StatusFollowUp, ptr(""))
	require.NoError(t, err)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "Status changed to FOLLOW_UP: ", *got.Notes)

	got, err = svc.UpdateStatus(ctx, tr.ID, StatusActive, nil)
	require.NoError(t, err)
	assert.Equal(t, "Status changed to FOLLOW_UP: ", *got.Notes)
}

func TestUpdateStatus_EmptyNotes(t *testing.T) {
	f := newFixture()
	svc := f.service()
	ctx := context.Background()

	tr, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, f.createInput(3))
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, tr.ID, StatusCancelled, ptr("patient request"))
	require.NoError(t, err)
	assert.Equal(t, "Status changed to CANCELLED: patient request", *got.Notes)
}

func TestUpdateStatus_NoTransitionRules(t *testing.T) {
	f := newFixture()
	svc := f.service()
	ctx := context.Background()

	tr, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, f.createInput(1))
	require.NoError(t, err)

	for _, s := range []Status{StatusCompleted, StatusActive, StatusCancelled, StatusFollowUp, StatusActive} {
		got, err := svc.UpdateStatus(ctx, tr.ID, s, nil)
		require.NoError(t, err)
		assert.Equal(t, s, got.Status)
	}

	_, err = svc.UpdateStatus(ctx, tr.ID, "PAUSED", ptr("x"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.UpdateStatus(ctx, uuid.New(), StatusActive, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiscontinueTreatment(t *testing.T) {
	f := newFixture()
	svc := f.service()
	ctx := context.Background()

	tr, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, f.createInput(3))
	require.NoError(t, err)

	got, err := svc.DiscontinueTreatment(ctx, tr.ID, "moved to palliative care")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), *got.EndDate)
	assert.Equal(t, "Discontinued: moved to palliative care", *got.Notes)

	byID, err := svc.GetTreatment(ctx, tr.ID)
	require.NoError(t, err)
	assert.False(t, byID.IsActive)

	_, err = svc.DiscontinueTreatment(ctx, tr.ID, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMutate_RollsBackOnUpdateFailure(t *testing.T) {
	f := newFixture()
	svc := f.service()
	ctx := context.Background()

	tr, err := svc.CreateTreatment(ctx, f.doctorID, f.patientID, f.createInput(3))
	require.NoError(t, err)

	boom := errors.New("connection reset")
	f.store.failUpdate = boom
	_, err = svc.UpdateStatus(ctx, tr.ID, StatusSuspended, ptr("hold"))
	require.ErrorIs(t, err, boom)

	stored := f.store.treatment(tr.ID)
	assert.Equal(t, StatusActive, stored.Status)
	assert.Nil(t, stored.Notes)
}
