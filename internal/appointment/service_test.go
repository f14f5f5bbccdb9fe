package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-booking/internal/auth"
	"github.com/hackgods/telehealth-booking/internal/metrics"
	redisclient "github.com/hackgods/telehealth-booking/internal/redis"
	"github.com/hackgods/telehealth-booking/internal/status"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type fixture struct {
	repo    *memRepo
	queue   *fakeQueue
	svc     *Service
	doctor  auth.Actor
	patient auth.Actor
	admin   auth.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemRepo()
	queue := &fakeQueue{}
	svc := NewService(repo, fakeResolver{}, redisclient.NoopLocker{}, queue, zap.NewNop(), metrics.NewNop())
	svc.now = func() time.Time { return testNow }

	return &fixture{
		repo:    repo,
		queue:   queue,
		svc:     svc,
		doctor:  auth.Actor{UserID: uuid.New(), Role: auth.RoleDoctor},
		patient: auth.Actor{UserID: uuid.New(), Role: auth.RolePatient},
		admin:   auth.Actor{UserID: uuid.New(), Role: auth.RoleAdmin},
	}
}

func (f *fixture) book(t *testing.T, start time.Time) *Appointment {
	t.Helper()
	slot := f.repo.addSlot(f.doctor.UserID, start, 30*time.Minute)
	appt, err := f.svc.CreateForPatient(context.Background(), f.patient, CreateAppointmentInput{
		DoctorID: f.doctor.UserID,
		SlotID:   slot.ID,
	})
	require.NoError(t, err)
	return appt
}

func (f *fixture) setStatus(t *testing.T, id uuid.UUID, code status.Code) {
	t.Helper()
	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	a := f.repo.appts[id]
	a.Status = code
	a.StatusID = testStatusIDs[code]
	f.repo.appts[id] = a
}

func TestBookingLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC)
	slot := f.repo.addSlot(f.doctor.UserID, start, 30*time.Minute)

	appt, err := f.svc.CreateForPatient(ctx, f.patient, CreateAppointmentInput{DoctorID: f.doctor.UserID, SlotID: slot.ID})
	require.NoError(t, err)
	assert.Equal(t, status.Pending, appt.Status)
	assert.Equal(t, 30, appt.DurationMin)
	assert.Equal(t, start, appt.ScheduledAt)
	assert.Equal(t, ModalityOnline, appt.Modality)
	assert.Equal(t, f.patient.UserID, appt.CreatedBy)

	_, err = f.svc.CreateForPatient(ctx, f.patient, CreateAppointmentInput{DoctorID: f.doctor.UserID, SlotID: slot.ID})
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)

	confirmed, err := f.svc.UpdateStatus(ctx, appt.ID, f.doctor, UpdateStatusInput{Status: status.Confirmed})
	require.NoError(t, err)
	assert.Equal(t, status.Confirmed, confirmed.Status)
	assert.Nil(t, confirmed.CancelledBy)

	res, err := f.svc.CancelAppointment(ctx, appt.ID, f.patient, "schedule conflict")
	require.NoError(t, err)
	assert.Equal(t, CancelledMessage, res.Message)
	assert.Equal(t, status.Cancelled, res.Appointment.Status)
	require.NotNil(t, res.Appointment.CancelReason)
	assert.Equal(t, "schedule conflict", *res.Appointment.CancelReason)
	require.NotNil(t, res.Appointment.CancelledBy)
	assert.Equal(t, f.patient.UserID, *res.Appointment.CancelledBy)

	assert.Equal(t, []string{
		EventAppointmentCreated,
		EventAppointmentStatusChanged,
		EventAppointmentCancelled,
	}, f.repo.eventTypes())
}

func TestCreateForPatient_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.repo.addSlot(f.doctor.UserID, testNow.Add(48*time.Hour), 30*time.Minute)

	tests := []struct {
		name    string
		actor   auth.Actor
		in      CreateAppointmentInput
		wantErr error
	}{
		{
			name:    "doctor cannot book",
			actor:   f.doctor,
			in:      CreateAppointmentInput{DoctorID: f.doctor.UserID, SlotID: slot.ID},
			wantErr: auth.ErrForbidden,
		},
		{
			name:    "unknown modality",
			actor:   f.patient,
			in:      CreateAppointmentInput{DoctorID: f.doctor.UserID, SlotID: slot.ID, Modality: "carrier-pigeon"},
			wantErr: ErrInvalidModality,
		},
		{
			name:    "missing slot",
			actor:   f.patient,
			in:      CreateAppointmentInput{DoctorID: f.doctor.UserID, SlotID: uuid.New()},
			wantErr: ErrSlotDoctorMismatch,
		},
		{
			name:    "slot of another doctor",
			actor:   f.patient,
			in:      CreateAppointmentInput{DoctorID: uuid.New(), SlotID: slot.ID},
			wantErr: ErrSlotDoctorMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateForPatient(ctx, tt.actor, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateForPatient_ExplicitModality(t *testing.T) {
	f := newFixture(t)
	slot := f.repo.addSlot(f.doctor.UserID, testNow.Add(48*time.Hour), 45*time.Minute)

	appt, err := f.svc.CreateForPatient(context.Background(), f.patient, CreateAppointmentInput{
		DoctorID: f.doctor.UserID,
		SlotID:   slot.ID,
		Modality: ModalityHybrid,
	})
	require.NoError(t, err)
	assert.Equal(t, ModalityHybrid, appt.Modality)
	assert.Equal(t, 45, appt.DurationMin)
}

func TestCreateForPatient_PartialMinuteRoundsUp(t *testing.T) {
	f := newFixture(t)
	slot := f.repo.addSlot(f.doctor.UserID, testNow.Add(48*time.Hour), 20*time.Minute+10*time.Second)

	appt, err := f.svc.CreateForPatient(context.Background(), f.patient, CreateAppointmentInput{
		DoctorID: f.doctor.UserID,
		SlotID:   slot.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 21, appt.DurationMin)
}

func TestCreateForPatient_PatientDoubleBooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := testNow.Add(72 * time.Hour)

	f.book(t, start)

	otherDoctor := uuid.New()
	overlapping := f.repo.addSlot(otherDoctor, start.Add(15*time.Minute), 30*time.Minute)
	_, err := f.svc.CreateForPatient(ctx, f.patient, CreateAppointmentInput{DoctorID: otherDoctor, SlotID: overlapping.ID})
	assert.ErrorIs(t, err, ErrPatientDoubleBooked)

	backToBack := f.repo.addSlot(otherDoctor, start.Add(30*time.Minute), 30*time.Minute)
	_, err = f.svc.CreateForPatient(ctx, f.patient, CreateAppointmentInput{DoctorID: otherDoctor, SlotID: backToBack.ID})
	assert.NoError(t, err)
}

func TestCreateForPatient_CancelledSlotCanBeRebooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, testNow.Add(72*time.Hour))

	_, err := f.svc.CancelAppointment(ctx, appt.ID, f.patient, "")
	require.NoError(t, err)

	other := auth.Actor{UserID: uuid.New(), Role: auth.RolePatient}
	again, err := f.svc.CreateForPatient(ctx, other, CreateAppointmentInput{DoctorID: f.doctor.UserID, SlotID: *appt.SlotID})
	require.NoError(t, err)
	assert.Equal(t, other.UserID, again.PatientID)
}

func TestCreateForPatient_LockContended(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, fakeResolver{}, busyLocker{}, f.queue, zap.NewNop(), metrics.NewNop())
	slot := f.repo.addSlot(f.doctor.UserID, testNow.Add(48*time.Hour), 30*time.Minute)

	_, err := svc.CreateForPatient(context.Background(), f.patient, CreateAppointmentInput{DoctorID: f.doctor.UserID, SlotID: slot.ID})
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
}

func TestCreateForPatient_RemindersTwoHoursAhead(t *testing.T) {
	repo := newMemRepo()
	queue := &mockQueue{}
	svc := NewService(repo, fakeResolver{}, redisclient.NoopLocker{}, queue, zap.NewNop(), metrics.NewNop())
	svc.now = func() time.Time { return testNow }

	doc := uuid.New()
	slot := repo.addSlot(doc, testNow.Add(2*time.Hour), 30*time.Minute)

	queue.On("Enqueue", mock.Anything, ReminderDayBefore, mock.Anything, time.Duration(0)).Return("job-24h", nil).Once()
	queue.On("Enqueue", mock.Anything, ReminderHourBefore, mock.Anything, time.Hour).Return("job-1h", nil).Once()

	patient := auth.Actor{UserID: uuid.New(), Role: auth.RolePatient}
	appt, err := svc.CreateForPatient(context.Background(), patient, CreateAppointmentInput{DoctorID: doc, SlotID: slot.ID})
	require.NoError(t, err)

	queue.AssertExpectations(t)
	queue.AssertNumberOfCalls(t, "Enqueue", 2)
	assert.Equal(t, []string{"job-24h", "job-1h"}, appt.ReminderJobIDs)

	stored, err := repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-24h", "job-1h"}, stored.ReminderJobIDs)
}

func TestCreateForPatient_ReminderDelaysAndPayload(t *testing.T) {
	f := newFixture(t)
	start := testNow.Add(72 * time.Hour)
	appt := f.book(t, start)

	require.Len(t, f.queue.jobs, 2)
	assert.Equal(t, ReminderDayBefore, f.queue.jobs[0].name)
	assert.Equal(t, 48*time.Hour, f.queue.jobs[0].delay)
	assert.Equal(t, ReminderHourBefore, f.queue.jobs[1].name)
	assert.Equal(t, 71*time.Hour, f.queue.jobs[1].delay)
	assert.Equal(t, appt.ID.String(), f.queue.jobs[0].payload["appointment_id"])
	assert.Equal(t, start.Format(time.RFC3339), f.queue.jobs[0].payload["scheduled_at"])
}

func TestCreateForPatient_PastSlotSkipsReminders(t *testing.T) {
	f := newFixture(t)
	f.book(t, testNow.Add(-2*time.Hour))
	assert.Empty(t, f.queue.jobs)
}

func TestCreateForPatient_ReminderFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t)
	f.queue.failWith = errQueueDown

	appt := f.book(t, testNow.Add(48*time.Hour))
	assert.Equal(t, status.Pending, appt.Status)
	assert.Empty(t, appt.ReminderJobIDs)
}

func TestCreateForPatient_CancelledBeforeRemindersStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.queue.afterEnqueue = func(payload map[string]string) {
		id, err := uuid.Parse(payload["appointment_id"])
		require.NoError(t, err)
		_, err = f.svc.CancelAppointment(ctx, id, f.patient, "changed my mind")
		require.NoError(t, err)
	}

	appt := f.book(t, testNow.Add(48*time.Hour))

	stored, err := f.repo.GetByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, status.Cancelled, stored.Status)
	assert.Empty(t, stored.ReminderJobIDs)
	assert.Empty(t, appt.ReminderJobIDs)
	assert.ElementsMatch(t, []string{"job-1", "job-2"}, f.queue.cancelled)
}

func TestCancelAppointment(t *testing.T) {
	ctx := context.Background()

	t.Run("twice", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		res, err := f.svc.CancelAppointment(ctx, appt.ID, f.patient, "  ")
		require.NoError(t, err)
		assert.Equal(t, DefaultCancelReason, *res.Appointment.CancelReason)

		_, err = f.svc.CancelAppointment(ctx, appt.ID, f.patient, "again")
		assert.ErrorIs(t, err, ErrAlreadyCancelled)
	})

	t.Run("completed", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))
		_, err := f.svc.UpdateStatus(ctx, appt.ID, f.doctor, UpdateStatusInput{Status: status.Completed})
		require.NoError(t, err)

		_, err = f.svc.CancelAppointment(ctx, appt.ID, f.admin, "")
		assert.ErrorIs(t, err, ErrCannotCancelCompleted)
	})

	t.Run("stranger", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		_, err := f.svc.CancelAppointment(ctx, appt.ID, auth.Actor{UserID: uuid.New(), Role: auth.RolePatient}, "")
		assert.ErrorIs(t, err, auth.ErrForbidden)
		_, err = f.svc.CancelAppointment(ctx, appt.ID, auth.Actor{UserID: uuid.New(), Role: auth.RoleDoctor}, "")
		assert.ErrorIs(t, err, auth.ErrForbidden)
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CancelAppointment(ctx, uuid.New(), f.admin, "")
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})

	t.Run("cancels reminders", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))
		require.Len(t, appt.ReminderJobIDs, 2)

		_, err := f.svc.CancelAppointment(ctx, appt.ID, f.doctor, "doctor unavailable")
		require.NoError(t, err)

		assert.ElementsMatch(t, appt.ReminderJobIDs, f.queue.cancelled)
		stored, err := f.repo.GetByID(ctx, appt.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.ReminderJobIDs)
	})
}

func TestUpdateStatus_PatientCanOnlyCancel(t *testing.T) {
	ctx := context.Background()

	for _, from := range []status.Code{status.Pending, status.Confirmed, status.Rescheduled, status.Completed, status.NoShow, status.Cancelled} {
		for _, to := range []status.Code{status.Pending, status.Confirmed, status.Completed, status.Rescheduled, status.NoShow} {
			f := newFixture(t)
			appt := f.book(t, testNow.Add(48*time.Hour))
			f.setStatus(t, appt.ID, from)

			_, err := f.svc.UpdateStatus(ctx, appt.ID, f.patient, UpdateStatusInput{Status: to})
			assert.ErrorIs(t, err, ErrPatientCanOnlyCancel, "%s -> %s", from, to)
			assert.ErrorIs(t, err, auth.ErrForbidden, "%s -> %s", from, to)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("other doctor", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		_, err := f.svc.UpdateStatus(ctx, appt.ID, auth.Actor{UserID: uuid.New(), Role: auth.RoleDoctor}, UpdateStatusInput{Status: status.Confirmed})
		assert.ErrorIs(t, err, auth.ErrForbidden)
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		_, err := f.svc.UpdateStatus(ctx, appt.ID, f.admin, UpdateStatusInput{Status: "ARCHIVED"})
		assert.ErrorIs(t, err, status.ErrUnknownStatus)
	})

	t.Run("same status", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		_, err := f.svc.UpdateStatus(ctx, appt.ID, f.doctor, UpdateStatusInput{Status: status.Pending})
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	})

	t.Run("cancel through update records canceller", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))
		reason := "clinic closed"

		updated, err := f.svc.UpdateStatus(ctx, appt.ID, f.admin, UpdateStatusInput{Status: status.Cancelled, CancelReason: &reason})
		require.NoError(t, err)
		assert.Equal(t, f.admin.UserID, *updated.CancelledBy)
		assert.Equal(t, reason, *updated.CancelReason)
	})

	t.Run("no show releases slot and reminders", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		updated, err := f.svc.UpdateStatus(ctx, appt.ID, f.doctor, UpdateStatusInput{Status: status.NoShow})
		require.NoError(t, err)
		assert.Equal(t, status.NoShow, updated.Status)
		assert.Nil(t, updated.CancelledBy)
		assert.Len(t, f.queue.cancelled, 2)

		busy, err := f.repo.HasActiveOnSlot(ctx, *appt.SlotID, []int64{testStatusIDs[status.Cancelled], testStatusIDs[status.NoShow]})
		require.NoError(t, err)
		assert.False(t, busy)
	})

	t.Run("rescheduled back to confirmed", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		_, err := f.svc.UpdateStatus(ctx, appt.ID, f.doctor, UpdateStatusInput{Status: status.Rescheduled})
		require.NoError(t, err)
		updated, err := f.svc.UpdateStatus(ctx, appt.ID, f.doctor, UpdateStatusInput{Status: status.Confirmed})
		require.NoError(t, err)
		assert.Equal(t, status.Confirmed, updated.Status)
		assert.Empty(t, f.queue.cancelled)
	})
}

func TestDeleteAndErase(t *testing.T) {
	ctx := context.Background()

	t.Run("participant deletes", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		require.NoError(t, f.svc.DeleteAppointment(ctx, appt.ID, f.patient))
		_, err := f.repo.GetByID(ctx, appt.ID)
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
		assert.Len(t, f.queue.cancelled, 2)
		assert.Contains(t, f.repo.eventTypes(), EventAppointmentDeleted)
	})

	t.Run("completed is kept", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))
		f.setStatus(t, appt.ID, status.Completed)

		err := f.svc.DeleteAppointment(ctx, appt.ID, f.admin)
		assert.ErrorIs(t, err, ErrCannotDeleteCompleted)
	})

	t.Run("stranger cannot delete", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		err := f.svc.DeleteAppointment(ctx, appt.ID, auth.Actor{UserID: uuid.New(), Role: auth.RoleDoctor})
		assert.ErrorIs(t, err, auth.ErrForbidden)
	})

	t.Run("admin erases completed", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))
		f.setStatus(t, appt.ID, status.Completed)

		require.NoError(t, f.svc.EraseAppointment(ctx, appt.ID, f.admin))
		_, err := f.repo.GetByID(ctx, appt.ID)
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
		assert.Contains(t, f.repo.eventTypes(), EventAppointmentErased)
	})

	t.Run("only admins erase", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		assert.ErrorIs(t, f.svc.EraseAppointment(ctx, appt.ID, f.doctor), auth.ErrForbidden)
		assert.ErrorIs(t, f.svc.EraseAppointment(ctx, appt.ID, f.patient), auth.ErrForbidden)
	})
}

func TestGetOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, testNow.Add(48*time.Hour))

	for _, actor := range []auth.Actor{f.patient, f.doctor, f.admin} {
		d, err := f.svc.GetOne(ctx, appt.ID, actor)
		require.NoError(t, err)
		require.NotNil(t, d.Slot)
		assert.Equal(t, *appt.SlotID, d.Slot.ID)
	}

	_, err := f.svc.GetOne(ctx, appt.ID, auth.Actor{UserID: uuid.New(), Role: auth.RolePatient})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.GetOne(ctx, uuid.New(), f.admin)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	later := f.book(t, testNow.Add(72*time.Hour))
	sooner := f.book(t, testNow.Add(24*time.Hour))
	past := f.book(t, testNow.Add(-48*time.Hour))
	f.setStatus(t, past.ID, status.Completed)
	cancelled := f.book(t, testNow.Add(96*time.Hour))
	_, err := f.svc.CancelAppointment(ctx, cancelled.ID, f.patient, "")
	require.NoError(t, err)

	// someone else's appointment must never leak into the patient's views
	other := auth.Actor{UserID: uuid.New(), Role: auth.RolePatient}
	otherSlot := f.repo.addSlot(f.doctor.UserID, testNow.Add(30*time.Hour), 30*time.Minute)
	_, err = f.svc.CreateForPatient(ctx, other, CreateAppointmentInput{DoctorID: f.doctor.UserID, SlotID: otherSlot.ID})
	require.NoError(t, err)

	t.Run("upcoming", func(t *testing.T) {
		list, err := f.svc.GetUpcoming(ctx, f.patient, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, sooner.ID, list[0].ID)
		assert.Equal(t, later.ID, list[1].ID)

		docList, err := f.svc.GetUpcoming(ctx, f.doctor, 0)
		require.NoError(t, err)
		assert.Len(t, docList, 3)

		limited, err := f.svc.GetUpcoming(ctx, f.patient, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("past", func(t *testing.T) {
		list, err := f.svc.GetPast(ctx, f.patient, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, past.ID, list[0].ID)
	})

	t.Run("cancelled", func(t *testing.T) {
		list, err := f.svc.GetCancelled(ctx, f.patient, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, cancelled.ID, list[0].ID)
	})

	t.Run("all paginated", func(t *testing.T) {
		page, err := f.svc.GetAll(ctx, f.patient, 2, 3, "asc")
		require.NoError(t, err)
		assert.Equal(t, Pagination{Total: 4, Page: 2, Limit: 3, TotalPages: 2}, page.Pagination)
		require.Len(t, page.Data, 1)
		assert.Equal(t, cancelled.ID, page.Data[0].ID)

		adminPage, err := f.svc.GetAll(ctx, f.admin, 0, 0, "")
		require.NoError(t, err)
		assert.Equal(t, int64(5), adminPage.Pagination.Total)
		assert.Equal(t, 1, adminPage.Pagination.Page)
		assert.Equal(t, 10, adminPage.Pagination.Limit)
	})

	t.Run("date range", func(t *testing.T) {
		list, err := f.svc.GetByDateRange(ctx, f.patient, testNow, testNow.Add(80*time.Hour))
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, sooner.ID, list[0].ID)

		_, err = f.svc.GetByDateRange(ctx, f.patient, testNow, testNow.Add(-time.Hour))
		assert.ErrorIs(t, err, ErrInvalidDateRange)
	})

	t.Run("list scope overrides filter", func(t *testing.T) {
		list, err := f.svc.List(ctx, f.patient, ListFilter{PatientID: &other.UserID})
		require.NoError(t, err)
		assert.Len(t, list, 4)
		for _, d := range list {
			assert.Equal(t, f.patient.UserID, d.PatientID)
		}
	})

	t.Run("list by status", func(t *testing.T) {
		pending := status.Pending
		list, err := f.svc.List(ctx, f.admin, ListFilter{Status: &pending})
		require.NoError(t, err)
		assert.Len(t, list, 3)
	})
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10))
	assert.Equal(t, 10, clampLimit(-5, 10))
	assert.Equal(t, 7, clampLimit(7, 10))
	assert.Equal(t, 100, clampLimit(1000, 10))
}

func TestNotes(t *testing.T) {
	ctx := context.Background()

	t.Run("assigned doctor writes, participants read", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		first, err := f.svc.AddNote(ctx, appt.ID, f.doctor, " patient reports headaches ")
		require.NoError(t, err)
		assert.Equal(t, "patient reports headaches", first.Content)
		_, err = f.svc.AddNote(ctx, appt.ID, f.doctor, "follow up in two weeks")
		require.NoError(t, err)

		notes, err := f.svc.ListNotes(ctx, appt.ID, f.patient)
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, first.ID, notes[0].ID)

		_, err = f.svc.ListNotes(ctx, appt.ID, auth.Actor{UserID: uuid.New(), Role: auth.RolePatient})
		assert.ErrorIs(t, err, auth.ErrForbidden)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))

		_, err := f.svc.AddNote(ctx, appt.ID, f.doctor, "   ")
		assert.ErrorIs(t, err, ErrEmptyNote)
		_, err = f.svc.AddNote(ctx, appt.ID, f.patient, "hi")
		assert.ErrorIs(t, err, auth.ErrForbidden)
		_, err = f.svc.AddNote(ctx, appt.ID, auth.Actor{UserID: uuid.New(), Role: auth.RoleDoctor}, "hi")
		assert.ErrorIs(t, err, auth.ErrForbidden)
	})

	t.Run("delete", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, testNow.Add(48*time.Hour))
		note, err := f.svc.AddNote(ctx, appt.ID, f.doctor, "draft")
		require.NoError(t, err)

		assert.ErrorIs(t, f.svc.DeleteNote(ctx, uuid.New(), note.ID, f.doctor), ErrNoteNotFound)
		assert.ErrorIs(t, f.svc.DeleteNote(ctx, appt.ID, note.ID, f.patient), auth.ErrForbidden)
		require.NoError(t, f.svc.DeleteNote(ctx, appt.ID, note.ID, f.admin))
		assert.ErrorIs(t, f.svc.DeleteNote(ctx, appt.ID, note.ID, f.admin), ErrNoteNotFound)
	})
}
