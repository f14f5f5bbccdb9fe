package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/hackgods/telehealth-booking/internal/availability"
	"github.com/hackgods/telehealth-booking/internal/status"
)

var testStatusIDs = map[status.Code]int64{
	status.Pending:     1,
	status.Confirmed:   2,
	status.Cancelled:   3,
	status.Completed:   4,
	status.Rescheduled: 5,
	status.NoShow:      6,
}

func codeForID(id int64) status.Code {
	for c, v := range testStatusIDs {
		if v == id {
			return c
		}
	}
	return ""
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, code status.Code) (int64, error) {
	id, ok := testStatusIDs[code]
	if !ok {
		return 0, fmt.Errorf("%w: %s", status.ErrUnknownStatus, code)
	}
	return id, nil
}

func (f fakeResolver) ResolveMany(ctx context.Context, codes ...status.Code) ([]int64, error) {
	ids := make([]int64, 0, len(codes))
	for _, c := range codes {
		id, err := f.Resolve(ctx, c)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// memRepo mimics the Postgres repository including the one-active-per-slot index.
type memRepo struct {
	mu     sync.Mutex
	slots  map[uuid.UUID]availability.Slot
	appts  map[uuid.UUID]Appointment
	notes  map[uuid.UUID]Note
	events []EventLog
	clock  time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		slots: map[uuid.UUID]availability.Slot{},
		appts: map[uuid.UUID]Appointment{},
		notes: map[uuid.UUID]Note{},
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memRepo) addSlot(doctorID uuid.UUID, start time.Time, d time.Duration) availability.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := availability.Slot{ID: uuid.New(), DoctorID: doctorID, StartAt: start, EndAt: start.Add(d)}
	m.slots[s.ID] = s
	return s
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

func (m *memRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*availability.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, availability.ErrSlotNotFound
	}
	return &s, nil
}

func containsID(id int64, ids []int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (m *memRepo) HasActiveOnSlot(_ context.Context, slotID uuid.UUID, inactiveIDs []int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.SlotID != nil && *a.SlotID == slotID && !containsID(a.StatusID, inactiveIDs) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) HasPatientCollision(_ context.Context, patientID uuid.UUID, start, end time.Time, inactiveIDs []int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.PatientID != patientID || containsID(a.StatusID, inactiveIDs) {
			continue
		}
		if a.ScheduledAt.Before(end) && a.EndsAt().After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.appts {
		if other.SlotID != nil && a.SlotID != nil && *other.SlotID == *a.SlotID && other.Status.IsActive() {
			return ErrSlotAlreadyBooked
		}
	}
	a.CreatedAt = m.tick()
	a.UpdatedAt = a.CreatedAt
	m.appts[a.ID] = *a
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) detail(a Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: a}
	if a.SlotID != nil {
		if s, ok := m.slots[*a.SlotID]; ok {
			d.Slot = &SlotRef{ID: s.ID, StartAt: s.StartAt, EndAt: s.EndAt}
		}
	}
	return d
}

func (m *memRepo) GetDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	d := m.detail(a)
	return &d, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, fromStatusID int64, upd StatusUpdate) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.StatusID != fromStatusID {
		return nil, ErrAppointmentNotFound
	}
	a.StatusID = upd.StatusID
	a.Status = codeForID(upd.StatusID)
	a.CancelReason = upd.CancelReason
	a.CancelledBy = upd.CancelledBy
	a.UpdatedAt = m.tick()
	m.appts[id] = a
	return &a, nil
}

func (m *memRepo) AttachReminderJobs(_ context.Context, id uuid.UUID, jobIDs []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || !codeForID(a.StatusID).IsActive() {
		return false, nil
	}
	a.ReminderJobIDs = jobIDs
	m.appts[id] = a
	return true, nil
}

func (m *memRepo) ClearReminderJobs(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.ReminderJobIDs = nil
	m.appts[id] = a
	return nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	delete(m.appts, id)
	return a.ReminderJobIDs, nil
}

func (m *memRepo) match(a Appointment, q Query) bool {
	switch {
	case q.PatientID != nil && a.PatientID != *q.PatientID:
		return false
	case q.DoctorID != nil && a.DoctorID != *q.DoctorID:
		return false
	case len(q.StatusIDs) > 0 && !containsID(a.StatusID, q.StatusIDs):
		return false
	case q.ScheduledFrom != nil && a.ScheduledAt.Before(*q.ScheduledFrom):
		return false
	case q.ScheduledTo != nil && a.ScheduledAt.After(*q.ScheduledTo):
		return false
	case q.ScheduledBefore != nil && !a.ScheduledAt.Before(*q.ScheduledBefore):
		return false
	}
	return true
}

func (m *memRepo) Find(_ context.Context, q Query) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []AppointmentDetail
	for _, a := range m.appts {
		if m.match(a, q) {
			out = append(out, m.detail(a))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		switch q.Order {
		case OrderScheduledAsc:
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		case OrderUpdatedDesc:
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		default:
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []AppointmentDetail{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memRepo) Count(_ context.Context, q Query) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.appts {
		if m.match(a, q) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) AddNote(_ context.Context, n *Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.CreatedAt = m.tick()
	m.notes[n.ID] = *n
	return nil
}

func (m *memRepo) GetNote(_ context.Context, id uuid.UUID) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	return &n, nil
}

func (m *memRepo) ListNotes(_ context.Context, appointmentID uuid.UUID) ([]Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Note{}
	for _, n := range m.notes {
		if n.AppointmentID == appointmentID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) DeleteNote(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[id]; !ok {
		return ErrNoteNotFound
	}
	delete(m.notes, id)
	return nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

type enqueued struct {
	id      string
	name    string
	payload map[string]string
	delay   time.Duration
}

// fakeQueue records reminder jobs in memory. afterEnqueue, when set, runs
// once after the first successful Enqueue.
type fakeQueue struct {
	mu           sync.Mutex
	seq          int
	jobs         []enqueued
	cancelled    []string
	failWith     error
	afterEnqueue func(payload map[string]string)
}

func (q *fakeQueue) Enqueue(_ context.Context, name string, payload map[string]string, delay time.Duration) (string, error) {
	q.mu.Lock()
	if q.failWith != nil {
		q.mu.Unlock()
		return "", q.failWith
	}
	q.seq++
	id := fmt.Sprintf("job-%d", q.seq)
	q.jobs = append(q.jobs, enqueued{id: id, name: name, payload: payload, delay: delay})
	hook := q.afterEnqueue
	q.afterEnqueue = nil
	q.mu.Unlock()

	if hook != nil {
		hook(payload)
	}
	return id, nil
}

func (q *fakeQueue) Cancel(_ context.Context, jobIDs ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failWith != nil {
		return q.failWith
	}
	q.cancelled = append(q.cancelled, jobIDs...)
	return nil
}

// mockQueue is used where exact call arguments matter.
type mockQueue struct {
	mock.Mock
}

func (q *mockQueue) Enqueue(ctx context.Context, name string, payload map[string]string, delay time.Duration) (string, error) {
	args := q.Called(ctx, name, payload, delay)
	return args.String(0), args.Error(1)
}

func (q *mockQueue) Cancel(ctx context.Context, jobIDs ...string) error {
	args := q.Called(ctx, jobIDs)
	return args.Error(0)
}

var errQueueDown = errors.New("queue unavailable")
