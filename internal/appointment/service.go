package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-booking/internal/auth"
	"github.com/hackgods/telehealth-booking/internal/availability"
	"github.com/hackgods/telehealth-booking/internal/metrics"
	redisclient "github.com/hackgods/telehealth-booking/internal/redis"
	"github.com/hackgods/telehealth-booking/internal/status"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentCancelled     = "APPOINTMENT_CANCELLED"
	EventAppointmentDeleted       = "APPOINTMENT_DELETED"
	EventAppointmentErased        = "APPOINTMENT_ERASED"
)

const (
	ReminderDayBefore  = "reminder-24h"
	ReminderHourBefore = "reminder-1h"

	DefaultCancelReason = "No reason provided"
	CancelledMessage    = "Appointment cancelled successfully"
)

var reminderSchedule = []struct {
	name string
	lead time.Duration
}{
	{ReminderDayBefore, 24 * time.Hour},
	{ReminderHourBefore, time.Hour},
}

var (
	ErrSlotDoctorMismatch    = errors.New("slot not found or does not belong to doctor")
	ErrSlotAlreadyBooked     = errors.New("slot already has an active appointment")
	ErrSlotBeingBooked       = errors.New("slot is currently being booked, please retry")
	ErrPatientDoubleBooked   = errors.New("patient already has an appointment at this time")
	ErrInvalidModality       = errors.New("modality must be one of online, in_person, hybrid")
	ErrPatientCanOnlyCancel  = fmt.Errorf("%w: patients can only cancel appointments", auth.ErrForbidden)
	ErrCannotDeleteCompleted = errors.New("completed appointments cannot be deleted")
	ErrEmptyNote             = errors.New("note content is required")
	ErrInvalidDateRange      = errors.New("from must not be after to")
)

// StatusResolver maps status codes to storage ids.
type StatusResolver interface {
	Resolve(ctx context.Context, code status.Code) (int64, error)
	ResolveMany(ctx context.Context, codes ...status.Code) ([]int64, error)
}

// ReminderQueue is a delayed job queue. Ids returned by Enqueue can be passed
// to Cancel.
type ReminderQueue interface {
	Enqueue(ctx context.Context, name string, payload map[string]string, delay time.Duration) (string, error)
	Cancel(ctx context.Context, jobIDs ...string) error
}

type Service struct {
	repo      Repository
	statuses  StatusResolver
	locker    redisclient.Locker
	reminders ReminderQueue
	log       *zap.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

func NewService(
	repo Repository,
	statuses StatusResolver,
	locker redisclient.Locker,
	reminders ReminderQueue,
	log *zap.Logger,
	m *metrics.Collector,
) *Service {
	return &Service{
		repo:      repo,
		statuses:  statuses,
		locker:    locker,
		reminders: reminders,
		log:       log,
		metrics:   m,
		now:       time.Now,
	}
}

// CreateForPatient books a slot for the calling patient.
// The slot and patient-collision checks and the insert run under the slot
// lock inside one serializable transaction; the one-active-per-slot index
// catches anything that gets past both.
func (s *Service) CreateForPatient(ctx context.Context, actor auth.Actor, in CreateAppointmentInput) (*Appointment, error) {
	if actor.Role != auth.RolePatient {
		return nil, fmt.Errorf("%w: only patients can book appointments", auth.ErrForbidden)
	}

	modality := in.Modality
	if modality == "" {
		modality = ModalityOnline
	}
	if !modality.IsValid() {
		return nil, ErrInvalidModality
	}

	slot, err := s.repo.GetSlotByID(ctx, in.SlotID)
	if err != nil {
		if errors.Is(err, availability.ErrSlotNotFound) {
			return nil, ErrSlotDoctorMismatch
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.DoctorID != in.DoctorID {
		return nil, ErrSlotDoctorMismatch
	}

	inactive, err := s.statuses.ResolveMany(ctx, status.InactiveCodes...)
	if err != nil {
		return nil, fmt.Errorf("resolve statuses: %w", err)
	}
	pendingID, err := s.statuses.Resolve(ctx, status.Pending)
	if err != nil {
		return nil, fmt.Errorf("resolve statuses: %w", err)
	}

	slotID := slot.ID
	appt := &Appointment{
		ID:          uuid.New(),
		PatientID:   actor.UserID,
		DoctorID:    slot.DoctorID,
		SlotID:      &slotID,
		StatusID:    pendingID,
		Status:      status.Pending,
		ScheduledAt: slot.StartAt,
		DurationMin: int(math.Ceil(slot.Duration().Minutes())),
		Modality:    modality,
		CreatedBy:   actor.UserID,
	}

	err = s.locker.WithLock(ctx, redisclient.SlotLockKey(slot.ID), func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(txCtx context.Context, tx Repository) error {
			booked, err := tx.HasActiveOnSlot(txCtx, slot.ID, inactive)
			if err != nil {
				return fmt.Errorf("check slot: %w", err)
			}
			if booked {
				return ErrSlotAlreadyBooked
			}

			collides, err := tx.HasPatientCollision(txCtx, actor.UserID, slot.StartAt, slot.EndAt, inactive)
			if err != nil {
				return fmt.Errorf("check patient schedule: %w", err)
			}
			if collides {
				return ErrPatientDoubleBooked
			}

			return tx.Create(txCtx, appt)
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = ErrSlotBeingBooked
		}
		s.metrics.BookingsTotal.WithLabelValues(bookingOutcome(err)).Inc()
		return nil, err
	}
	s.metrics.BookingsTotal.WithLabelValues("created").Inc()

	s.scheduleReminders(ctx, appt)

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"slot_id":      slot.ID.String(),
		"patient_id":   appt.PatientID.String(),
		"doctor_id":    appt.DoctorID.String(),
		"scheduled_at": appt.ScheduledAt,
	})
	s.log.Info("appointment created",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("slot_id", slot.ID.String()),
		zap.String("patient_id", appt.PatientID.String()),
	)

	return appt, nil
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, ErrSlotAlreadyBooked):
		return "slot_booked"
	case errors.Is(err, ErrPatientDoubleBooked):
		return "patient_conflict"
	case errors.Is(err, ErrSlotBeingBooked):
		return "locked"
	default:
		return "error"
	}
}

// UpdateStatus moves an appointment to in.Status. Patients may only cancel
// their own appointments; doctors may only touch appointments assigned to them.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, actor auth.Actor, in UpdateStatusInput) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleDoctor:
		if appt.DoctorID != actor.UserID {
			return nil, fmt.Errorf("%w: appointment is assigned to another doctor", auth.ErrForbidden)
		}
	case auth.RolePatient:
		if appt.PatientID != actor.UserID {
			return nil, fmt.Errorf("%w: appointment belongs to another patient", auth.ErrForbidden)
		}
		if in.Status != status.Cancelled {
			return nil, ErrPatientCanOnlyCancel
		}
	default:
		return nil, auth.ErrForbidden
	}

	if !in.Status.IsKnown() {
		return nil, fmt.Errorf("%w: %s", status.ErrUnknownStatus, in.Status)
	}

	return s.transition(ctx, appt, actor, in.Status, in.CancelReason)
}

// CancelAppointment cancels on behalf of any participant or an admin.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, actor auth.Actor, reason string) (*CancelResult, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, appt) {
		return nil, fmt.Errorf("%w: not allowed to cancel this appointment", auth.ErrForbidden)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}

	updated, err := s.transition(ctx, appt, actor, status.Cancelled, &reason)
	if err != nil {
		return nil, err
	}

	return &CancelResult{Message: CancelledMessage, Appointment: updated}, nil
}

func (s *Service) transition(ctx context.Context, appt *Appointment, actor auth.Actor, to status.Code, reason *string) (*Appointment, error) {
	if err := CheckTransition(appt.Status, to, actor.Role); err != nil {
		return nil, err
	}

	toID, err := s.statuses.Resolve(ctx, to)
	if err != nil {
		return nil, err
	}

	upd := StatusUpdate{StatusID: toID, Active: to.IsActive()}
	if to == status.Cancelled {
		by := actor.UserID
		upd.CancelReason = reason
		upd.CancelledBy = &by
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.StatusID, upd)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// the row moved on between load and update
			return nil, fmt.Errorf("%w: appointment was modified concurrently", ErrInvalidStatusTransition)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}
	s.metrics.TransitionsTotal.WithLabelValues(string(to)).Inc()

	if !to.IsActive() {
		s.cancelReminders(ctx, updated)
	}

	event := EventAppointmentStatusChanged
	if to == status.Cancelled {
		event = EventAppointmentCancelled
	}
	payload := map[string]any{
		"from":     appt.Status,
		"to":       to,
		"actor_id": actor.UserID.String(),
	}
	if upd.CancelReason != nil {
		payload["cancel_reason"] = *upd.CancelReason
	}
	s.logEvent(ctx, updated.ID, event, payload)

	return updated, nil
}

// DeleteAppointment hard-deletes an appointment as part of its lifecycle.
// Completed appointments are clinical history and are refused.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID, actor auth.Actor) error {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canAccess(actor, appt) {
		return fmt.Errorf("%w: not allowed to delete this appointment", auth.ErrForbidden)
	}
	if appt.Status == status.Completed {
		return ErrCannotDeleteCompleted
	}

	return s.remove(ctx, appt, actor, EventAppointmentDeleted)
}

// EraseAppointment removes an appointment whatever its status. Admin only.
func (s *Service) EraseAppointment(ctx context.Context, id uuid.UUID, actor auth.Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins can erase appointments", auth.ErrForbidden)
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return s.remove(ctx, appt, actor, EventAppointmentErased)
}

func (s *Service) remove(ctx context.Context, appt *Appointment, actor auth.Actor, event string) error {
	// the ids come from the deleted row, not the earlier read
	jobIDs, err := s.repo.Delete(ctx, appt.ID)
	if err != nil {
		return err
	}
	s.dropReminders(ctx, appt.ID, jobIDs)

	s.logEvent(ctx, appt.ID, event, map[string]any{
		"status":   appt.Status,
		"actor_id": actor.UserID.String(),
	})
	s.log.Info("appointment removed",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("event", event),
	)
	return nil
}

// GetOne returns the appointment if the actor is an admin or a participant.
func (s *Service) GetOne(ctx context.Context, id uuid.UUID, actor auth.Actor) (*AppointmentDetail, error) {
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, &detail.Appointment) {
		return nil, fmt.Errorf("%w: not a participant of this appointment", auth.ErrForbidden)
	}
	return detail, nil
}

func (s *Service) GetUpcoming(ctx context.Context, actor auth.Actor, limit int) ([]AppointmentDetail, error) {
	ids, err := s.statuses.ResolveMany(ctx, status.Pending, status.Confirmed)
	if err != nil {
		return nil, err
	}
	now := s.now()

	q := Query{
		StatusIDs:     ids,
		ScheduledFrom: &now,
		Order:         OrderScheduledAsc,
		Limit:         clampLimit(limit, 10),
	}
	return s.find(ctx, actor, q)
}

func (s *Service) GetPast(ctx context.Context, actor auth.Actor, limit int) ([]AppointmentDetail, error) {
	ids, err := s.statuses.ResolveMany(ctx, status.Completed, status.NoShow)
	if err != nil {
		return nil, err
	}
	now := s.now()

	q := Query{
		StatusIDs:       ids,
		ScheduledBefore: &now,
		Order:           OrderScheduledDesc,
		Limit:           clampLimit(limit, 20),
	}
	return s.find(ctx, actor, q)
}

func (s *Service) GetCancelled(ctx context.Context, actor auth.Actor, limit int) ([]AppointmentDetail, error) {
	id, err := s.statuses.Resolve(ctx, status.Cancelled)
	if err != nil {
		return nil, err
	}

	q := Query{
		StatusIDs: []int64{id},
		Order:     OrderUpdatedDesc,
		Limit:     clampLimit(limit, 20),
	}
	return s.find(ctx, actor, q)
}

// GetAll pages through every appointment visible to the actor. order is
// "asc" or anything else for descending scheduled time.
func (s *Service) GetAll(ctx context.Context, actor auth.Actor, page, limit int, order string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	limit = clampLimit(limit, 10)

	q := Query{Order: OrderScheduledDesc, Limit: limit, Offset: (page - 1) * limit}
	if strings.EqualFold(order, "asc") {
		q.Order = OrderScheduledAsc
	}
	scope(actor, &q)

	total, err := s.repo.Count(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	data, err := s.repo.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	return &Page{
		Data: data,
		Pagination: Pagination{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}

func (s *Service) GetByDateRange(ctx context.Context, actor auth.Actor, from, to time.Time) ([]AppointmentDetail, error) {
	if from.After(to) {
		return nil, ErrInvalidDateRange
	}
	from, to = from.UTC(), to.UTC()

	q := Query{
		ScheduledFrom: &from,
		ScheduledTo:   &to,
		Order:         OrderScheduledAsc,
	}
	return s.find(ctx, actor, q)
}

// List filters appointments. For non-admins the caller's own id replaces the
// matching doctor or patient filter.
func (s *Service) List(ctx context.Context, actor auth.Actor, f ListFilter) ([]AppointmentDetail, error) {
	q := Query{
		DoctorID:      f.DoctorID,
		PatientID:     f.PatientID,
		ScheduledFrom: f.From,
		ScheduledTo:   f.To,
		Order:         OrderScheduledDesc,
	}
	if f.Status != nil {
		id, err := s.statuses.Resolve(ctx, *f.Status)
		if err != nil {
			return nil, err
		}
		q.StatusIDs = []int64{id}
	}
	return s.find(ctx, actor, q)
}

func (s *Service) find(ctx context.Context, actor auth.Actor, q Query) ([]AppointmentDetail, error) {
	scope(actor, &q)

	list, err := s.repo.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

// AddNote attaches a clinical note. Only the assigned doctor may write one.
func (s *Service) AddNote(ctx context.Context, appointmentID uuid.UUID, actor auth.Actor, content string) (*Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyNote
	}

	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleDoctor || appt.DoctorID != actor.UserID {
		return nil, fmt.Errorf("%w: only the assigned doctor can add notes", auth.ErrForbidden)
	}

	note := &Note{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		DoctorID:      actor.UserID,
		Content:       content,
	}
	if err := s.repo.AddNote(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

func (s *Service) ListNotes(ctx context.Context, appointmentID uuid.UUID, actor auth.Actor) ([]Note, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, appt) {
		return nil, fmt.Errorf("%w: not a participant of this appointment", auth.ErrForbidden)
	}

	notes, err := s.repo.ListNotes(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

func (s *Service) DeleteNote(ctx context.Context, appointmentID, noteID uuid.UUID, actor auth.Actor) error {
	note, err := s.repo.GetNote(ctx, noteID)
	if err != nil {
		return err
	}
	if note.AppointmentID != appointmentID {
		return ErrNoteNotFound
	}
	if !actor.IsAdmin() && (actor.Role != auth.RoleDoctor || note.DoctorID != actor.UserID) {
		return fmt.Errorf("%w: only the author or an admin can delete a note", auth.ErrForbidden)
	}

	return s.repo.DeleteNote(ctx, noteID)
}

// scheduleReminders enqueues the day-before and hour-before reminders for a
// future appointment. Queue failures never fail the booking.
func (s *Service) scheduleReminders(ctx context.Context, appt *Appointment) {
	now := s.now()
	if !appt.ScheduledAt.After(now) {
		return
	}

	payload := map[string]string{
		"appointment_id": appt.ID.String(),
		"patient_id":     appt.PatientID.String(),
		"doctor_id":      appt.DoctorID.String(),
		"scheduled_at":   appt.ScheduledAt.Format(time.RFC3339),
	}

	var jobIDs []string
	for _, r := range reminderSchedule {
		delay := appt.ScheduledAt.Add(-r.lead).Sub(now)
		if delay < 0 {
			delay = 0
		}

		id, err := s.reminders.Enqueue(ctx, r.name, payload, delay)
		if err != nil {
			s.metrics.RemindersTotal.WithLabelValues("enqueue_failed").Inc()
			s.log.Warn("failed to enqueue reminder",
				zap.String("appointment_id", appt.ID.String()),
				zap.String("reminder", r.name),
				zap.Error(err),
			)
			continue
		}
		s.metrics.RemindersTotal.WithLabelValues("enqueued").Inc()
		jobIDs = append(jobIDs, id)
	}

	if len(jobIDs) == 0 {
		return
	}

	// A cancel that lands before the ids are stored finds nothing to cancel,
	// so the ids only stick to a row that is still active.
	attached, err := s.repo.AttachReminderJobs(ctx, appt.ID, jobIDs)
	if err != nil {
		s.log.Warn("failed to store reminder job ids",
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err),
		)
		return
	}
	if attached {
		appt.ReminderJobIDs = jobIDs
		return
	}

	s.log.Info("appointment left the active set before reminders were stored",
		zap.String("appointment_id", appt.ID.String()),
	)
	s.dropReminders(ctx, appt.ID, jobIDs)
}

func (s *Service) dropReminders(ctx context.Context, appointmentID uuid.UUID, jobIDs []string) bool {
	if len(jobIDs) == 0 {
		return true
	}
	if err := s.reminders.Cancel(ctx, jobIDs...); err != nil {
		s.log.Warn("failed to cancel reminders",
			zap.String("appointment_id", appointmentID.String()),
			zap.Strings("job_ids", jobIDs),
			zap.Error(err),
		)
		return false
	}
	s.metrics.RemindersTotal.WithLabelValues("cancelled").Add(float64(len(jobIDs)))
	return true
}

// cancelReminders drops the appointment's pending reminder jobs, best effort,
// and wipes the stored ids.
func (s *Service) cancelReminders(ctx context.Context, appt *Appointment) {
	if len(appt.ReminderJobIDs) == 0 {
		return
	}
	if !s.dropReminders(ctx, appt.ID, appt.ReminderJobIDs) {
		return
	}

	if err := s.repo.ClearReminderJobs(ctx, appt.ID); err != nil {
		s.log.Warn("failed to clear reminder job ids",
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err),
		)
		return
	}
	appt.ReminderJobIDs = nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}

// canAccess reports whether actor is an admin or a participant of appt.
func canAccess(actor auth.Actor, appt *Appointment) bool {
	switch actor.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleDoctor:
		return appt.DoctorID == actor.UserID
	case auth.RolePatient:
		return appt.PatientID == actor.UserID
	}
	return false
}

// scope restricts a query to what the actor may see.
func scope(actor auth.Actor, q *Query) {
	switch actor.Role {
	case auth.RoleDoctor:
		id := actor.UserID
		q.DoctorID = &id
	case auth.RolePatient:
		id := actor.UserID
		q.PatientID = &id
	case auth.RoleAdmin:
	default:
		// unknown roles see nothing
		none := uuid.Nil
		q.PatientID = &none
	}
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 100 {
		return 100
	}
	return limit
}
