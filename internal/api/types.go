package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-booking/internal/appointment"
	"github.com/hackgods/telehealth-booking/internal/availability"
	"github.com/hackgods/telehealth-booking/internal/status"
)

type CreateAppointmentRequest struct {
	DoctorID string `json:"doctor_id"`
	SlotID   string `json:"slot_id"`
	Modality string `json:"modality"`
}

type UpdateStatusRequest struct {
	Status       string  `json:"status"`
	CancelReason *string `json:"cancel_reason"`
}

type CancelRequest struct {
	CancelReason string `json:"cancel_reason"`
}

type CreateSlotRequest struct {
	StartAt string  `json:"start_at"`
	EndAt   string  `json:"end_at"`
	RRule   *string `json:"rrule"`
}

type CreateNoteRequest struct {
	Content string `json:"content"`
}

type PersonView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Specialty *string   `json:"specialty,omitempty"`
}

type SlotRefView struct {
	ID      uuid.UUID `json:"id"`
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`
}

type AppointmentView struct {
	ID           uuid.UUID    `json:"id"`
	PatientID    uuid.UUID    `json:"patientId"`
	DoctorID     uuid.UUID    `json:"doctorId"`
	ScheduledAt  time.Time    `json:"scheduledAt"`
	DurationMin  int          `json:"durationMin"`
	Status       status.Code  `json:"status"`
	Modality     string       `json:"modality"`
	CancelReason *string      `json:"cancelReason"`
	CancelledBy  *PersonView  `json:"cancelledBy"`
	Doctor       *PersonView  `json:"doctor,omitempty"`
	Patient      *PersonView  `json:"patient,omitempty"`
	Slot         *SlotRefView `json:"slot"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

type PaginationView struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type PageView struct {
	Data       []AppointmentView `json:"data"`
	Pagination PaginationView    `json:"pagination"`
}

type CancelledView struct {
	ID           uuid.UUID   `json:"id"`
	Status       status.Code `json:"status"`
	CancelReason *string     `json:"cancelReason"`
}

type CancelResponse struct {
	Message     string        `json:"message"`
	Appointment CancelledView `json:"appointment"`
}

type SlotView struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctorId"`
	StartAt     time.Time `json:"startAt"`
	EndAt       time.Time `json:"endAt"`
	RRule       *string   `json:"rrule,omitempty"`
	IsRecurring bool      `json:"isRecurring"`
	CreatedAt   time.Time `json:"createdAt"`
}

type NoteView struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	DoctorID      uuid.UUID `json:"doctorId"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func personView(p *appointment.Person) *PersonView {
	if p == nil {
		return nil
	}
	return &PersonView{ID: p.ID, Name: p.Name, Email: p.Email, Specialty: p.Specialty}
}

func newAppointmentView(a *appointment.Appointment) AppointmentView {
	v := AppointmentView{
		ID:           a.ID,
		PatientID:    a.PatientID,
		DoctorID:     a.DoctorID,
		ScheduledAt:  a.ScheduledAt,
		DurationMin:  a.DurationMin,
		Status:       a.Status,
		Modality:     string(a.Modality),
		CancelReason: a.CancelReason,
	}
	if a.CancelledBy != nil {
		v.CancelledBy = &PersonView{ID: *a.CancelledBy}
	}
	v.CreatedAt = a.CreatedAt
	v.UpdatedAt = a.UpdatedAt
	return v
}

func newDetailView(d *appointment.AppointmentDetail) AppointmentView {
	v := newAppointmentView(&d.Appointment)
	if d.CancelledByUser != nil {
		v.CancelledBy = personView(d.CancelledByUser)
	}
	v.Doctor = personView(d.Doctor)
	v.Patient = personView(d.Patient)
	if d.Slot != nil {
		v.Slot = &SlotRefView{ID: d.Slot.ID, StartAt: d.Slot.StartAt, EndAt: d.Slot.EndAt}
	}
	return v
}

func newDetailViews(list []appointment.AppointmentDetail) []AppointmentView {
	out := make([]AppointmentView, 0, len(list))
	for i := range list {
		out = append(out, newDetailView(&list[i]))
	}
	return out
}

func newSlotView(s *availability.Slot) SlotView {
	return SlotView{
		ID:          s.ID,
		DoctorID:    s.DoctorID,
		StartAt:     s.StartAt,
		EndAt:       s.EndAt,
		RRule:       s.RRule,
		IsRecurring: s.IsRecurring,
		CreatedAt:   s.CreatedAt,
	}
}

func newNoteView(n *appointment.Note) NoteView {
	return NoteView{
		ID:            n.ID,
		AppointmentID: n.AppointmentID,
		DoctorID:      n.DoctorID,
		Content:       n.Content,
		CreatedAt:     n.CreatedAt,
	}
}
