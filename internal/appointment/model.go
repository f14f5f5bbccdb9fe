package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-booking/internal/status"
)

type Modality string

const (
	ModalityOnline   Modality = "online"
	ModalityInPerson Modality = "in_person"
	ModalityHybrid   Modality = "hybrid"
)

func (m Modality) IsValid() bool {
	switch m {
	case ModalityOnline, ModalityInPerson, ModalityHybrid:
		return true
	}
	return false
}

type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	SlotID         *uuid.UUID // nil once the slot has been deleted
	StatusID       int64
	Status         status.Code
	ScheduledAt    time.Time
	DurationMin    int
	Modality       Modality
	CancelReason   *string
	CancelledBy    *uuid.UUID
	CreatedBy      uuid.UUID
	ReminderJobIDs []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMin) * time.Minute)
}

// Person is the joined view of a doctor, patient, or canceller.
type Person struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Specialty *string
}

type SlotRef struct {
	ID      uuid.UUID
	StartAt time.Time
	EndAt   time.Time
}

type AppointmentDetail struct {
	Appointment
	Doctor          *Person
	Patient         *Person
	CancelledByUser *Person
	Slot            *SlotRef
}

type Note struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	Content       string
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type CreateAppointmentInput struct {
	DoctorID uuid.UUID
	SlotID   uuid.UUID
	Modality Modality
}

type UpdateStatusInput struct {
	Status       status.Code
	CancelReason *string
}

// StatusUpdate is what the repository writes on a transition.
type StatusUpdate struct {
	StatusID     int64
	Active       bool
	CancelReason *string
	CancelledBy  *uuid.UUID
}

type CancelResult struct {
	Message     string
	Appointment *Appointment
}

type Order int

const (
	OrderScheduledDesc Order = iota
	OrderScheduledAsc
	OrderUpdatedDesc
)

// Query is the repository-level filter behind every read operation.
// Zero values mean "no constraint"; Limit 0 means unbounded.
type Query struct {
	PatientID       *uuid.UUID
	DoctorID        *uuid.UUID
	StatusIDs       []int64
	ScheduledFrom   *time.Time // scheduled_at >= ScheduledFrom
	ScheduledTo     *time.Time // scheduled_at <= ScheduledTo
	ScheduledBefore *time.Time // scheduled_at < ScheduledBefore
	Order           Order
	Limit           int
	Offset          int
}

type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *status.Code
	From      *time.Time
	To        *time.Time
}

type Pagination struct {
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

type Page struct {
	Data       []AppointmentDetail
	Pagination Pagination
}
