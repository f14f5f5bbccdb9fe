package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-booking/internal/availability"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrNoteNotFound        = errors.New("note not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// InTx runs fn against a repository bound to one transaction. fn's error
	// rolls the transaction back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	GetSlotByID(ctx context.Context, id uuid.UUID) (*availability.Slot, error)

	// For conflict checks. inactiveStatusIDs are the ids of CANCELLED and NO_SHOW.
	HasActiveOnSlot(ctx context.Context, slotID uuid.UUID, inactiveStatusIDs []int64) (bool, error)
	HasPatientCollision(ctx context.Context, patientID uuid.UUID, start, end time.Time, inactiveStatusIDs []int64) (bool, error)

	// Create returns ErrSlotAlreadyBooked when the one-active-per-slot index fires.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)

	// UpdateStatus applies upd only while the row still has fromStatusID and
	// returns ErrAppointmentNotFound otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, fromStatusID int64, upd StatusUpdate) (*Appointment, error)
	// AttachReminderJobs stores job ids only while the appointment is still
	// active and reports whether it did.
	AttachReminderJobs(ctx context.Context, id uuid.UUID, jobIDs []string) (bool, error)
	ClearReminderJobs(ctx context.Context, id uuid.UUID) error
	// Delete returns the reminder job ids the row held when it was removed.
	Delete(ctx context.Context, id uuid.UUID) ([]string, error)

	Find(ctx context.Context, q Query) ([]AppointmentDetail, error)
	Count(ctx context.Context, q Query) (int64, error)

	AddNote(ctx context.Context, n *Note) error
	GetNote(ctx context.Context, id uuid.UUID) (*Note, error)
	ListNotes(ctx context.Context, appointmentID uuid.UUID) ([]Note, error)
	DeleteNote(ctx context.Context, id uuid.UUID) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
