package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound = errors.New("slot not found")
	ErrSlotOverlap  = errors.New("overlapping slot exists")
)

type Repository interface {
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to *time.Time) ([]Slot, error)

	// HasOverlap reports whether doctorID owns a slot intersecting [start, end).
	HasOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error)
	// CreateSlot returns ErrSlotOverlap when the storage exclusion constraint fires.
	CreateSlot(ctx context.Context, slot *Slot) error

	HasActiveAppointments(ctx context.Context, slotID uuid.UUID) (bool, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error
}
