package availability

import (
	"time"

	"github.com/google/uuid"
)

// Slot is a doctor-declared block of bookable time, [StartAt, EndAt) in UTC.
type Slot struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	StartAt     time.Time
	EndAt       time.Time
	RRule       *string
	IsRecurring bool
	CreatedAt   time.Time
}

// Overlaps uses the half-open test, so back-to-back slots do not overlap.
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.StartAt.Before(end) && s.EndAt.After(start)
}

func (s Slot) Duration() time.Duration {
	return s.EndAt.Sub(s.StartAt)
}

type CreateSlotInput struct {
	StartAt string
	EndAt   string
	RRule   *string
}
