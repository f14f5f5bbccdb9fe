package status

import "errors"

// Code is the stable textual identifier of an appointment lifecycle state.
type Code string

const (
	Pending     Code = "PENDING"
	Confirmed   Code = "CONFIRMED"
	Cancelled   Code = "CANCELLED"
	Completed   Code = "COMPLETED"
	Rescheduled Code = "RESCHEDULED"
	NoShow      Code = "NO_SHOW"
)

var ErrUnknownStatus = errors.New("unknown appointment status")

// InactiveCodes are the statuses that release a slot.
var InactiveCodes = []Code{Cancelled, NoShow}

// IsActive reports whether an appointment in this status still holds its slot.
func (c Code) IsActive() bool {
	return c != Cancelled && c != NoShow
}

func (c Code) IsKnown() bool {
	switch c {
	case Pending, Confirmed, Cancelled, Completed, Rescheduled, NoShow:
		return true
	}
	return false
}

type Status struct {
	ID          int64   `json:"id"`
	Code        Code    `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
}
