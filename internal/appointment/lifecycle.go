package appointment

import (
	"errors"
	"fmt"

	"github.com/hackgods/telehealth-booking/internal/auth"
	"github.com/hackgods/telehealth-booking/internal/status"
)

var (
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrAlreadyCancelled        = errors.New("appointment is already cancelled")
	ErrCannotCancelCompleted   = errors.New("cannot cancel a completed appointment")
)

var (
	staff    = []auth.Role{auth.RoleDoctor, auth.RoleAdmin}
	everyone = []auth.Role{auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin}
)

// transitions lists, per current status, the reachable statuses and the roles
// allowed to move there. Participation (assigned doctor, booked patient) is
// checked by the caller.
var transitions = map[status.Code]map[status.Code][]auth.Role{
	status.Pending: {
		status.Confirmed:   staff,
		status.Cancelled:   everyone,
		status.Completed:   staff,
		status.NoShow:      staff,
		status.Rescheduled: staff,
	},
	status.Confirmed: {
		status.Cancelled:   everyone,
		status.Completed:   staff,
		status.NoShow:      staff,
		status.Rescheduled: staff,
	},
	status.Rescheduled: {
		status.Confirmed: staff,
		status.Cancelled: everyone,
	},
}

// CheckTransition reports whether role may move an appointment from one
// status to another. Both UpdateStatus and CancelAppointment go through it.
func CheckTransition(from, to status.Code, role auth.Role) error {
	switch {
	case from == status.Cancelled:
		return ErrAlreadyCancelled
	case from == status.Completed && to == status.Cancelled:
		return ErrCannotCancelCompleted
	case from == to:
		return fmt.Errorf("%w: already %s", ErrInvalidStatusTransition, from)
	}

	roles, ok := transitions[from][to]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
	}
	for _, r := range roles {
		if r == role {
			return nil
		}
	}

	if role == auth.RolePatient {
		return ErrPatientCanOnlyCancel
	}
	return fmt.Errorf("%w: %s may not move %s -> %s", auth.ErrForbidden, role, from, to)
}
