package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-booking/internal/auth"
	"github.com/hackgods/telehealth-booking/internal/metrics"
	redisclient "github.com/hackgods/telehealth-booking/internal/redis"
)

var (
	ErrInvalidTimestamp    = errors.New("invalid date format (use RFC 3339 / ISO 8601 UTC)")
	ErrInvalidRange        = errors.New("start must be before end")
	ErrSlotHasAppointments = errors.New("slot has appointments")
	ErrSlotBusy            = errors.New("slot is being modified, please retry")
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	log     *zap.Logger
	metrics *metrics.Collector
}

func NewService(repo Repository, locker redisclient.Locker, log *zap.Logger, m *metrics.Collector) *Service {
	return &Service{
		repo:    repo,
		locker:  locker,
		log:     log,
		metrics: m,
	}
}

// ParseTimestamp accepts RFC 3339 timestamps and normalizes them to UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}
	return t.UTC(), nil
}

// CreateSlot publishes a new slot for the calling doctor. The overlap check
// and insert run under a per-doctor lock; the storage exclusion constraint
// covers a lock that expired mid-flight.
func (s *Service) CreateSlot(ctx context.Context, actor auth.Actor, in CreateSlotInput) (*Slot, error) {
	if actor.Role != auth.RoleDoctor {
		return nil, fmt.Errorf("%w: only doctors can create availability", auth.ErrForbidden)
	}

	start, err := ParseTimestamp(in.StartAt)
	if err != nil {
		return nil, err
	}
	end, err := ParseTimestamp(in.EndAt)
	if err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}

	slot := &Slot{
		ID:       uuid.New(),
		DoctorID: actor.UserID,
		StartAt:  start,
		EndAt:    end,
		RRule:    in.RRule,
		// recurrence rules are stored but not expanded
		IsRecurring: false,
	}

	err = s.locker.WithLock(ctx, redisclient.DoctorLockKey(actor.UserID), func(lockCtx context.Context) error {
		overlap, err := s.repo.HasOverlap(lockCtx, actor.UserID, start, end)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if overlap {
			return ErrSlotOverlap
		}
		return s.repo.CreateSlot(lockCtx, slot)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	s.metrics.SlotsCreatedTotal.Inc()
	s.log.Info("slot created",
		zap.String("slot_id", slot.ID.String()),
		zap.String("doctor_id", slot.DoctorID.String()),
		zap.Time("start_at", slot.StartAt),
		zap.Time("end_at", slot.EndAt),
	)

	return slot, nil
}

// ListSlots returns a doctor's slots starting at or after from and ending at
// or before to, ordered by start.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to *time.Time) ([]Slot, error) {
	slots, err := s.repo.ListByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// DeleteSlot removes a slot owned by the calling doctor unless an active
// appointment still references it. It takes the same lock as booking.
func (s *Service) DeleteSlot(ctx context.Context, actor auth.Actor, slotID uuid.UUID) error {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	if slot.DoctorID != actor.UserID {
		return fmt.Errorf("%w: cannot delete slot of another doctor", auth.ErrForbidden)
	}

	err = s.locker.WithLock(ctx, redisclient.SlotLockKey(slotID), func(lockCtx context.Context) error {
		busy, err := s.repo.HasActiveAppointments(lockCtx, slotID)
		if err != nil {
			return fmt.Errorf("check slot appointments: %w", err)
		}
		if busy {
			return ErrSlotHasAppointments
		}
		return s.repo.DeleteSlot(lockCtx, slotID)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return ErrSlotBusy
		}
		return err
	}

	s.log.Info("slot deleted", zap.String("slot_id", slotID.String()))
	return nil
}
