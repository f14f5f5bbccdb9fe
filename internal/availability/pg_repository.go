package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telehealth-booking/internal/db"
)

const overlapConstraint = "availability_slots_no_overlap"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	q querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{q: pool}
}

const slotColumns = `id, doctor_id, start_at, end_at, rrule, is_recurring, created_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartAt,
		&s.EndAt,
		&s.RRule,
		&s.IsRecurring,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.StartAt = s.StartAt.UTC()
	s.EndAt = s.EndAt.UTC()
	return &s, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to *time.Time) ([]Slot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE doctor_id = $1
		  AND ($2::timestamptz IS NULL OR start_at >= $2)
		  AND ($3::timestamptz IS NULL OR end_at <= $3)
		ORDER BY start_at ASC
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) HasOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM availability_slots
			WHERE doctor_id = $1
			  AND start_at < $3
			  AND end_at > $2
		)
	`, doctorID, start, end).Scan(&exists)
	return exists, err
}

func (r *PgRepository) CreateSlot(ctx context.Context, slot *Slot) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO availability_slots (id, doctor_id, start_at, end_at, rrule, is_recurring, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at
	`, slot.ID, slot.DoctorID, slot.StartAt, slot.EndAt, slot.RRule, slot.IsRecurring)

	if err := row.Scan(&slot.CreatedAt); err != nil {
		if db.IsConstraintViolation(err, db.CodeExclusionViolation, overlapConstraint) {
			return ErrSlotOverlap
		}
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (r *PgRepository) HasActiveAppointments(ctx context.Context, slotID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE slot_id = $1 AND active)
	`, slotID).Scan(&exists)
	return exists, err
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}
