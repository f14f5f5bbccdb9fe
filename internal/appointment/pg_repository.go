package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telehealth-booking/internal/availability"
	"github.com/hackgods/telehealth-booking/internal/db"
)

const oneActivePerSlotIndex = "appointments_one_active_per_slot"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

// InTx runs booking checks and the insert in one serializable transaction.
// A serialization failure surfaces as ErrSlotBeingBooked so the client retries.
func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	if r.pool == nil {
		// already inside a transaction
		return fn(ctx, r)
	}

	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(ctx, &PgRepository{q: tx})
	})
	return txError(err)
}

// txError maps a serialization failure, raised by any statement or the
// commit, to ErrSlotBeingBooked.
func txError(err error) error {
	if db.IsConstraintViolation(err, db.CodeSerializationFailure, "") {
		return ErrSlotBeingBooked
	}
	return err
}

// Helpers

const apptColumns = `a.id, a.patient_id, a.doctor_id, a.slot_id, a.status_id, s.code,
	a.scheduled_at, a.duration_min, a.modality, a.cancel_reason, a.cancelled_by,
	a.created_by, a.reminder_job_ids, a.created_at, a.updated_at`

const detailColumns = apptColumns + `,
	d.id, d.first_name, d.last_name, d.email, d.specialty,
	p.id, p.first_name, p.last_name, p.email,
	c.id, c.first_name, c.last_name, c.email,
	sl.id, sl.start_at, sl.end_at`

const detailFrom = `
	FROM appointments a
	JOIN appointment_statuses s ON s.id = a.status_id
	LEFT JOIN users d ON d.id = a.doctor_id
	LEFT JOIN users p ON p.id = a.patient_id
	LEFT JOIN users c ON c.id = a.cancelled_by
	LEFT JOIN availability_slots sl ON sl.id = a.slot_id`

func apptDest(a *Appointment) []any {
	return []any{
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.StatusID,
		&a.Status,
		&a.ScheduledAt,
		&a.DurationMin,
		&a.Modality,
		&a.CancelReason,
		&a.CancelledBy,
		&a.CreatedBy,
		&a.ReminderJobIDs,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func normalizeTimes(a *Appointment) {
	a.ScheduledAt = a.ScheduledAt.UTC()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(apptDest(&a)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	normalizeTimes(&a)
	return &a, nil
}

type nullablePerson struct {
	id        *uuid.UUID
	first     *string
	last      *string
	email     *string
	specialty *string
}

func (p nullablePerson) toPerson() *Person {
	if p.id == nil {
		return nil
	}
	name := strings.TrimSpace(deref(p.first) + " " + deref(p.last))
	return &Person{ID: *p.id, Name: name, Email: deref(p.email), Specialty: p.specialty}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var (
		d                  AppointmentDetail
		doc, pat, canc     nullablePerson
		slotID             *uuid.UUID
		slotStart, slotEnd *time.Time
	)

	dest := apptDest(&d.Appointment)
	dest = append(dest,
		&doc.id, &doc.first, &doc.last, &doc.email, &doc.specialty,
		&pat.id, &pat.first, &pat.last, &pat.email,
		&canc.id, &canc.first, &canc.last, &canc.email,
		&slotID, &slotStart, &slotEnd,
	)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	normalizeTimes(&d.Appointment)

	d.Doctor = doc.toPerson()
	d.Patient = pat.toPerson()
	d.CancelledByUser = canc.toPerson()
	if slotID != nil && slotStart != nil && slotEnd != nil {
		d.Slot = &SlotRef{ID: *slotID, StartAt: slotStart.UTC(), EndAt: slotEnd.UTC()}
	}
	return &d, nil
}

// Interface methods

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*availability.Slot, error) {
	var s availability.Slot
	err := r.q.QueryRow(ctx, `
		SELECT id, doctor_id, start_at, end_at, rrule, is_recurring, created_at
		FROM availability_slots
		WHERE id = $1
	`, id).Scan(&s.ID, &s.DoctorID, &s.StartAt, &s.EndAt, &s.RRule, &s.IsRecurring, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, availability.ErrSlotNotFound
		}
		return nil, err
	}
	s.StartAt = s.StartAt.UTC()
	s.EndAt = s.EndAt.UTC()
	return &s, nil
}

func (r *PgRepository) HasActiveOnSlot(ctx context.Context, slotID uuid.UUID, inactiveStatusIDs []int64) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE slot_id = $1
			  AND status_id <> ALL($2::bigint[])
		)
	`, slotID, inactiveStatusIDs).Scan(&exists)
	return exists, err
}

func (r *PgRepository) HasPatientCollision(ctx context.Context, patientID uuid.UUID, start, end time.Time, inactiveStatusIDs []int64) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1
			  AND status_id <> ALL($4::bigint[])
			  AND scheduled_at < $3
			  AND scheduled_at + make_interval(mins => duration_min) > $2
		)
	`, patientID, start, end, inactiveStatusIDs).Scan(&exists)
	return exists, err
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) error {
	if a.ReminderJobIDs == nil {
		a.ReminderJobIDs = []string{}
	}

	err := r.q.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, slot_id, status_id, active, scheduled_at,
			duration_min, modality, created_by, reminder_job_ids, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.DoctorID, a.SlotID, a.StatusID, a.Status.IsActive(), a.ScheduledAt,
		a.DurationMin, a.Modality, a.CreatedBy, a.ReminderJobIDs,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsConstraintViolation(err, db.CodeUniqueViolation, oneActivePerSlotIndex) {
			return ErrSlotAlreadyBooked
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments a
		JOIN appointment_statuses s ON s.id = a.status_id
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.q.QueryRow(ctx, `SELECT `+detailColumns+detailFrom+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, fromStatusID int64, upd StatusUpdate) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		WITH a AS (
			UPDATE appointments
			SET status_id     = $3,
			    active        = $4,
			    cancel_reason = $5,
			    cancelled_by  = $6,
			    updated_at    = now()
			WHERE id = $1
			  AND status_id = $2
			RETURNING *
		)
		SELECT `+apptColumns+`
		FROM a
		JOIN appointment_statuses s ON s.id = a.status_id
	`, id, fromStatusID, upd.StatusID, upd.Active, upd.CancelReason, upd.CancelledBy)

	return scanAppointment(row)
}

func (r *PgRepository) AttachReminderJobs(ctx context.Context, id uuid.UUID, jobIDs []string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments SET reminder_job_ids = $2 WHERE id = $1 AND active
	`, id, jobIDs)
	if err != nil {
		return false, fmt.Errorf("store reminder jobs: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) ClearReminderJobs(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		UPDATE appointments SET reminder_job_ids = '{}' WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear reminder jobs: %w", err)
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	var jobIDs []string
	err := r.q.QueryRow(ctx, `
		DELETE FROM appointments WHERE id = $1 RETURNING reminder_job_ids
	`, id).Scan(&jobIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("delete appointment: %w", err)
	}
	return jobIDs, nil
}

func buildWhere(q Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.PatientID != nil {
		add("a.patient_id = $%d", *q.PatientID)
	}
	if q.DoctorID != nil {
		add("a.doctor_id = $%d", *q.DoctorID)
	}
	if len(q.StatusIDs) > 0 {
		add("a.status_id = ANY($%d::bigint[])", q.StatusIDs)
	}
	if q.ScheduledFrom != nil {
		add("a.scheduled_at >= $%d", *q.ScheduledFrom)
	}
	if q.ScheduledTo != nil {
		add("a.scheduled_at <= $%d", *q.ScheduledTo)
	}
	if q.ScheduledBefore != nil {
		add("a.scheduled_at < $%d", *q.ScheduledBefore)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(o Order) string {
	switch o {
	case OrderScheduledAsc:
		return " ORDER BY a.scheduled_at ASC, a.id"
	case OrderUpdatedDesc:
		return " ORDER BY a.updated_at DESC, a.id"
	default:
		return " ORDER BY a.scheduled_at DESC, a.id"
	}
}

func (r *PgRepository) Find(ctx context.Context, q Query) ([]AppointmentDetail, error) {
	where, args := buildWhere(q)
	sql := `SELECT ` + detailColumns + detailFrom + where + orderClause(q.Order)

	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) Count(ctx context.Context, q Query) (int64, error) {
	where, args := buildWhere(q)
	var n int64
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM appointments a`+where, args...).Scan(&n)
	return n, err
}

func (r *PgRepository) AddNote(ctx context.Context, n *Note) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO appointment_notes (id, appointment_id, doctor_id, content, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at
	`, n.ID, n.AppointmentID, n.DoctorID, n.Content).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func scanNote(row pgx.Row) (*Note, error) {
	var n Note
	if err := row.Scan(&n.ID, &n.AppointmentID, &n.DoctorID, &n.Content, &n.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *PgRepository) GetNote(ctx context.Context, id uuid.UUID) (*Note, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, appointment_id, doctor_id, content, created_at
		FROM appointment_notes
		WHERE id = $1
	`, id)
	return scanNote(row)
}

func (r *PgRepository) ListNotes(ctx context.Context, appointmentID uuid.UUID) ([]Note, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, appointment_id, doctor_id, content, created_at
		FROM appointment_notes
		WHERE appointment_id = $1
		ORDER BY created_at ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

func (r *PgRepository) DeleteNote(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointment_notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoteNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
