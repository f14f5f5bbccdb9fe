package status

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistent status table.
type Store interface {
	FindByCode(ctx context.Context, code Code) (*Status, error)
	ListAll(ctx context.Context) ([]Status, error)
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanStatus(row pgx.Row) (*Status, error) {
	var s Status
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Description, &s.Color); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownStatus
		}
		return nil, err
	}
	return &s, nil
}

func (s *PgStore) FindByCode(ctx context.Context, code Code) (*Status, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, code, name, description, color
		FROM appointment_statuses
		WHERE code = $1
	`, code)
	return scanStatus(row)
}

func (s *PgStore) ListAll(ctx context.Context) ([]Status, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, description, color
		FROM appointment_statuses
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Status
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}
	return result, rows.Err()
}
