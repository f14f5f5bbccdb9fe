package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsConstraintViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "appointments_one_active_per_slot"}
	overlap := &pgconn.PgError{Code: CodeExclusionViolation, ConstraintName: "availability_slots_no_overlap"}
	serial := &pgconn.PgError{Code: CodeSerializationFailure}

	tests := []struct {
		name       string
		err        error
		code       string
		constraint string
		want       bool
	}{
		{"code and constraint match", unique, CodeUniqueViolation, "appointments_one_active_per_slot", true},
		{"other constraint", unique, CodeUniqueViolation, "users_email_key", false},
		{"other code", unique, CodeExclusionViolation, "appointments_one_active_per_slot", false},
		{"empty constraint matches any", unique, CodeUniqueViolation, "", true},
		{"empty constraint still checks code", serial, CodeUniqueViolation, "", false},
		{"serialization failure", serial, CodeSerializationFailure, "", true},
		{"exclusion", overlap, CodeExclusionViolation, "availability_slots_no_overlap", true},
		{"wrapped", fmt.Errorf("insert slot: %w", overlap), CodeExclusionViolation, "availability_slots_no_overlap", true},
		{"not a postgres error", errors.New("23505"), CodeUniqueViolation, "", false},
		{"nil", nil, CodeUniqueViolation, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConstraintViolation(tt.err, tt.code, tt.constraint))
		})
	}
}
