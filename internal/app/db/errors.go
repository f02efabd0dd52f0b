package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by store lookups when no row matches.
// It wraps pgx.ErrNoRows behind a driver-neutral sentinel so callers
// outside the store layer do not import pgx.
var ErrNotFound = errors.New("record not found")

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation (code 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
