package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
)

const uniqueViolation = "23505"

// UniqueViolation reports whether err is a unique constraint failure and which constraint raised it.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// MapUnique translates a unique violation on one of the given constraints to its domain error.
// Other errors are returned unchanged.
func MapUnique(err error, byConstraint map[string]error) error {
	if err == nil {
		return nil
	}
	if name, ok := UniqueViolation(err); ok {
		if mapped, found := byConstraint[name]; found {
			return mapped
		}
	}
	return err
}

// NotFound converts sql.ErrNoRows to a typed not-found error for resource.
func NotFound(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(resource)
	}
	return err
}
