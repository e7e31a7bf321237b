package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/trainhub/tms/apperr"
)

// uniqueViolation is the postgres error code raised when an insert hits a
// unique index or primary key. Constraint enforcement at the store is the
// source of truth for uniqueness; application pre-checks are only an
// optimization, so concurrent duplicates land here.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func errDuplicate(cause error, message string) error {
	return apperr.New(apperr.CodeConflict, message, cause)
}
