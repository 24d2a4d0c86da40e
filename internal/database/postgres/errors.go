package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bm-go/internal/bm"
)

// mapPgError classifies pgx errors into the bm error taxonomy.
// Codes: https://www.postgresql.org/docs/current/errcodes-appendix.html
func mapPgError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return bm.NewStoreError(op, bm.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return bm.NewStoreError(op, bm.ErrAlreadyExists, err)
		case pgErr.Code == "23503": // foreign_key_violation
			return bm.NewStoreError(op, bm.ErrNotFound, err)
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization_failure, deadlock_detected
			return bm.NewStoreError(op, bm.ErrConflict, err)
		case pgErr.Code == "55P03": // lock_not_available
			return bm.NewStoreError(op, bm.ErrConflict, err)
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01":
			return bm.NewStoreError(op, bm.ErrStoreUnavailable, err)
		}
	}
	return bm.NewStoreError(op, bm.ErrStoreUnavailable, err)
}
