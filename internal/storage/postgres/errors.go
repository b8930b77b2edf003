package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
)

// wrapError maps driver errors onto the crawler sentinels and tags them with
// the failing operation.
func wrapError(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &crawler.PersistenceError{Op: op, Err: crawler.ErrNotFound}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return &crawler.PersistenceError{
				Op:  op,
				Err: fmt.Errorf("%w (constraint: %s)", crawler.ErrDuplicateKey, pgErr.ConstraintName),
			}
		case "23503": // foreign_key_violation
			return &crawler.PersistenceError{
				Op:  op,
				Err: fmt.Errorf("%w (constraint: %s)", crawler.ErrForeignKeyViolation, pgErr.ConstraintName),
			}
		default:
			return &crawler.PersistenceError{
				Op:  op,
				Err: fmt.Errorf("database error [%s]: %w", pgErr.Code, err),
			}
		}
	}

	return &crawler.PersistenceError{Op: op, Err: err}
}
