package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/snipspace/internal/apperror"
)

// translate turns driver errors into the application's error categories.
//
//   - SQLITE_BUSY / SQLITE_LOCKED and context deadlines → apperror.ErrTransient
//   - unique and primary key violations                 → apperror.ErrConflict
//   - anything else is wrapped with the operation name
//
// The original error stays in the chain for logging.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Transient(op, err)
	}

	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		code := se.Code()
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return apperror.Transient(op, err)
		case sqlite3.SQLITE_CONSTRAINT:
			if isUniqueViolation(code, se) {
				return &apperror.AppError{
					Err:     apperror.ErrConflict,
					Message: fmt.Sprintf("%s: duplicate key", op),
					Cause:   err,
				}
			}
		}
	}

	return fmt.Errorf("sqlite: %s: %w", op, err)
}

func isUniqueViolation(code int, se *sqlitedrv.Error) bool {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	// Without extended result codes only the message tells them apart.
	return strings.Contains(se.Error(), "UNIQUE constraint failed")
}

// notFound maps sql.ErrNoRows to apperror.NotFound and everything else
// through translate.
func notFound(err error, resource, id, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(resource, id)
	}
	return translate(op, err)
}
