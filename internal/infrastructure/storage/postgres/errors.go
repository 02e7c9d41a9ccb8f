package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"ordertx/internal/core/apperror"
)

// SQLSTATE codes mapped to application errors.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeQueryCanceled        = "57014"
	codeReadOnlyTransaction  = "25006"
)

// MapError converts a driver error for the given row into an AppError where
// the SQLSTATE has a meaning for callers. Other errors are wrapped with op.
func MapError(err error, op, entity string, entityID any) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s %s: %w", op, entity, err)
	}

	switch pgErr.Code {
	case codeLockNotAvailable:
		return apperror.NewRowLocked(entity, entityID).WithCause(err)
	case codeUniqueViolation:
		return apperror.NewConflict(entity+" already exists").
			WithDetail("id", entityID).
			WithCause(err)
	case codeForeignKeyViolation:
		return apperror.NewConflict(entity+" references a missing or referenced row").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case codeDeadlockDetected, codeSerializationFailure:
		return apperror.NewConflict("concurrent update, retry the request").
			WithDetail("entity", entity).
			WithCause(err)
	case codeQueryCanceled:
		return apperror.NewDatabase(fmt.Errorf("%s %s: statement timed out: %w", op, entity, err))
	case codeReadOnlyTransaction:
		return apperror.NewInternal(fmt.Errorf("%s %s in read-only transaction: %w", op, entity, err))
	}
	return fmt.Errorf("%s %s: %w", op, entity, err)
}
