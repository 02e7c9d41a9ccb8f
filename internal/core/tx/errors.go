package tx

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransactionState is returned when the propagation policy is
	// incompatible with the ambient state (MANDATORY without a transaction,
	// NEVER with one). Work is not run.
	ErrIllegalTransactionState = errors.New("illegal transaction state")

	// ErrTransactionRolledBack is returned when the owner of a transaction
	// wanted to commit but the transaction had been marked rollback-only.
	ErrTransactionRolledBack = errors.New("transaction rolled back because it has been marked as rollback-only")

	// ErrTransactionSystem matches every *SystemError.
	ErrTransactionSystem = errors.New("transaction system error")
)

// Phase names the resource operation that failed.
type Phase string

const (
	PhaseBegin               Phase = "begin"
	PhaseCommit              Phase = "commit"
	PhaseRollback            Phase = "rollback"
	PhaseSavepoint           Phase = "savepoint"
	PhaseReleaseSavepoint    Phase = "release savepoint"
	PhaseRollbackToSavepoint Phase = "rollback to savepoint"
)

// SystemError reports a failure of the underlying resource at a transaction
// boundary, independent of the outcome of the work itself.
type SystemError struct {
	Phase Phase
	Err   error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Phase, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransactionSystem) true for any SystemError.
func (e *SystemError) Is(target error) bool {
	return target == ErrTransactionSystem
}

func systemError(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	return &SystemError{Phase: phase, Err: err}
}

func illegalState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalTransactionState, fmt.Sprintf(format, args...))
}

// joinErrors returns primary untouched when there is nothing to add, so the
// caller's failure keeps its identity on the common path.
func joinErrors(primary error, extra ...error) error {
	var rest []error
	for _, e := range extra {
		if e != nil {
			rest = append(rest, e)
		}
	}
	if len(rest) == 0 {
		return primary
	}
	if primary == nil && len(rest) == 1 {
		return rest[0]
	}
	return errors.Join(append([]error{primary}, rest...)...)
}
