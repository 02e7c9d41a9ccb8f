package tx

import "context"

// Handle is an opaque physical transaction owned by a Resource.
type Handle any

// Savepoint is an opaque savepoint marker inside a Handle.
type Savepoint any

// BeginOptions are passed to Resource.Begin.
type BeginOptions struct {
	ReadOnly  bool
	Isolation IsolationLevel
}

// Resource is the storage collaborator. The Coordinator calls it only at
// transaction boundaries and never touches data through it.
//
// Every successful Begin must be followed by exactly one Commit or Rollback of
// the same handle, and every successful BeginSavepoint by exactly one
// ReleaseSavepoint (optionally preceded by RollbackToSavepoint).
type Resource interface {
	Begin(ctx context.Context, opts BeginOptions) (Handle, error)
	Commit(ctx context.Context, h Handle) error
	Rollback(ctx context.Context, h Handle) error

	BeginSavepoint(ctx context.Context, parent Handle) (Savepoint, error)
	ReleaseSavepoint(ctx context.Context, sp Savepoint) error
	RollbackToSavepoint(ctx context.Context, sp Savepoint) error
}
