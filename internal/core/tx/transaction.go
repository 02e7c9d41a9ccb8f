package tx

import (
	"context"
	"sync/atomic"
)

var txSeq atomic.Uint64

// Transaction is the record of one active or suspended unit of work.
//
// A Transaction with a nil handle is a logical scope: work runs without a
// physical transaction (SUPPORTS/NEVER/NOT_SUPPORTED). A nested Transaction
// shares its parent's handle and owns a savepoint inside it.
type Transaction struct {
	id        uint64
	handle    Handle
	savepoint Savepoint
	parent    *Transaction
	suspended *Transaction
	readOnly  bool

	rollbackOnly atomic.Bool
	completed    atomic.Bool
}

func newTransaction(handle Handle, suspended *Transaction, readOnly bool) *Transaction {
	return &Transaction{
		id:        txSeq.Add(1),
		handle:    handle,
		suspended: suspended,
		readOnly:  readOnly,
	}
}

func newNestedTransaction(parent *Transaction, sp Savepoint) *Transaction {
	return &Transaction{
		id:        txSeq.Add(1),
		handle:    parent.handle,
		savepoint: sp,
		parent:    parent,
		suspended: parent,
		readOnly:  parent.readOnly,
	}
}

// ID is a process-unique number used in logs.
func (t *Transaction) ID() uint64 { return t.id }

// Handle returns the physical handle, or nil for a logical scope.
func (t *Transaction) Handle() Handle { return t.handle }

// IsActive reports whether t holds a live physical transaction.
func (t *Transaction) IsActive() bool {
	return t != nil && t.handle != nil && !t.completed.Load()
}

// IsNested reports whether t is a savepoint inside its parent's transaction.
func (t *Transaction) IsNested() bool { return t.parent != nil }

// Parent returns the transaction owning the physical handle of a nested one.
func (t *Transaction) Parent() *Transaction { return t.parent }

// Suspended returns the transaction that was ambient when t began.
func (t *Transaction) Suspended() *Transaction { return t.suspended }

// IsReadOnly reports whether the physical transaction was begun read-only.
func (t *Transaction) IsReadOnly() bool { return t.readOnly }

// IsRollbackOnly reports whether t can only be rolled back.
func (t *Transaction) IsRollbackOnly() bool { return t.rollbackOnly.Load() }

// SetRollbackOnly latches t as rollback-only. There is no way to clear it.
func (t *Transaction) SetRollbackOnly() { t.rollbackOnly.Store(true) }

// IsCompleted reports whether the owner has already committed or rolled back.
func (t *Transaction) IsCompleted() bool { return t.completed.Load() }

func (t *Transaction) markCompleted() { t.completed.Store(true) }

// txKey is the context key for the ambient transaction.
type txKey struct{}

// withTransaction returns a ctx in which t is ambient.
func withTransaction(ctx context.Context, t *Transaction) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

// Current returns the ambient transaction, which may be a logical scope, or nil.
func Current(ctx context.Context) *Transaction {
	if t, ok := ctx.Value(txKey{}).(*Transaction); ok {
		return t
	}
	return nil
}

// Active returns the ambient transaction if it holds a live physical handle.
func Active(ctx context.Context) (*Transaction, bool) {
	t := Current(ctx)
	if t.IsActive() {
		return t, true
	}
	return nil, false
}

// participation is how one Execute call relates to the transaction its work sees.
type participation uint8

const (
	participationNone participation = iota
	participationJoined
	participationOwned
	participationOwnedNested
)

func (p participation) String() string {
	switch p {
	case participationJoined:
		return "joined"
	case participationOwned:
		return "owned"
	case participationOwnedNested:
		return "owned-nested"
	default:
		return "none"
	}
}

// scope is what establish decided for one Execute call.
type scope struct {
	mode      participation
	tx        *Transaction // transaction the work runs in; logical for mode none
	suspended *Transaction // ambient transaction parked for the duration of the call
}

func (s scope) owns() bool {
	return s.mode == participationOwned || s.mode == participationOwnedNested
}

// workContext returns the context handed to work.
func (s scope) workContext(ctx context.Context) context.Context {
	if s.mode == participationJoined {
		return ctx
	}
	return withTransaction(ctx, s.tx)
}
