// Package tx provides transaction management abstractions.
//
// The Coordinator decides, per call, whether a unit of work joins the ambient
// transaction, starts a new one, suspends it, nests inside it with a savepoint,
// or is rejected. The ambient transaction travels in context.Context, so every
// request (or any other independent call chain) has its own stack.
//
// Storage engines plug in through the Resource interface; the implementations
// live in infrastructure/storage.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management used by domain code
// that does not care about propagation policies.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// Nested calls join the transaction already present in ctx.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// Executor runs work under an explicit Descriptor.
// Domain services depend on this interface, not on *Coordinator.
type Executor interface {
	Execute(ctx context.Context, d Descriptor, work func(ctx context.Context) error) error
}

var (
	_ ReadOnlyManager = (*Coordinator)(nil)
	_ Executor        = (*Coordinator)(nil)
)

// RunInTransaction executes fn with REQUIRED propagation.
func (c *Coordinator) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.Execute(ctx, NewDescriptor(Required), fn)
}

// ReadOnly executes fn with REQUIRED propagation in a read-only transaction.
func (c *Coordinator) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.Execute(ctx, NewDescriptor(Required, ReadOnly()), fn)
}

// Run is Execute for work that produces a value.
// The zero value of T is returned whenever the returned error is non-nil.
func Run[T any](ctx context.Context, e Executor, d Descriptor, work func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, d, func(ctx context.Context) error {
		v, err := work(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
