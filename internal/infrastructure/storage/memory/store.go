// Package memory provides an in-process storage backend.
//
// Store implements tx.Resource with an undo log per transaction, savepoints
// as marks in that log and exclusive row locks held until the owning
// transaction ends. Reads are not isolated: they see the latest written
// state, committed or not. It backs tests and the STORAGE=memory mode.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/id"
	"ordertx/internal/core/tx"
	"ordertx/internal/domain/audit"
	"ordertx/internal/domain/order"
	"ordertx/internal/domain/product"
)

var (
	// ErrReadOnlyTransaction is returned for writes inside a read-only transaction.
	ErrReadOnlyTransaction = errors.New("memory: write in read-only transaction")
	// ErrForeignHandle is returned when the ambient transaction was not begun by this Store.
	ErrForeignHandle = errors.New("memory: transaction handle belongs to another resource")
	// ErrTransactionDone is returned when a handle is used after commit or rollback.
	ErrTransactionDone = errors.New("memory: transaction already completed")
)

var _ tx.Resource = (*Store)(nil)

type rowKey struct {
	table string
	id    id.ID
}

type rowLock struct {
	owner    *memTx
	released chan struct{}
}

type memTx struct {
	seq      uint64
	readOnly bool
	undo     []func()
	locks    []rowKey
	done     bool
}

type memSavepoint struct {
	tx       *memTx
	undoMark int
	lockMark int
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long a writer waits for a row lock held by
// another transaction. Zero waits until ctx is done.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// Store holds all tables in memory.
type Store struct {
	mu          sync.Mutex
	lockTimeout time.Duration
	seq         uint64

	products map[id.ID]product.Product
	orders   map[id.ID]order.Order
	items    map[id.ID][]order.Item
	audit    []audit.Entry
	locks    map[rowKey]*rowLock
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		products: make(map[id.ID]product.Product),
		orders:   make(map[id.ID]order.Order),
		items:    make(map[id.ID][]order.Item),
		locks:    make(map[rowKey]*rowLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin starts a transaction.
func (s *Store) Begin(_ context.Context, opts tx.BeginOptions) (tx.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return &memTx{seq: s.seq, readOnly: opts.ReadOnly}, nil
}

// Commit keeps the writes of h and releases its locks.
func (s *Store) Commit(_ context.Context, h tx.Handle) error {
	t, err := s.handle(h)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return ErrTransactionDone
	}
	t.done = true
	t.undo = nil
	s.unlockFrom(t, 0)
	return nil
}

// Rollback undoes the writes of h and releases its locks.
func (s *Store) Rollback(_ context.Context, h tx.Handle) error {
	t, err := s.handle(h)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return ErrTransactionDone
	}
	t.done = true
	s.undoFrom(t, 0)
	s.unlockFrom(t, 0)
	return nil
}

// BeginSavepoint marks the current position of parent's undo log.
func (s *Store) BeginSavepoint(_ context.Context, parent tx.Handle) (tx.Savepoint, error) {
	t, err := s.handle(parent)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return nil, ErrTransactionDone
	}
	return &memSavepoint{tx: t, undoMark: len(t.undo), lockMark: len(t.locks)}, nil
}

// ReleaseSavepoint forgets the mark; the writes stay with the transaction.
func (s *Store) ReleaseSavepoint(_ context.Context, sp tx.Savepoint) error {
	m, ok := sp.(*memSavepoint)
	if !ok {
		return ErrForeignHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.tx.done {
		return ErrTransactionDone
	}
	return nil
}

// RollbackToSavepoint undoes the writes made after sp and releases the row
// locks taken after it.
func (s *Store) RollbackToSavepoint(_ context.Context, sp tx.Savepoint) error {
	m, ok := sp.(*memSavepoint)
	if !ok {
		return ErrForeignHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.tx.done {
		return ErrTransactionDone
	}
	s.undoFrom(m.tx, m.undoMark)
	s.unlockFrom(m.tx, m.lockMark)
	return nil
}

// LockedRows reports how many row locks are currently held.
func (s *Store) LockedRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// Ping always succeeds; it lets the store back a readiness probe.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) handle(h tx.Handle) (*memTx, error) {
	t, ok := h.(*memTx)
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %T", ErrForeignHandle, h)
	}
	return t, nil
}

// current returns the memTx of the ambient transaction, or nil when ctx
// carries no active physical transaction.
func (s *Store) current(ctx context.Context) (*memTx, error) {
	active, ok := tx.Active(ctx)
	if !ok {
		return nil, nil
	}
	return s.handle(active.Handle())
}

// undoFrom replays t.undo[mark:] newest first. Caller holds s.mu.
func (s *Store) undoFrom(t *memTx, mark int) {
	for i := len(t.undo) - 1; i >= mark; i-- {
		t.undo[i]()
	}
	t.undo = t.undo[:mark]
}

// unlockFrom releases t.locks[mark:]. Caller holds s.mu.
func (s *Store) unlockFrom(t *memTx, mark int) {
	for _, key := range t.locks[mark:] {
		if l, ok := s.locks[key]; ok && l.owner == t {
			delete(s.locks, key)
			close(l.released)
		}
	}
	t.locks = slices.Clip(t.locks[:mark])
}

// write runs fn under the row lock of key. Inside a transaction the lock is
// kept until it ends and the returned undo func is logged; outside of one
// the write applies immediately once no transaction holds the row.
func (s *Store) write(ctx context.Context, key rowKey, fn func() (undo func(), err error)) error {
	t, err := s.current(ctx)
	if err != nil {
		return err
	}
	if t != nil && t.readOnly {
		return ErrReadOnlyTransaction
	}

	return s.withRowLock(ctx, t, key, func() error {
		undo, err := fn()
		if err != nil {
			return err
		}
		if t != nil && undo != nil {
			t.undo = append(t.undo, undo)
		}
		return nil
	})
}

// withRowLock waits until key is free or owned by t, takes it for t (if t is
// not nil) and runs fn while holding s.mu.
func (s *Store) withRowLock(ctx context.Context, t *memTx, key rowKey, fn func() error) error {
	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		s.mu.Lock()
		if t != nil && t.done {
			s.mu.Unlock()
			return ErrTransactionDone
		}
		held, ok := s.locks[key]
		if !ok || held.owner == t {
			if !ok && t != nil {
				s.locks[key] = &rowLock{owner: t, released: make(chan struct{})}
				t.locks = append(t.locks, key)
			}
			err := fn()
			s.mu.Unlock()
			return err
		}
		released := held.released
		s.mu.Unlock()

		select {
		case <-released:
		case <-timeout:
			return apperror.NewRowLocked(key.table, key.id)
		case <-ctx.Done():
			return apperror.NewRowLocked(key.table, key.id).WithCause(ctx.Err())
		}
	}
}
