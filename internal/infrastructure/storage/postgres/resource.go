package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ordertx/internal/core/tx"
	"ordertx/pkg/logger"
)

// Compile-time check that Resource implements tx.Resource.
var _ tx.Resource = (*Resource)(nil)

// ErrForeignHandle is returned when a handle was not begun by this Resource.
var ErrForeignHandle = errors.New("postgres: transaction handle belongs to another resource")

// TxOptions configures every physical transaction begun by a Resource.
type TxOptions struct {
	// StatementTimeout protects against long-running queries (default 30s)
	StatementTimeout time.Duration

	// LockTimeout bounds the wait for a row lock held by another transaction.
	// On expiry Postgres reports lock_not_available, mapped to ROW_LOCKED.
	LockTimeout time.Duration
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		StatementTimeout: 30 * time.Second,
		LockTimeout:      5 * time.Second,
	}
}

// Querier is the part of pgx shared by a pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is the physical transaction handle given to the coordinator.
type Tx struct {
	pgx.Tx
	savepoints int
}

type savepoint struct {
	tx   *Tx
	name string
}

// Resource implements tx.Resource on a pgx pool. Repositories use Querier to
// run statements inside whatever transaction is ambient in ctx.
type Resource struct {
	pool *pgxpool.Pool
	opts TxOptions
}

// NewResource creates a transaction resource over pool.
func NewResource(pool *Pool, opts TxOptions) *Resource {
	return &Resource{pool: pool.Pool, opts: opts}
}

// NewResourceFromRawPool creates a transaction resource from a raw pgxpool.Pool.
func NewResourceFromRawPool(pool *pgxpool.Pool, opts TxOptions) *Resource {
	return &Resource{pool: pool, opts: opts}
}

// Begin starts a transaction and applies the configured timeouts to it.
func (r *Resource) Begin(ctx context.Context, opts tx.BeginOptions) (tx.Handle, error) {
	txOpts := pgx.TxOptions{
		IsoLevel:   isoLevel(opts.Isolation),
		AccessMode: pgx.ReadWrite,
	}
	if opts.ReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}

	pgTx, err := r.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if err := r.applyTimeouts(ctx, pgTx); err != nil {
		if rbErr := pgTx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.Error(ctx, "rollback after failed setup", "error", rbErr)
		}
		return nil, err
	}

	return &Tx{Tx: pgTx}, nil
}

func (r *Resource) applyTimeouts(ctx context.Context, pgTx pgx.Tx) error {
	if r.opts.StatementTimeout > 0 {
		if _, err := pgTx.Exec(ctx, setLocalTimeout("statement_timeout", r.opts.StatementTimeout)); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}
	if r.opts.LockTimeout > 0 {
		if _, err := pgTx.Exec(ctx, setLocalTimeout("lock_timeout", r.opts.LockTimeout)); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}
	return nil
}

func setLocalTimeout(setting string, d time.Duration) string {
	return fmt.Sprintf("SET LOCAL %s = '%dms'", setting, d.Milliseconds())
}

// Commit commits h.
func (r *Resource) Commit(ctx context.Context, h tx.Handle) error {
	t, err := handle(h)
	if err != nil {
		return err
	}
	return t.Commit(ctx)
}

// Rollback rolls h back.
func (r *Resource) Rollback(ctx context.Context, h tx.Handle) error {
	t, err := handle(h)
	if err != nil {
		return err
	}
	return t.Tx.Rollback(ctx)
}

// BeginSavepoint issues SAVEPOINT inside parent.
func (r *Resource) BeginSavepoint(ctx context.Context, parent tx.Handle) (tx.Savepoint, error) {
	t, err := handle(parent)
	if err != nil {
		return nil, err
	}
	t.savepoints++
	sp := &savepoint{tx: t, name: savepointName(t.savepoints)}
	if _, err := t.Exec(ctx, "SAVEPOINT "+sp.name); err != nil {
		return nil, fmt.Errorf("create savepoint: %w", err)
	}
	return sp, nil
}

// ReleaseSavepoint issues RELEASE SAVEPOINT.
func (r *Resource) ReleaseSavepoint(ctx context.Context, s tx.Savepoint) error {
	sp, ok := s.(*savepoint)
	if !ok {
		return ErrForeignHandle
	}
	if _, err := sp.tx.Exec(ctx, "RELEASE SAVEPOINT "+sp.name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// RollbackToSavepoint issues ROLLBACK TO SAVEPOINT.
func (r *Resource) RollbackToSavepoint(ctx context.Context, s tx.Savepoint) error {
	sp, ok := s.(*savepoint)
	if !ok {
		return ErrForeignHandle
	}
	if _, err := sp.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp.name); err != nil {
		return fmt.Errorf("rollback to savepoint: %w", err)
	}
	return nil
}

// GetTx returns the physical transaction ambient in ctx, or nil if none.
func (r *Resource) GetTx(ctx context.Context) *Tx {
	active, ok := tx.Active(ctx)
	if !ok {
		return nil
	}
	t, _ := active.Handle().(*Tx)
	return t
}

// Querier returns the ambient transaction if there is one, otherwise the pool.
// This allows repos to work both inside and outside transactions.
func (r *Resource) Querier(ctx context.Context) Querier {
	if t := r.GetTx(ctx); t != nil {
		return t.Tx
	}
	return r.pool
}

// Ping checks that the database is reachable.
func (r *Resource) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func handle(h tx.Handle) (*Tx, error) {
	t, ok := h.(*Tx)
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %T", ErrForeignHandle, h)
	}
	return t, nil
}

func savepointName(n int) string {
	return pgx.Identifier{fmt.Sprintf("sp_%d", n)}.Sanitize()
}

func isoLevel(level tx.IsolationLevel) pgx.TxIsoLevel {
	switch level {
	case tx.IsolationReadCommitted:
		return pgx.ReadCommitted
	case tx.IsolationRepeatableRead:
		return pgx.RepeatableRead
	case tx.IsolationSerializable:
		return pgx.Serializable
	}
	return ""
}
