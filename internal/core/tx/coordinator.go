package tx

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ordertx/pkg/logger"
)

var tracer = otel.Tracer("ordertx/tx")

// Coordinator applies propagation policies on top of a Resource.
//
// The ambient transaction is read from and written to context.Context only;
// the Coordinator itself is stateless and safe for concurrent use.
type Coordinator struct {
	resource Resource
}

// NewCoordinator creates a coordinator over the given resource.
func NewCoordinator(resource Resource) *Coordinator {
	return &Coordinator{resource: resource}
}

// Execute runs work according to d's propagation policy.
//
// Errors returned by work are always returned unchanged (possibly joined with a
// boundary failure, see ErrTransactionRolledBack and SystemError). The caller's
// ctx is never modified, so whatever was ambient before the call is ambient
// again after it, whichever way work ended.
func (c *Coordinator) Execute(ctx context.Context, d Descriptor, work func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "tx."+d.Name(),
		trace.WithAttributes(
			attribute.String("tx.propagation", d.Propagation().String()),
			attribute.Bool("tx.read_only", d.IsReadOnly()),
		))
	defer span.End()

	s, err := c.establish(ctx, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(
		attribute.String("tx.participation", s.mode.String()),
		attribute.Int64("tx.id", int64(s.tx.ID())),
	)

	err = c.run(ctx, d, s, work)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// establish applies the propagation table. Nothing is begun when it fails.
func (c *Coordinator) establish(ctx context.Context, d Descriptor) (scope, error) {
	ambient, _ := Active(ctx)

	switch d.Propagation() {
	case Required:
		if ambient != nil {
			return c.join(ambient), nil
		}
		return c.begin(ctx, d, nil)

	case RequiresNew:
		return c.begin(ctx, d, ambient)

	case Supports:
		if ambient != nil {
			return c.join(ambient), nil
		}
		return c.none(nil), nil

	case NotSupported:
		return c.none(ambient), nil

	case Mandatory:
		if ambient == nil {
			return scope{}, illegalState("no existing transaction found for %s propagation (%s)", d.Propagation(), d.Name())
		}
		return c.join(ambient), nil

	case Never:
		if ambient != nil {
			return scope{}, illegalState("existing transaction %d found for %s propagation (%s)", ambient.ID(), d.Propagation(), d.Name())
		}
		return c.none(nil), nil

	case Nested:
		if ambient != nil {
			return c.savepoint(ctx, d, ambient)
		}
		return c.begin(ctx, d, nil)
	}

	return scope{}, fmt.Errorf("unsupported propagation %s", d.Propagation())
}

func (c *Coordinator) join(ambient *Transaction) scope {
	return scope{mode: participationJoined, tx: ambient}
}

func (c *Coordinator) none(suspended *Transaction) scope {
	return scope{
		mode:      participationNone,
		tx:        newTransaction(nil, suspended, false),
		suspended: suspended,
	}
}

func (c *Coordinator) begin(ctx context.Context, d Descriptor, suspended *Transaction) (scope, error) {
	h, err := c.resource.Begin(ctx, BeginOptions{ReadOnly: d.IsReadOnly(), Isolation: d.Isolation()})
	if err != nil {
		return scope{}, systemError(PhaseBegin, err)
	}
	t := newTransaction(h, suspended, d.IsReadOnly())

	log := logger.FromContext(ctx)
	if suspended != nil {
		log.Debugw("transaction suspended", "tx_id", suspended.ID(), "by", t.ID())
	}
	log.Debugw("transaction begun", "tx_id", t.ID(), "name", d.Name(), "propagation", d.Propagation().String())

	return scope{mode: participationOwned, tx: t, suspended: suspended}, nil
}

func (c *Coordinator) savepoint(ctx context.Context, d Descriptor, ambient *Transaction) (scope, error) {
	sp, err := c.resource.BeginSavepoint(ctx, ambient.Handle())
	if err != nil {
		return scope{}, systemError(PhaseSavepoint, err)
	}
	t := newNestedTransaction(ambient, sp)
	logger.FromContext(ctx).Debugw("savepoint created", "tx_id", t.ID(), "parent_tx_id", ambient.ID(), "name", d.Name())
	return scope{mode: participationOwnedNested, tx: t}, nil
}

// run executes work and completes the scope on every exit path, including a
// panic inside work, which is re-raised after the rollback.
func (c *Coordinator) run(ctx context.Context, d Descriptor, s scope, work func(ctx context.Context) error) error {
	finished := false
	defer func() {
		if finished {
			return
		}
		r := recover()
		cause := fmt.Errorf("panic in transactional work: %v", r)
		if r == nil {
			// runtime.Goexit, e.g. t.FailNow inside work.
			cause = errors.New("transactional work exited without returning")
		}
		if err := c.complete(ctx, s, outcome{err: cause, rollback: true}); err != nil && err != cause {
			logger.Error(ctx, "completing transaction after abnormal exit failed", "tx_id", s.tx.ID(), "error", err)
		}
		if r != nil {
			panic(r)
		}
	}()

	err := work(s.workContext(ctx))
	finished = true
	return c.complete(ctx, s, d.classify(err))
}

// complete performs the commit/rollback decision for one scope.
func (c *Coordinator) complete(ctx context.Context, s scope, o outcome) error {
	ctx = context.WithoutCancel(ctx)
	defer c.resume(ctx, s)

	switch s.mode {
	case participationNone:
		return o.err

	case participationJoined:
		if o.failed() && o.rollback {
			s.tx.SetRollbackOnly()
			logger.FromContext(ctx).Debugw("transaction marked rollback-only", "tx_id", s.tx.ID(), "error", o.err)
		}
		return o.err
	}

	defer s.tx.markCompleted()

	if o.failed() && o.rollback {
		s.tx.SetRollbackOnly()
		return joinErrors(o.err, c.rollback(ctx, s.tx))
	}

	if s.tx.IsRollbackOnly() {
		rbErr := c.rollback(ctx, s.tx)
		return joinErrors(o.err, fmt.Errorf("%w (tx %d)", ErrTransactionRolledBack, s.tx.ID()), rbErr)
	}

	return joinErrors(o.err, c.commit(ctx, s.tx))
}

func (c *Coordinator) commit(ctx context.Context, t *Transaction) error {
	log := logger.FromContext(ctx)

	if t.IsNested() {
		if err := c.resource.ReleaseSavepoint(ctx, t.savepoint); err != nil {
			log.Errorw("release savepoint failed", "tx_id", t.ID(), "error", err)
			return systemError(PhaseReleaseSavepoint, err)
		}
		log.Debugw("savepoint released", "tx_id", t.ID())
		return nil
	}

	if err := c.resource.Commit(ctx, t.handle); err != nil {
		log.Errorw("commit failed", "tx_id", t.ID(), "error", err)
		// The resource may still hold the transaction open; give it back.
		if rbErr := c.resource.Rollback(ctx, t.handle); rbErr != nil {
			log.Debugw("rollback after failed commit", "tx_id", t.ID(), "error", rbErr)
		}
		return systemError(PhaseCommit, err)
	}
	log.Debugw("transaction committed", "tx_id", t.ID())
	return nil
}

func (c *Coordinator) rollback(ctx context.Context, t *Transaction) error {
	log := logger.FromContext(ctx)

	if t.IsNested() {
		var errs []error
		if err := c.resource.RollbackToSavepoint(ctx, t.savepoint); err != nil {
			log.Errorw("rollback to savepoint failed", "tx_id", t.ID(), "error", err)
			errs = append(errs, systemError(PhaseRollbackToSavepoint, err))
		}
		if err := c.resource.ReleaseSavepoint(ctx, t.savepoint); err != nil {
			log.Errorw("release savepoint failed", "tx_id", t.ID(), "error", err)
			errs = append(errs, systemError(PhaseReleaseSavepoint, err))
		}
		if len(errs) == 0 {
			log.Debugw("rolled back to savepoint", "tx_id", t.ID())
		}
		return errors.Join(errs...)
	}

	if err := c.resource.Rollback(ctx, t.handle); err != nil {
		log.Errorw("rollback failed", "tx_id", t.ID(), "error", err)
		return systemError(PhaseRollback, err)
	}
	log.Debugw("transaction rolled back", "tx_id", t.ID())
	return nil
}

// resume reports that the suspended transaction is ambient again. The caller's
// ctx already carries it, so there is nothing to reinstate physically.
func (c *Coordinator) resume(ctx context.Context, s scope) {
	if s.suspended != nil {
		logger.FromContext(ctx).Debugw("transaction resumed", "tx_id", s.suspended.ID())
	}
}
