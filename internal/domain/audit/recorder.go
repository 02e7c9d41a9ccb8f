package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appctx "ordertx/internal/core/context"
	"ordertx/internal/core/id"
	"ordertx/internal/core/tx"
	"ordertx/pkg/logger"
)

var (
	recordTx  = tx.NewDescriptor(tx.RequiresNew, tx.WithName("audit.record"))
	historyTx = tx.NewDescriptor(tx.Supports, tx.ReadOnly(), tx.WithName("audit.history"))
)

// Recorder writes audit entries independently of the caller's transaction.
type Recorder struct {
	txm  tx.Executor
	repo Repository
}

// NewRecorder creates a new audit recorder.
func NewRecorder(txm tx.Executor, repo Repository) *Recorder {
	return &Recorder{txm: txm, repo: repo}
}

// Record stores e in a new transaction, suspending any ambient one.
func (r *Recorder) Record(ctx context.Context, e *Entry) error {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ActorID == "" {
		e.ActorID = appctx.GetActorID(ctx)
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}

	return r.txm.Execute(ctx, recordTx, func(ctx context.Context) error {
		return r.repo.Create(ctx, e)
	})
}

// RecordOperation is a convenience for logging one operation and its result.
// Audit failures are logged and swallowed: they must never change the
// outcome of the audited operation.
func (r *Recorder) RecordOperation(
	ctx context.Context,
	entityType string,
	entityID id.ID,
	action Action,
	changes map[string]any,
	cause error,
) {
	entry := &Entry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Outcome:    OutcomeSuccess,
	}
	if cause != nil {
		entry.Outcome = OutcomeFailure
		msg := cause.Error()
		entry.Error = &msg
	}
	if len(changes) > 0 {
		raw, err := json.Marshal(changes)
		if err != nil {
			logger.Warn(ctx, "audit changes not serialisable", "entity_type", entityType, "error", err)
		} else {
			entry.Changes = raw
		}
	}

	if err := r.Record(ctx, entry); err != nil {
		logger.Error(ctx, "audit record failed",
			"entity_type", entityType,
			"entity_id", entityID,
			"action", action,
			"error", err,
		)
	}
}

// History returns the newest entries for an entity.
func (r *Recorder) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return tx.Run(ctx, r.txm, historyTx, func(ctx context.Context) ([]*Entry, error) {
		entries, err := r.repo.ListByEntity(ctx, entityType, entityID, limit)
		if err != nil {
			return nil, fmt.Errorf("list audit entries: %w", err)
		}
		return entries, nil
	})
}
