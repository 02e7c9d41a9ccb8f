// Package audit records an append-only trail of business operations.
//
// Entries are written in their own transaction (REQUIRES_NEW), so an attempt
// that is later rolled back still leaves its audit entry behind.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"ordertx/internal/core/id"
)

// Action is the audited operation.
type Action string

const (
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionPlaceOrder  Action = "place_order"
	ActionAdjustStock Action = "adjust_stock"
)

// Outcome tells whether the audited operation succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is one audit record.
type Entry struct {
	ID         id.ID           `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entityType"`
	EntityID   id.ID           `db:"entity_id" json:"entityId"`
	Action     Action          `db:"action" json:"action"`
	Outcome    Outcome         `db:"outcome" json:"outcome"`
	ActorID    string          `db:"actor_id" json:"actorId"`
	Changes    json.RawMessage `db:"changes" json:"changes,omitempty"`
	Error      *string         `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// Diff calculates the difference between old and new entity states.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = map[string]any{"old": nil, "new": newVal}
		} else if fmt.Sprint(oldVal) != fmt.Sprint(newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}

	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}
