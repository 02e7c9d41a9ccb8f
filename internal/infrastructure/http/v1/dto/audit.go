package dto

import (
	"encoding/json"
	"time"

	"ordertx/internal/domain/audit"
)

// AuditEntryResponse is the API form of an audit entry.
type AuditEntryResponse struct {
	ID        string          `json:"id"`
	Action    audit.Action    `json:"action"`
	Outcome   audit.Outcome   `json:"outcome"`
	ActorID   string          `json:"actorId"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FromAuditEntries converts entries, newest first as stored.
func FromAuditEntries(entries []*audit.Entry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryResponse{
			ID:        e.ID.String(),
			Action:    e.Action,
			Outcome:   e.Outcome,
			ActorID:   e.ActorID,
			Changes:   e.Changes,
			Error:     e.Error,
			CreatedAt: e.CreatedAt,
		}
	}
	return out
}
