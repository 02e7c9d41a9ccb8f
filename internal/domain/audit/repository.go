package audit

import (
	"context"

	"ordertx/internal/core/id"
)

// Repository persists audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	// ListByEntity returns the newest entries first.
	ListByEntity(ctx context.Context, entityType string, entityID id.ID, limit int) ([]*Entry, error)
}
