package order

import (
	"context"

	"ordertx/internal/core/id"
)

// Repository persists orders and their items.
// Implementations read the ambient transaction from ctx.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// GetByID loads the order with its items.
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)
	UpdateStatus(ctx context.Context, o *Order) error
	// Delete removes the order and its items.
	Delete(ctx context.Context, orderID id.ID) error

	CreateItem(ctx context.Context, item *Item) error
}
