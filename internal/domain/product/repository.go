package product

import (
	"context"

	"ordertx/internal/core/id"
)

// Repository defines persistence for products.
// Implementations read the ambient transaction from ctx.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, productID id.ID) (*Product, error)
	// GetForUpdate reads the product and locks its row until the ambient
	// transaction ends. Without a transaction it behaves like GetByID.
	GetForUpdate(ctx context.Context, productID id.ID) (*Product, error)
	// Update persists name, quantity and price.
	Update(ctx context.Context, p *Product) error
	List(ctx context.Context, limit, offset int) ([]*Product, error)
}
