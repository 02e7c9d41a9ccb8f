package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/id"
	"ordertx/internal/domain/product"
)

const productsTable = "products"

var _ product.Repository = (*ProductRepo)(nil)

// ProductRepo stores products in a Store.
type ProductRepo struct {
	s *Store
}

// NewProductRepo creates a product repository over s.
func NewProductRepo(s *Store) *ProductRepo {
	return &ProductRepo{s: s}
}

func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	return r.s.write(ctx, rowKey{productsTable, p.ID}, func() (func(), error) {
		if _, exists := r.s.products[p.ID]; exists {
			return nil, apperror.NewConflict("product already exists").WithDetail("id", p.ID)
		}
		r.s.products[p.ID] = *p
		return func() { delete(r.s.products, p.ID) }, nil
	})
}

func (r *ProductRepo) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID)
	}
	return &row, nil
}

func (r *ProductRepo) GetForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	var found *product.Product
	err := r.s.write(ctx, rowKey{productsTable, productID}, func() (func(), error) {
		row, ok := r.s.products[productID]
		if !ok {
			return nil, apperror.NewNotFound("product", productID)
		}
		found = &row
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *ProductRepo) Update(ctx context.Context, p *product.Product) error {
	return r.s.write(ctx, rowKey{productsTable, p.ID}, func() (func(), error) {
		prev, ok := r.s.products[p.ID]
		if !ok {
			return nil, apperror.NewNotFound("product", p.ID)
		}
		next := prev
		next.Name = p.Name
		next.Quantity = p.Quantity
		next.Price = p.Price
		next.UpdatedAt = time.Now().UTC()
		r.s.products[p.ID] = next
		p.UpdatedAt = next.UpdatedAt
		return func() { r.s.products[p.ID] = prev }, nil
	})
}

func (r *ProductRepo) List(_ context.Context, limit, offset int) ([]*product.Product, error) {
	r.s.mu.Lock()
	rows := make([]product.Product, 0, len(r.s.products))
	for _, row := range r.s.products {
		rows = append(rows, row)
	}
	r.s.mu.Unlock()

	slices.SortFunc(rows, func(a, b product.Product) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	if offset >= len(rows) {
		return []*product.Product{}, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	out := make([]*product.Product, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}
