// Package product provides the product catalogue and its stock levels.
package product

import (
	"strings"
	"time"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/id"
	"ordertx/internal/core/types"
)

// Product is a sellable item with an on-hand quantity.
type Product struct {
	ID        id.ID       `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Quantity  int         `db:"quantity" json:"quantity"`
	Price     types.Money `db:"price" json:"price"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `db:"updated_at" json:"updatedAt"`
}

// NewProduct creates a product with a fresh ID.
func NewProduct(name string, quantity int, price types.Money) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:        id.New(),
		Name:      name,
		Quantity:  quantity,
		Price:     price,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks field-level invariants.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperror.NewValidation("product name is required")
	}
	if p.Quantity < 0 {
		return apperror.NewValidation("product quantity must not be negative").
			WithDetail("quantity", p.Quantity)
	}
	if p.Price.IsNegative() {
		return apperror.NewValidation("product price must not be negative").
			WithDetail("price", p.Price.String())
	}
	if !types.HasMoneyScale(p.Price) {
		return apperror.NewValidation("product price has too many decimal places").
			WithDetail("price", p.Price.String())
	}
	return nil
}

// Withdraw takes qty units out of stock.
func (p *Product) Withdraw(qty int) error {
	if qty <= 0 {
		return apperror.NewValidation("quantity must be positive").WithDetail("quantity", qty)
	}
	if qty > p.Quantity {
		return apperror.NewInsufficientStock(p.ID.String(), qty, p.Quantity)
	}
	p.Quantity -= qty
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Deposit puts qty units into stock.
func (p *Product) Deposit(qty int) error {
	if qty <= 0 {
		return apperror.NewValidation("quantity must be positive").WithDetail("quantity", qty)
	}
	p.Quantity += qty
	p.UpdatedAt = time.Now().UTC()
	return nil
}
