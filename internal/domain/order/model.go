// Package order provides order placement and lifecycle operations.
package order

import (
	"net/mail"
	"strings"
	"time"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/id"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", apperror.NewValidation("unknown order status").WithDetail("status", s)
}

// Order is a customer order.
type Order struct {
	ID            id.ID     `db:"id" json:"id"`
	CustomerName  string    `db:"customer_name" json:"customerName"`
	CustomerEmail string    `db:"customer_email" json:"customerEmail"`
	Status        Status    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`

	Items []*Item `db:"-" json:"items"`
}

// Item is one line of an order.
type Item struct {
	ID        id.ID `db:"id" json:"id"`
	OrderID   id.ID `db:"order_id" json:"orderId"`
	ProductID id.ID `db:"product_id" json:"productId"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// NewOrder creates a pending order.
func NewOrder(customerName, customerEmail string, items ...*Item) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:            id.New(),
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         items,
	}
}

// NewItem creates an order line for a product.
func NewItem(productID id.ID, quantity int) *Item {
	return &Item{ID: id.New(), ProductID: productID, Quantity: quantity}
}

// Validate checks the order before it is placed.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.CustomerName) == "" {
		return apperror.NewValidation("customer name is required")
	}
	if _, err := mail.ParseAddress(o.CustomerEmail); err != nil {
		return apperror.NewValidation("customer email is invalid").WithDetail("email", o.CustomerEmail)
	}
	if len(o.Items) == 0 {
		return apperror.NewValidation("order must contain at least one item")
	}
	for i, it := range o.Items {
		if id.IsNil(it.ProductID) {
			return apperror.NewValidation("item product is required").WithDetail("index", i)
		}
		if it.Quantity <= 0 {
			return apperror.NewValidation("item quantity must be positive").
				WithDetail("index", i).
				WithDetail("quantity", it.Quantity)
		}
	}
	return nil
}

// SetStatus changes the status and touches UpdatedAt.
func (o *Order) SetStatus(st Status) {
	o.Status = st
	o.UpdatedAt = time.Now().UTC()
}
