package memory

import (
	"context"
	"slices"
	"time"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/id"
	"ordertx/internal/domain/order"
)

const (
	ordersTable     = "orders"
	orderItemsTable = "order_items"
)

var _ order.Repository = (*OrderRepo)(nil)

// OrderRepo stores orders and their items in a Store.
type OrderRepo struct {
	s *Store
}

// NewOrderRepo creates an order repository over s.
func NewOrderRepo(s *Store) *OrderRepo {
	return &OrderRepo{s: s}
}

func (r *OrderRepo) Create(ctx context.Context, o *order.Order) error {
	return r.s.write(ctx, rowKey{ordersTable, o.ID}, func() (func(), error) {
		if _, exists := r.s.orders[o.ID]; exists {
			return nil, apperror.NewConflict("order already exists").WithDetail("id", o.ID)
		}
		row := *o
		row.Items = nil
		r.s.orders[o.ID] = row
		return func() { delete(r.s.orders, o.ID) }, nil
	})
}

func (r *OrderRepo) GetByID(_ context.Context, orderID id.ID) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("order", orderID)
	}
	items := r.s.items[orderID]
	row.Items = make([]*order.Item, len(items))
	for i := range items {
		item := items[i]
		row.Items[i] = &item
	}
	return &row, nil
}

func (r *OrderRepo) UpdateStatus(ctx context.Context, o *order.Order) error {
	return r.s.write(ctx, rowKey{ordersTable, o.ID}, func() (func(), error) {
		prev, ok := r.s.orders[o.ID]
		if !ok {
			return nil, apperror.NewNotFound("order", o.ID)
		}
		next := prev
		next.Status = o.Status
		next.UpdatedAt = time.Now().UTC()
		r.s.orders[o.ID] = next
		return func() { r.s.orders[o.ID] = prev }, nil
	})
}

func (r *OrderRepo) Delete(ctx context.Context, orderID id.ID) error {
	return r.s.write(ctx, rowKey{ordersTable, orderID}, func() (func(), error) {
		prev, ok := r.s.orders[orderID]
		if !ok {
			return nil, apperror.NewNotFound("order", orderID)
		}
		prevItems, hadItems := r.s.items[orderID]
		delete(r.s.orders, orderID)
		delete(r.s.items, orderID)
		return func() {
			r.s.orders[orderID] = prev
			if hadItems {
				r.s.items[orderID] = prevItems
			}
		}, nil
	})
}

func (r *OrderRepo) CreateItem(ctx context.Context, item *order.Item) error {
	return r.s.write(ctx, rowKey{orderItemsTable, item.ID}, func() (func(), error) {
		if _, ok := r.s.orders[item.OrderID]; !ok {
			return nil, apperror.NewNotFound("order", item.OrderID)
		}
		prev, hadItems := r.s.items[item.OrderID]
		r.s.items[item.OrderID] = append(slices.Clip(prev), *item)
		return func() {
			if hadItems {
				r.s.items[item.OrderID] = prev
			} else {
				delete(r.s.items, item.OrderID)
			}
		}, nil
	})
}
