package dto

import (
	"time"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/id"
	"ordertx/internal/domain/order"
)

// OrderItemRequest is one line of an order request.
type OrderItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// PlaceOrderRequest is the body of POST /orders.
type PlaceOrderRequest struct {
	CustomerName  string             `json:"customerName" binding:"required"`
	CustomerEmail string             `json:"customerEmail" binding:"required"`
	Items         []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ToDomain builds a pending order from the request.
func (r PlaceOrderRequest) ToDomain() (*order.Order, error) {
	items := make([]*order.Item, 0, len(r.Items))
	for i, it := range r.Items {
		productID, err := id.Parse(it.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid productId").
				WithDetail("index", i).
				WithDetail("productId", it.ProductID)
		}
		items = append(items, order.NewItem(productID, it.Quantity))
	}
	return order.NewOrder(r.CustomerName, r.CustomerEmail, items...), nil
}

// PlaceOrdersRequest is the body of POST /orders/batch.
type PlaceOrdersRequest struct {
	Orders []PlaceOrderRequest `json:"orders" binding:"required,min=1,dive"`
}

// OrderItemResponse is the API form of an order line.
type OrderItemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderResponse is the API form of an order.
type OrderResponse struct {
	ID            string              `json:"id"`
	CustomerName  string              `json:"customerName"`
	CustomerEmail string              `json:"customerEmail"`
	Status        order.Status        `json:"status"`
	Items         []OrderItemResponse `json:"items"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// FromOrder converts a domain order.
func FromOrder(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ID:        it.ID.String(),
			ProductID: it.ProductID.String(),
			Quantity:  it.Quantity,
		}
	}
	return OrderResponse{
		ID:            o.ID.String(),
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Status:        o.Status,
		Items:         items,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// PlacementResultResponse reports one order of a batch.
type PlacementResultResponse struct {
	Index   int            `json:"index"`
	OrderID string         `json:"orderId"`
	Placed  bool           `json:"placed"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// FromPlacementResults converts batch results, keeping request order.
func FromPlacementResults(results []order.PlacementResult) []PlacementResultResponse {
	out := make([]PlacementResultResponse, len(results))
	for i, r := range results {
		out[i] = PlacementResultResponse{
			Index:   i,
			OrderID: r.Order.ID.String(),
			Placed:  r.Err == nil,
			Error:   FromError(r.Err),
		}
	}
	return out
}
