package handlers

import (
	"github.com/gin-gonic/gin"

	"ordertx/internal/core/apperror"
	"ordertx/internal/domain/order"
	"ordertx/internal/infrastructure/http/v1/dto"
)

const modeNoRollback = "no-rollback"

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	*BaseHandler
	service *order.Service
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(base *BaseHandler, service *order.Service) *OrderHandler {
	return &OrderHandler{BaseHandler: base, service: service}
}

// Place handles POST /orders.
// ?mode=no-rollback keeps the work done before a stock shortage.
func (h *OrderHandler) Place(c *gin.Context) {
	var noRollback bool
	switch mode := c.Query("mode"); mode {
	case "":
	case modeNoRollback:
		noRollback = true
	default:
		h.Error(c, apperror.NewValidation("unknown placement mode").WithDetail("mode", mode))
		return
	}

	var req dto.PlaceOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	o, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Checkout(c.Request.Context(), o, noRollback); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromOrder(o))
}

// PlaceBatch handles POST /orders/batch.
func (h *OrderHandler) PlaceBatch(c *gin.Context) {
	var req dto.PlaceOrdersRequest
	if !h.BindJSON(c, &req) {
		return
	}

	orders := make([]*order.Order, len(req.Orders))
	for i, r := range req.Orders {
		o, err := r.ToDomain()
		if err != nil {
			h.Error(c, err)
			return
		}
		orders[i] = o
	}

	results, err := h.service.PlaceOrders(c.Request.Context(), orders)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"results": dto.FromPlacementResults(results)})
}

// Get handles GET /orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	o, err := h.service.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOrder(o))
}

// UpdateStatus handles PUT /orders/:id/status?status=.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	status, err := order.ParseStatus(c.Query("status"))
	if err != nil {
		h.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.service.ChangeStatus(ctx, orderID, status); err != nil {
		h.Error(c, err)
		return
	}
	o, err := h.service.GetOrder(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOrder(o))
}

// Delete handles DELETE /orders/:id.
func (h *OrderHandler) Delete(c *gin.Context) {
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(c.Request.Context(), orderID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
