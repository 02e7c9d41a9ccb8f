package handlers

import (
	"github.com/gin-gonic/gin"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/tx"
	"ordertx/internal/domain/product"
	"ordertx/internal/infrastructure/http/v1/dto"
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	*BaseHandler
	service *product.Service
}

// NewProductHandler creates a new product handler.
func NewProductHandler(base *BaseHandler, service *product.Service) *ProductHandler {
	return &ProductHandler{BaseHandler: base, service: service}
}

// Create handles POST /products.
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, err := h.service.Create(c.Request.Context(), req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromProduct(p))
}

// List handles GET /products.
func (h *ProductHandler) List(c *gin.Context) {
	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}
	page.Defaults()

	products, err := h.service.List(c.Request.Context(), page.PageSize, page.Offset())
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.ProductResponse, len(products))
	for i, p := range products {
		items[i] = dto.FromProduct(p)
	}
	h.OK(c, dto.ListResponse[dto.ProductResponse]{
		Items:    items,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

// Get handles GET /products/:id.
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	p, err := h.service.Get(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromProduct(p))
}

// Import handles POST /products/import. Invalid products are skipped and
// reported; the response is 200 as long as the import transaction committed.
// ?item_propagation=REQUIRES_NEW commits each product on its own instead of
// in a savepoint.
func (h *ProductHandler) Import(c *gin.Context) {
	item := tx.Nested
	if v := c.Query("item_propagation"); v != "" {
		p, err := tx.ParsePropagation(v)
		if err != nil {
			h.Error(c, apperror.NewValidation(err.Error()).WithDetail("item_propagation", v))
			return
		}
		item = p
	}

	var req dto.ImportProductsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	products := make([]*product.Product, len(req.Products))
	for i, r := range req.Products {
		products[i] = r.ToDomain()
	}

	results, err := h.service.ImportWith(c.Request.Context(), item, products)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"results": dto.FromImportResults(results)})
}

// AdjustStock handles POST /products/:id/stock.
func (h *ProductHandler) AdjustStock(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.AdjustStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, err := h.service.AdjustStock(c.Request.Context(), productID, req.Delta)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromProduct(p))
}
