package dto

import (
	"time"

	"ordertx/internal/core/types"
	"ordertx/internal/domain/product"
)

// CreateProductRequest is the body of POST /products.
type CreateProductRequest struct {
	Name     string      `json:"name" binding:"required"`
	Quantity int         `json:"quantity" binding:"min=0"`
	Price    types.Money `json:"price"`
}

// ToDomain builds a new product from the request.
func (r CreateProductRequest) ToDomain() *product.Product {
	return product.NewProduct(r.Name, r.Quantity, r.Price)
}

// ImportProductsRequest is the body of POST /products/import.
type ImportProductsRequest struct {
	Products []CreateProductRequest `json:"products" binding:"required,min=1,dive"`
}

// AdjustStockRequest is the body of POST /products/:id/stock. A negative
// delta withdraws stock.
type AdjustStockRequest struct {
	Delta int `json:"delta"`
}

// ProductResponse is the API form of a product.
type ProductResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	Price     types.Money `json:"price"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// FromProduct converts a domain product.
func FromProduct(p *product.Product) ProductResponse {
	return ProductResponse{
		ID:        p.ID.String(),
		Name:      p.Name,
		Quantity:  p.Quantity,
		Price:     p.Price,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ImportResultResponse reports one product of an import.
type ImportResultResponse struct {
	Index   int              `json:"index"`
	Product *ProductResponse `json:"product,omitempty"`
	Error   *ErrorResponse   `json:"error,omitempty"`
}

// FromImportResults converts import results, keeping request order.
func FromImportResults(results []product.ImportResult) []ImportResultResponse {
	out := make([]ImportResultResponse, len(results))
	for i, r := range results {
		out[i] = ImportResultResponse{Index: i, Error: FromError(r.Err)}
		if r.Err == nil && r.Product != nil {
			p := FromProduct(r.Product)
			out[i].Product = &p
		}
	}
	return out
}
