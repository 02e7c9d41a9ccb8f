package product

import (
	"context"
	"fmt"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/id"
	"ordertx/internal/core/tx"
	"ordertx/internal/domain/audit"
	"ordertx/pkg/logger"
)

var (
	createTx         = tx.NewDescriptor(tx.Required, tx.WithName("product.create"))
	createDetachedTx = tx.NewDescriptor(tx.RequiresNew, tx.WithName("product.create_detached"))
	readTx           = tx.NewDescriptor(tx.Supports, tx.ReadOnly(), tx.WithName("product.read"))
	restockTx        = tx.NewDescriptor(tx.Mandatory, tx.WithName("product.restock"))
	importTx         = tx.NewDescriptor(tx.Required, tx.WithName("product.import"))

	// The locking read must wait for a concurrent writer and then see its
	// committed row, not fail with a serialization error.
	adjustStockTx = tx.NewDescriptor(tx.RequiresNew,
		tx.WithIsolation(tx.IsolationReadCommitted),
		tx.WithName("product.adjust_stock"))

	importItemTx = map[tx.Propagation]tx.Descriptor{
		tx.Nested:      tx.NewDescriptor(tx.Nested, tx.WithName("product.import_item")),
		tx.RequiresNew: tx.NewDescriptor(tx.RequiresNew, tx.WithName("product.import_item_detached")),
	}
)

// Service provides business operations for products.
type Service struct {
	txm   tx.Executor
	repo  Repository
	audit *audit.Recorder
}

// NewService creates a new product service. recorder may be nil.
func NewService(txm tx.Executor, repo Repository, recorder *audit.Recorder) *Service {
	return &Service{txm: txm, repo: repo, audit: recorder}
}

// Create saves p, joining the caller's transaction if there is one.
func (s *Service) Create(ctx context.Context, p *Product) (*Product, error) {
	return s.create(ctx, createTx, p)
}

// CreateDetached saves p in its own transaction, so the product stays even
// if the caller's transaction is later rolled back.
func (s *Service) CreateDetached(ctx context.Context, p *Product) (*Product, error) {
	return s.create(ctx, createDetachedTx, p)
}

func (s *Service) create(ctx context.Context, d tx.Descriptor, p *Product) (*Product, error) {
	if id.IsNil(p.ID) {
		fresh := NewProduct(p.Name, p.Quantity, p.Price)
		p.ID, p.CreatedAt, p.UpdatedAt = fresh.ID, fresh.CreatedAt, fresh.UpdatedAt
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return tx.Run(ctx, s.txm, d, func(ctx context.Context) (*Product, error) {
		if err := s.repo.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("create product: %w", err)
		}
		logger.Info(ctx, "product created", "product_id", p.ID, "propagation", d.Propagation().String())
		return p, nil
	})
}

// Get returns a product, inside the caller's transaction if there is one.
func (s *Service) Get(ctx context.Context, productID id.ID) (*Product, error) {
	return tx.Run(ctx, s.txm, readTx, func(ctx context.Context) (*Product, error) {
		return s.repo.GetByID(ctx, productID)
	})
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Product, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return tx.Run(ctx, s.txm, readTx, func(ctx context.Context) ([]*Product, error) {
		return s.repo.List(ctx, limit, offset)
	})
}

// AdjustStock changes the stock of a product by delta in its own transaction.
// A negative delta withdraws stock and fails with INSUFFICIENT_STOCK when
// there is not enough of it.
func (s *Service) AdjustStock(ctx context.Context, productID id.ID, delta int) (*Product, error) {
	if delta == 0 {
		return nil, apperror.NewValidation("stock delta must not be zero")
	}

	p, err := tx.Run(ctx, s.txm, adjustStockTx, func(ctx context.Context) (*Product, error) {
		p, err := s.repo.GetForUpdate(ctx, productID)
		if err != nil {
			return nil, err
		}
		if delta < 0 {
			err = p.Withdraw(-delta)
		} else {
			err = p.Deposit(delta)
		}
		if err != nil {
			return nil, err
		}
		if err := s.repo.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("update product: %w", err)
		}
		return p, nil
	})

	if s.audit != nil {
		s.audit.RecordOperation(ctx, "product", productID, audit.ActionAdjustStock, map[string]any{"delta": delta}, err)
	}
	return p, err
}

// Restock adds qty units to a product. It must run inside the caller's
// transaction; calling it without one is a programming error.
func (s *Service) Restock(ctx context.Context, productID id.ID, qty int) error {
	return s.txm.Execute(ctx, restockTx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if err := p.Deposit(qty); err != nil {
			return err
		}
		return s.repo.Update(ctx, p)
	})
}

// ImportResult reports the outcome for one product of an import.
type ImportResult struct {
	Product *Product
	Err     error
}

// Import creates products in one transaction with a savepoint per product.
// A product that fails is rolled back to its savepoint and reported; the
// others are kept.
func (s *Service) Import(ctx context.Context, products []*Product) ([]ImportResult, error) {
	return s.ImportWith(ctx, tx.Nested, products)
}

// ImportWith is Import with a choice of per-product scope: Nested (a
// savepoint, undone with the caller) or RequiresNew (a transaction of its
// own, kept even if the caller rolls back).
func (s *Service) ImportWith(ctx context.Context, item tx.Propagation, products []*Product) ([]ImportResult, error) {
	itemTx, ok := importItemTx[item]
	if !ok {
		return nil, apperror.NewValidation(fmt.Sprintf("import item propagation must be NESTED or REQUIRES_NEW, got %s", item)).
			WithDetail("propagation", item.String())
	}
	results := make([]ImportResult, len(products))

	err := s.txm.Execute(ctx, importTx, func(ctx context.Context) error {
		for i, p := range products {
			created, err := s.create(ctx, itemTx, p)
			results[i] = ImportResult{Product: created, Err: err}
			if err != nil {
				logger.Warn(ctx, "product skipped during import", "index", i, "name", p.Name, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
