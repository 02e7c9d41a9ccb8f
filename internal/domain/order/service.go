package order

import (
	"context"
	"fmt"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/id"
	"ordertx/internal/core/tx"
	"ordertx/internal/domain/audit"
	"ordertx/internal/domain/notification"
	"ordertx/internal/domain/product"
	"ordertx/pkg/logger"
)

var (
	// Placement locks product rows with FOR UPDATE; under read committed a
	// blocked placement sees the stock left by the one it waited for.
	placeTx = tx.NewDescriptor(tx.Required,
		tx.WithIsolation(tx.IsolationReadCommitted),
		tx.WithName("order.place"))

	// Stock shortages are reported to the caller but do not undo what was
	// already written: the order row and the lines that could be served stay.
	placeNoRollbackTx = tx.NewDescriptor(tx.Required,
		tx.WithIsolation(tx.IsolationReadCommitted),
		tx.NoRollbackWhen(apperror.IsInsufficientStock),
		tx.WithName("order.place_no_rollback"))

	placeBatchTx = tx.NewDescriptor(tx.Required,
		tx.WithIsolation(tx.IsolationReadCommitted),
		tx.WithName("order.place_batch"))

	placeNestedTx = tx.NewDescriptor(tx.Nested, tx.WithName("order.place_nested"))
	getTx         = tx.NewDescriptor(tx.Supports, tx.ReadOnly(), tx.WithName("order.get"))
	updateTx      = tx.NewDescriptor(tx.Mandatory, tx.WithName("order.update_status"))
	changeTx      = tx.NewDescriptor(tx.Required, tx.WithName("order.change_status"))
	deleteTx      = tx.NewDescriptor(tx.Never, tx.WithName("order.delete"))
	notifyTx      = tx.NewDescriptor(tx.NotSupported, tx.WithName("order.notify"))
)

// ServiceConfig holds the collaborators of the order service.
type ServiceConfig struct {
	TxManager tx.Executor
	Orders    Repository
	Products  product.Repository
	Stock     *product.Service
	Notifier  notification.Notifier
	Audit     *audit.Recorder
	StoreName string
}

// Service provides order placement and lifecycle operations.
type Service struct {
	txm       tx.Executor
	orders    Repository
	products  product.Repository
	stock     *product.Service
	notifier  notification.Notifier
	audit     *audit.Recorder
	storeName string
}

// NewService creates a new order service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		txm:       cfg.TxManager,
		orders:    cfg.Orders,
		products:  cfg.Products,
		stock:     cfg.Stock,
		notifier:  cfg.Notifier,
		audit:     cfg.Audit,
		storeName: cfg.StoreName,
	}
}

// PlaceOrder saves the order, takes every line out of stock and completes the
// order, all in one transaction (joined if the caller has one). Any failure
// undoes everything.
func (s *Service) PlaceOrder(ctx context.Context, o *Order) error {
	return s.place(ctx, placeTx, o)
}

// PlaceOrderNoRollback is PlaceOrder except that a stock shortage commits the
// work done before it. The shortage is still returned.
func (s *Service) PlaceOrderNoRollback(ctx context.Context, o *Order) error {
	return s.place(ctx, placeNoRollbackTx, o)
}

// PlaceOrderNested places the order inside a savepoint of the caller's
// transaction, so a failure undoes only this order.
func (s *Service) PlaceOrderNested(ctx context.Context, o *Order) error {
	return s.place(ctx, placeNestedTx, o)
}

// PlacementResult reports the outcome for one order of a batch.
type PlacementResult struct {
	Order *Order
	Err   error
}

// PlaceOrders places several orders in one transaction, each in its own
// savepoint. Orders that fail are reported and leave no trace; the others
// are committed together.
func (s *Service) PlaceOrders(ctx context.Context, orders []*Order) ([]PlacementResult, error) {
	results := make([]PlacementResult, len(orders))

	err := s.txm.Execute(ctx, placeBatchTx, func(ctx context.Context) error {
		for i, o := range orders {
			err := s.PlaceOrderNested(ctx, o)
			results[i] = PlacementResult{Order: o, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Checkout places the order and then mails a confirmation outside of any
// transaction. A mail failure is logged, not returned: the order stands.
func (s *Service) Checkout(ctx context.Context, o *Order, noRollback bool) error {
	place := s.PlaceOrder
	if noRollback {
		place = s.PlaceOrderNoRollback
	}
	if err := place(ctx, o); err != nil {
		return err
	}
	if err := s.SendConfirmation(ctx, o); err != nil {
		logger.Warn(ctx, "order confirmation not sent", "order_id", o.ID, "error", err)
	}
	return nil
}

func (s *Service) place(ctx context.Context, d tx.Descriptor, o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if id.IsNil(o.ID) {
		o.ID = id.New()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}

	err := s.txm.Execute(ctx, d, func(ctx context.Context) error {
		return s.placeOrder(ctx, o)
	})

	if err != nil {
		logger.Warn(ctx, "order placement failed", "order_id", o.ID, "propagation", d.Propagation().String(), "error", err)
	} else {
		logger.Info(ctx, "order placed", "order_id", o.ID, "items", len(o.Items))
	}
	if s.audit != nil {
		s.audit.RecordOperation(ctx, "order", o.ID, audit.ActionPlaceOrder, map[string]any{
			"items":       len(o.Items),
			"propagation": d.Propagation().String(),
		}, err)
	}
	return err
}

func (s *Service) placeOrder(ctx context.Context, o *Order) error {
	if err := s.orders.Create(ctx, o); err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	for i, item := range o.Items {
		p, err := s.products.GetForUpdate(ctx, item.ProductID)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if err := p.Withdraw(item.Quantity); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if err := s.products.Update(ctx, p); err != nil {
			return fmt.Errorf("item %d: update stock: %w", i, err)
		}

		if id.IsNil(item.ID) {
			item.ID = id.New()
		}
		item.OrderID = o.ID
		if err := s.orders.CreateItem(ctx, item); err != nil {
			return fmt.Errorf("item %d: create item: %w", i, err)
		}
	}

	o.SetStatus(StatusCompleted)
	if err := s.orders.UpdateStatus(ctx, o); err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	return nil
}

// UpdateProductQuantity takes an item's quantity out of stock in a
// transaction of its own, independent of the caller's.
func (s *Service) UpdateProductQuantity(ctx context.Context, item *Item) error {
	_, err := s.stock.AdjustStock(ctx, item.ProductID, -item.Quantity)
	return err
}

// GetOrder loads an order, inside the caller's transaction if there is one.
func (s *Service) GetOrder(ctx context.Context, orderID id.ID) (*Order, error) {
	return tx.Run(ctx, s.txm, getTx, func(ctx context.Context) (*Order, error) {
		return s.orders.GetByID(ctx, orderID)
	})
}

// UpdateStatus changes the status of an order. It must be called inside a
// transaction.
func (s *Service) UpdateStatus(ctx context.Context, orderID id.ID, status Status) error {
	return s.txm.Execute(ctx, updateTx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		o.SetStatus(status)
		return s.orders.UpdateStatus(ctx, o)
	})
}

// ChangeStatus is the transactional entry point for UpdateStatus.
func (s *Service) ChangeStatus(ctx context.Context, orderID id.ID, status Status) error {
	err := s.txm.Execute(ctx, changeTx, func(ctx context.Context) error {
		return s.UpdateStatus(ctx, orderID, status)
	})
	if s.audit != nil {
		s.audit.RecordOperation(ctx, "order", orderID, audit.ActionUpdate, map[string]any{"status": status}, err)
	}
	return err
}

// DeleteOrder removes an order. It refuses to run inside a transaction.
func (s *Service) DeleteOrder(ctx context.Context, orderID id.ID) error {
	err := s.txm.Execute(ctx, deleteTx, func(ctx context.Context) error {
		return s.orders.Delete(ctx, orderID)
	})
	if err == nil && s.audit != nil {
		s.audit.RecordOperation(ctx, "order", orderID, audit.ActionDelete, nil, nil)
	}
	return err
}

// SendConfirmation mails the order confirmation with any ambient transaction
// suspended, so a slow mail server never holds database locks.
func (s *Service) SendConfirmation(ctx context.Context, o *Order) error {
	if s.notifier == nil {
		return nil
	}
	return s.txm.Execute(ctx, notifyTx, func(ctx context.Context) error {
		msg, err := notification.RenderOrderConfirmation(notification.OrderConfirmation{
			OrderID:       o.ID.String(),
			CustomerName:  o.CustomerName,
			CustomerEmail: o.CustomerEmail,
			StoreName:     s.storeName,
		})
		if err != nil {
			return err
		}
		return s.notifier.Send(ctx, msg)
	})
}
