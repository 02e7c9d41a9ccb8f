// Package order_repo provides the PostgreSQL order repository.
package order_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/id"
	"ordertx/internal/domain/order"
	"ordertx/internal/infrastructure/storage/postgres"
)

const (
	ordersTable = "orders"
	itemsTable  = "order_items"
)

var (
	orderCols = postgres.ExtractDBColumns[order.Order]()
	itemCols  = postgres.ExtractDBColumns[order.Item]()
)

var _ order.Repository = (*Repo)(nil)

// Repo implements order.Repository.
type Repo struct {
	db *postgres.Resource
}

// New creates an order repository.
func New(db *postgres.Resource) *Repo {
	return &Repo{db: db}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) Create(ctx context.Context, o *order.Order) error {
	sql, args, err := builder().
		Insert(ordersTable).
		SetMap(postgres.StructToMap(o)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "insert", ordersTable, o.ID)
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, orderID id.ID) (*order.Order, error) {
	sql, args, err := builder().
		Select(orderCols...).
		From(ordersTable).
		Where(squirrel.Eq{"id": orderID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.db.Querier(ctx)
	var o order.Order
	if err := pgxscan.Get(ctx, querier, &o, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order", orderID)
		}
		return nil, postgres.MapError(err, "get", ordersTable, orderID)
	}

	sql, args, err = itemsQuery(orderID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}
	o.Items = make([]*order.Item, 0)
	if err := pgxscan.Select(ctx, querier, &o.Items, sql, args...); err != nil {
		return nil, postgres.MapError(err, "list", itemsTable, orderID)
	}
	return &o, nil
}

func itemsQuery(orderID id.ID) squirrel.SelectBuilder {
	return builder().
		Select(itemCols...).
		From(itemsTable).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("seq")
}

func (r *Repo) UpdateStatus(ctx context.Context, o *order.Order) error {
	o.UpdatedAt = time.Now().UTC()
	sql, args, err := builder().
		Update(ordersTable).
		Set("status", o.Status).
		Set("updated_at", o.UpdatedAt).
		Where(squirrel.Eq{"id": o.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.db.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "update", ordersTable, o.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("order", o.ID)
	}
	return nil
}

// Delete removes the order; its items go with it through ON DELETE CASCADE.
func (r *Repo) Delete(ctx context.Context, orderID id.ID) error {
	sql, args, err := builder().
		Delete(ordersTable).
		Where(squirrel.Eq{"id": orderID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.db.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "delete", ordersTable, orderID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("order", orderID)
	}
	return nil
}

func (r *Repo) CreateItem(ctx context.Context, item *order.Item) error {
	sql, args, err := builder().
		Insert(itemsTable).
		SetMap(postgres.StructToMap(item)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "insert", itemsTable, item.ID)
	}
	return nil
}
