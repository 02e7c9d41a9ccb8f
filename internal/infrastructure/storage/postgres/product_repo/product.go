// Package product_repo provides the PostgreSQL product repository.
package product_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/id"
	"ordertx/internal/domain/product"
	"ordertx/internal/infrastructure/storage/postgres"
)

const tableName = "products"

var selectCols = postgres.ExtractDBColumns[product.Product]()

var _ product.Repository = (*Repo)(nil)

// Repo implements product.Repository. Statements run in the transaction
// ambient in ctx, or directly on the pool when there is none.
type Repo struct {
	db *postgres.Resource
}

// New creates a product repository.
func New(db *postgres.Resource) *Repo {
	return &Repo{db: db}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func insertQuery(p *product.Product) squirrel.InsertBuilder {
	return builder().
		Insert(tableName).
		SetMap(postgres.StructToMap(p))
}

func selectQuery(productID id.ID) squirrel.SelectBuilder {
	return builder().
		Select(selectCols...).
		From(tableName).
		Where(squirrel.Eq{"id": productID})
}

func updateQuery(p *product.Product) squirrel.UpdateBuilder {
	return builder().
		Update(tableName).
		Set("name", p.Name).
		Set("quantity", p.Quantity).
		Set("price", p.Price).
		Set("updated_at", p.UpdatedAt).
		Where(squirrel.Eq{"id": p.ID})
}

func listQuery(limit, offset int) squirrel.SelectBuilder {
	q := builder().
		Select(selectCols...).
		From(tableName).
		OrderBy("created_at", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	return q
}

func (r *Repo) Create(ctx context.Context, p *product.Product) error {
	sql, args, err := insertQuery(p).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "insert", tableName, p.ID)
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	return r.get(ctx, productID, selectQuery(productID))
}

// GetForUpdate locks the row with SELECT ... FOR UPDATE. The wait is bounded
// by the transaction's lock_timeout.
func (r *Repo) GetForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	return r.get(ctx, productID, selectQuery(productID).Suffix("FOR UPDATE"))
}

func (r *Repo) get(ctx context.Context, productID id.ID, q squirrel.SelectBuilder) (*product.Product, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p product.Product
	if err := pgxscan.Get(ctx, r.db.Querier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID)
		}
		return nil, postgres.MapError(err, "get", tableName, productID)
	}
	return &p, nil
}

func (r *Repo) Update(ctx context.Context, p *product.Product) error {
	p.UpdatedAt = time.Now().UTC()
	sql, args, err := updateQuery(p).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.db.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "update", tableName, p.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", p.ID)
	}
	return nil
}

func (r *Repo) List(ctx context.Context, limit, offset int) ([]*product.Product, error) {
	sql, args, err := listQuery(limit, offset).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	items := make([]*product.Product, 0)
	if err := pgxscan.Select(ctx, r.db.Querier(ctx), &items, sql, args...); err != nil {
		return nil, postgres.MapError(err, "list", tableName, nil)
	}
	return items, nil
}

// CopyFrom bulk-loads products with the COPY protocol inside the ambient
// transaction. Used by the seeder for large catalogues.
func (r *Repo) CopyFrom(ctx context.Context, products []*product.Product) (int64, error) {
	t := r.db.GetTx(ctx)
	if t == nil {
		return 0, fmt.Errorf("copy products requires transaction context")
	}

	rows := make([][]any, len(products))
	for i, p := range products {
		m := postgres.StructToMap(p)
		row := make([]any, len(selectCols))
		for j, col := range selectCols {
			row[j] = m[col]
		}
		rows[i] = row
	}

	n, err := t.CopyFrom(ctx, pgx.Identifier{tableName}, selectCols, pgx.CopyFromRows(rows))
	if err != nil {
		return n, postgres.MapError(err, "copy", tableName, nil)
	}
	return n, nil
}
