// Package main provides a CLI tool for seeding the database with demo products.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	appctx "ordertx/internal/core/context"
	"ordertx/internal/core/tx"
	"ordertx/internal/core/types"
	"ordertx/internal/domain/audit"
	"ordertx/internal/domain/product"
	"ordertx/internal/infrastructure/storage/postgres"
	"ordertx/internal/infrastructure/storage/postgres/product_repo"
	"ordertx/pkg/logger"
)

var (
	seedTx = tx.NewDescriptor(tx.Required, tx.WithName("seed.copy_products"))

	defaultBasePrice = types.MustMoney("1.00")
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := appctx.WithTrace(context.Background(), appctx.NewTraceContext())
	ctx = appctx.WithActor(ctx, &appctx.Actor{ID: "seed"})

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalw("failed to migrate", "error", err)
	}

	resource := postgres.NewResource(pool, postgres.DefaultTxOptions())
	txm := tx.NewCoordinator(resource)
	repo := product_repo.New(resource)

	count := 50
	if v, err := strconv.Atoi(os.Getenv("SEED_PRODUCTS")); err == nil && v > 0 {
		count = v
	}
	base := defaultBasePrice
	if v := os.Getenv("SEED_BASE_PRICE"); v != "" {
		if base, err = types.NewMoneyFromString(v); err != nil {
			log.Fatalw("invalid SEED_BASE_PRICE", "error", err)
		}
	}
	products := demoProducts(count, base)

	switch mode := os.Getenv("SEED_MODE"); mode {
	case "", "import":
		err = seedImport(ctx, log, txm, resource, repo, products)
	case "copy":
		err = seedCopy(ctx, log, txm, repo, products)
	default:
		err = fmt.Errorf("unknown SEED_MODE %q (want import or copy)", mode)
	}
	if err != nil {
		log.Fatalw("seeding failed", "error", err)
	}

	log.Info("seeding completed successfully")
}

// seedImport goes through the product service: one transaction with a
// savepoint per product, so rows that already exist are skipped.
func seedImport(ctx context.Context, log *logger.Logger, txm *tx.Coordinator, resource *postgres.Resource, repo *product_repo.Repo, products []*product.Product) error {
	auditRepo, err := postgres.NewAuditRepo(resource, postgres.DefaultCompressThreshold)
	if err != nil {
		return err
	}
	defer auditRepo.Close()

	svc := product.NewService(txm, repo, audit.NewRecorder(txm, auditRepo))
	results, err := svc.Import(ctx, products)
	if err != nil {
		return err
	}

	var created int
	for _, r := range results {
		if r.Err == nil {
			created++
		}
	}
	log.Infow("products imported", "created", created, "skipped", len(results)-created)
	return nil
}

// seedCopy bulk-loads with COPY. It is all or nothing.
func seedCopy(ctx context.Context, log *logger.Logger, txm *tx.Coordinator, repo *product_repo.Repo, products []*product.Product) error {
	n, err := tx.Run(ctx, txm, seedTx, func(ctx context.Context) (int64, error) {
		return repo.CopyFrom(ctx, products)
	})
	if err != nil {
		return err
	}
	log.Infow("products copied", "rows", n)
	return nil
}

// demoProducts prices product i at base plus i quarters.
func demoProducts(n int, base types.Money) []*product.Product {
	products := make([]*product.Product, n)
	for i := range n {
		price := base.Add(types.MoneyFromMinor(int64(i * 25)))
		products[i] = product.NewProduct(fmt.Sprintf("Demo product %03d", i+1), 10+i%20, price)
	}
	return products
}
