package product_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordertx/internal/core/apperror"
	"ordertx/internal/core/tx"
	"ordertx/internal/domain/audit"
	"ordertx/internal/domain/product"
	"ordertx/internal/infrastructure/storage/memory"
)

func newService(t *testing.T) (*product.Service, *tx.Coordinator, *memory.ProductRepo, *audit.Recorder) {
	t.Helper()
	store := memory.NewStore()
	txm := tx.NewCoordinator(store)
	repo := memory.NewProductRepo(store)
	recorder := audit.NewRecorder(txm, memory.NewAuditRepo(store))
	return product.NewService(txm, repo, recorder), txm, repo, recorder
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreate_JoinsCallerAndRollsBackWithIt(t *testing.T) {
	svc, txm, repo, _ := newService(t)
	p := &product.Product{Name: "lamp", Quantity: 3, Price: price("19.90")}
	boom := errors.New("boom")

	err := txm.Execute(context.Background(), tx.NewDescriptor(tx.Required), func(ctx context.Context) error {
		_, err := svc.Create(ctx, p)
		require.NoError(t, err)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = repo.GetByID(context.Background(), p.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestCreateDetached_SurvivesCallerRollback(t *testing.T) {
	svc, txm, repo, _ := newService(t)
	p := &product.Product{Name: "lamp", Quantity: 3, Price: price("19.90")}

	err := txm.Execute(context.Background(), tx.NewDescriptor(tx.Required), func(ctx context.Context) error {
		_, err := svc.CreateDetached(ctx, p)
		require.NoError(t, err)
		return errors.New("boom")
	})

	require.Error(t, err)
	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "lamp", got.Name)
	assert.True(t, price("19.90").Equal(got.Price))
}

func TestCreate_RejectsInvalidProduct(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.Create(context.Background(), &product.Product{Name: " ", Quantity: 1})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)

	_, err = svc.Create(context.Background(), &product.Product{Name: "x", Quantity: -1})
	assert.Error(t, err)
}

func TestAdjustStock(t *testing.T) {
	svc, _, _, recorder := newService(t)
	p, err := svc.Create(context.Background(), product.NewProduct("cup", 5, price("1.00")))
	require.NoError(t, err)

	t.Run("withdraw", func(t *testing.T) {
		got, err := svc.AdjustStock(context.Background(), p.ID, -2)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Quantity)
	})

	t.Run("deposit", func(t *testing.T) {
		got, err := svc.AdjustStock(context.Background(), p.ID, 4)
		require.NoError(t, err)
		assert.Equal(t, 7, got.Quantity)
	})

	t.Run("shortage", func(t *testing.T) {
		_, err := svc.AdjustStock(context.Background(), p.ID, -8)
		assert.True(t, apperror.IsInsufficientStock(err))
		got, err := svc.Get(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.Quantity)
	})

	t.Run("zero delta", func(t *testing.T) {
		_, err := svc.AdjustStock(context.Background(), p.ID, 0)
		assert.Error(t, err)
	})

	t.Run("audited", func(t *testing.T) {
		entries, err := recorder.History(context.Background(), "product", p.ID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, audit.OutcomeFailure, entries[0].Outcome)
		assert.Equal(t, audit.ActionAdjustStock, entries[0].Action)
	})
}

func TestRestock_IsMandatory(t *testing.T) {
	svc, txm, _, _ := newService(t)
	p, err := svc.Create(context.Background(), product.NewProduct("cup", 1, price("1.00")))
	require.NoError(t, err)

	err = svc.Restock(context.Background(), p.ID, 5)
	assert.ErrorIs(t, err, tx.ErrIllegalTransactionState)

	err = txm.Execute(context.Background(), tx.NewDescriptor(tx.Required), func(ctx context.Context) error {
		return svc.Restock(ctx, p.ID, 5)
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Quantity)
}

func TestImport_SkipsInvalidProductsAndKeepsTheRest(t *testing.T) {
	svc, _, _, _ := newService(t)
	batch := []*product.Product{
		product.NewProduct("ok-1", 1, price("1")),
		product.NewProduct("", 1, price("1")),
		product.NewProduct("ok-2", 2, price("2")),
	}
	dup := *batch[0]
	batch = append(batch, &dup)

	results, err := svc.Import(context.Background(), batch)

	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Error(t, results[3].Err)

	all, err := svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestImportWith_RequiresNewKeepsItemsWhenCallerRollsBack(t *testing.T) {
	svc, txm, _, _ := newService(t)
	batch := []*product.Product{
		product.NewProduct("kept-1", 1, price("1")),
		product.NewProduct("", 1, price("1")),
		product.NewProduct("kept-2", 1, price("1")),
	}
	boom := errors.New("boom")

	var results []product.ImportResult
	err := txm.Execute(context.Background(), tx.NewDescriptor(tx.Required), func(ctx context.Context) error {
		var err error
		results, err = svc.ImportWith(ctx, tx.RequiresNew, batch)
		require.NoError(t, err)
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.Len(t, results, 3)
	assert.Error(t, results[1].Err)
	all, err := svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestImportWith_NestedIsUndoneWithCaller(t *testing.T) {
	svc, txm, _, _ := newService(t)
	boom := errors.New("boom")

	err := txm.Execute(context.Background(), tx.NewDescriptor(tx.Required), func(ctx context.Context) error {
		_, err := svc.ImportWith(ctx, tx.Nested, []*product.Product{product.NewProduct("gone", 1, price("1"))})
		require.NoError(t, err)
		return boom
	})

	require.ErrorIs(t, err, boom)
	all, err := svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestImportWith_RejectsOtherPropagations(t *testing.T) {
	svc, _, _, _ := newService(t)

	for _, p := range []tx.Propagation{tx.Required, tx.Mandatory, tx.Supports, tx.NotSupported, tx.Never} {
		_, err := svc.ImportWith(context.Background(), p, []*product.Product{product.NewProduct("x", 1, price("1"))})
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok, p.String())
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
	}
}

// beginRecorder remembers the options of every physical transaction.
type beginRecorder struct {
	*memory.Store
	opts []tx.BeginOptions
}

func (r *beginRecorder) Begin(ctx context.Context, opts tx.BeginOptions) (tx.Handle, error) {
	r.opts = append(r.opts, opts)
	return r.Store.Begin(ctx, opts)
}

func TestAdjustStock_BeginsReadCommitted(t *testing.T) {
	res := &beginRecorder{Store: memory.NewStore()}
	repo := memory.NewProductRepo(res.Store)
	svc := product.NewService(tx.NewCoordinator(res), repo, nil)
	p := product.NewProduct("bolt", 5, price("0.10"))
	require.NoError(t, repo.Create(context.Background(), p))

	_, err := svc.AdjustStock(context.Background(), p.ID, -2)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), product.NewProduct("nut", 1, price("0.05")))
	require.NoError(t, err)

	require.Len(t, res.opts, 2)
	assert.Equal(t, tx.IsolationReadCommitted, res.opts[0].Isolation)
	assert.Equal(t, tx.IsolationDefault, res.opts[1].Isolation)
}

func TestGet_SeesCallerWrites(t *testing.T) {
	svc, txm, _, _ := newService(t)
	p := product.NewProduct("cup", 1, price("1"))

	err := txm.Execute(context.Background(), tx.NewDescriptor(tx.Required), func(ctx context.Context) error {
		_, err := svc.Create(ctx, p)
		require.NoError(t, err)
		got, err := svc.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		return nil
	})
	require.NoError(t, err)
}
