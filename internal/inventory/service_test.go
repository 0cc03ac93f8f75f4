package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockline-erp/stockline/internal/shared"
)

type memoryRepo struct {
	products map[int64]*Product
	history  map[int64][]PricePoint
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]*Product), history: make(map[int64][]PricePoint)}
}

func (r *memoryRepo) addProduct(id int64, name string) {
	r.products[id] = &Product{ID: id, Name: name, SKU: fmt.Sprintf("SKU-%d", id)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetProduct(ctx context.Context, productID int64) (Product, error) {
	p, ok := r.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	out := *p
	out.PriceHistory = r.history[productID]
	return out, nil
}

func (r *memoryRepo) ListProducts(ctx context.Context) ([]Product, error) {
	out := []Product{}
	for _, p := range r.products {
		out = append(out, *p)
	}
	return out, nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, productID int64) (Product, error) {
	return tx.repo.GetProduct(ctx, productID)
}

func (tx *memoryTx) findBatch(productID int64, batchNumber string) (*Batch, error) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return nil, ErrBatchNotFound
	}
	for i := range p.Batches {
		if p.Batches[i].BatchNumber == batchNumber {
			return &p.Batches[i], nil
		}
	}
	return nil, ErrBatchNotFound
}

func (tx *memoryTx) GetBatchForUpdate(ctx context.Context, productID int64, batchNumber string) (Batch, error) {
	b, err := tx.findBatch(productID, batchNumber)
	if err != nil {
		return Batch{}, err
	}
	return *b, nil
}

func (tx *memoryTx) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	tx.repo.nextID++
	batch.ID = tx.repo.nextID
	batch.AddedAt = time.Now()
	p := tx.repo.products[batch.ProductID]
	p.Batches = append(p.Batches, batch)
	return batch.ID, nil
}

func (tx *memoryTx) AddBatchQuantity(ctx context.Context, productID int64, batchNumber string, delta int64) (int64, error) {
	b, err := tx.findBatch(productID, batchNumber)
	if err != nil {
		return 0, err
	}
	b.Quantity += delta
	return b.Quantity, nil
}

func (tx *memoryTx) DecrementBatchQuantity(ctx context.Context, productID int64, batchNumber string, qty int64) (int64, error) {
	b, err := tx.findBatch(productID, batchNumber)
	if err != nil {
		return 0, err
	}
	if b.Quantity < qty {
		return 0, ErrBatchNotFound
	}
	b.Quantity -= qty
	return b.Quantity, nil
}

func (tx *memoryTx) DeleteBatch(ctx context.Context, productID int64, batchNumber string) error {
	p, ok := tx.repo.products[productID]
	if !ok {
		return ErrBatchNotFound
	}
	for i := range p.Batches {
		if p.Batches[i].BatchNumber == batchNumber {
			p.Batches = append(p.Batches[:i], p.Batches[i+1:]...)
			return nil
		}
	}
	return ErrBatchNotFound
}

func (tx *memoryTx) InsertPricePoint(ctx context.Context, productID int64, rate decimal.Decimal, at time.Time) error {
	tx.repo.history[productID] = append(tx.repo.history[productID], PricePoint{ProductID: productID, Rate: rate, RecordedAt: at})
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(repo, logger, ServiceConfig{ShelfLifeMonths: 60})
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC) })
	return svc, repo
}

func mfg(year int, month time.Month) time.Time {
	return time.Date(year, month, 10, 0, 0, 0, 0, time.UTC)
}

func TestAddBatchesCreatesWithShelfLifeExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svcRepo(svc).addProduct(1, "Paracetamol 500mg")

	product, err := svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber:     "B-100",
		Quantity:        40,
		ManufactureDate: mfg(2025, time.January),
		Rate:            decimal.NewFromInt(12),
	}})
	require.NoError(t, err)
	require.Len(t, product.Batches, 1)
	require.Equal(t, int64(40), product.Batches[0].Quantity)
	require.Equal(t, mfg(2025, time.January).AddDate(0, 60, 0), product.Batches[0].ExpiryDate)
	require.Len(t, product.PriceHistory, 1)
}

// svcRepo digs the memory repo back out for test setup.
func svcRepo(svc *Service) *memoryRepo {
	return svc.repo.(*memoryRepo)
}

func TestAddBatchesMergesSameManufactureMonth(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svcRepo(svc).addProduct(1, "Paracetamol 500mg")

	_, err := svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber: "B-100", Quantity: 40, ManufactureDate: mfg(2025, time.January), Rate: decimal.NewFromInt(12),
	}})
	require.NoError(t, err)

	product, err := svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber: "B-100", Quantity: 10, ManufactureDate: time.Date(2025, time.January, 28, 0, 0, 0, 0, time.UTC), Rate: decimal.NewFromInt(12),
	}})
	require.NoError(t, err)
	require.Len(t, product.Batches, 1)
	require.Equal(t, int64(50), product.Batches[0].Quantity)
	// Merge adds no price point.
	require.Len(t, product.PriceHistory, 1)
}

func TestAddBatchesConflictsOnDifferentManufactureMonth(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svcRepo(svc).addProduct(1, "Paracetamol 500mg")

	_, err := svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber: "B-100", Quantity: 40, ManufactureDate: mfg(2025, time.January), Rate: decimal.NewFromInt(12),
	}})
	require.NoError(t, err)

	_, err = svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber: "B-100", Quantity: 10, ManufactureDate: mfg(2025, time.February), Rate: decimal.NewFromInt(12),
	}})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestAddBatchesUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddBatches(context.Background(), 99, []IncomingBatch{{
		BatchNumber: "B-1", Quantity: 1, ManufactureDate: mfg(2025, time.March),
	}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConsumeHappyPath(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addProduct(1, "Paracetamol 500mg")
	_, err := svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber: "B-100", Quantity: 40, ManufactureDate: mfg(2025, time.January), Rate: decimal.NewFromInt(12),
	}})
	require.NoError(t, err)

	applied, err := svc.Consume(ctx, []ConsumeLine{{ProductID: 1, BatchNumber: "B-100", Quantity: 15}})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	require.Equal(t, int64(40), applied[0].OldQuantity)
	require.Equal(t, int64(25), applied[0].NewQuantity)

	product, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(25), product.TotalQuantity())
}

func TestConsumeCollectsEveryValidationFailure(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addProduct(1, "Paracetamol 500mg")
	repo.addProduct(2, "Ibuprofen 200mg")
	_, err := svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber: "B-100", Quantity: 5, ManufactureDate: mfg(2025, time.January), Rate: decimal.NewFromInt(12),
	}})
	require.NoError(t, err)

	_, err = svc.Consume(ctx, []ConsumeLine{
		{ProductID: 1, BatchNumber: "B-100", Quantity: 10}, // insufficient
		{ProductID: 2, BatchNumber: "B-404", Quantity: 1},  // missing batch
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	var verrs *shared.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs.Errors, 2)

	// Nothing was consumed.
	product, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), product.TotalQuantity())
}

func TestConsumeRejectsExpiredBatch(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addProduct(1, "Paracetamol 500mg")
	// Manufactured far enough back that expiry precedes the test clock.
	_, err := svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber: "B-OLD", Quantity: 8, ManufactureDate: mfg(2020, time.May), Rate: decimal.NewFromInt(9),
	}})
	require.NoError(t, err)

	_, err = svc.Consume(ctx, []ConsumeLine{{ProductID: 1, BatchNumber: "B-OLD", Quantity: 1}})
	require.ErrorIs(t, err, shared.ErrValidation)
	var verrs *shared.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Contains(t, verrs.Errors[0].Reason, "expired")
}

func TestRestorePutsQuantityBack(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addProduct(1, "Paracetamol 500mg")
	_, err := svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber: "B-100", Quantity: 40, ManufactureDate: mfg(2025, time.January), Rate: decimal.NewFromInt(12),
	}})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, []ConsumeLine{{ProductID: 1, BatchNumber: "B-100", Quantity: 15}})
	require.NoError(t, err)

	applied, err := svc.Restore(ctx, []ConsumeLine{{ProductID: 1, BatchNumber: "B-100", Quantity: 15}})
	require.NoError(t, err)
	require.Equal(t, int64(40), applied[0].NewQuantity)
}

func TestRestoreRecreatesPurgedBatch(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addProduct(1, "Paracetamol 500mg")

	// The batch was swept away after the stock left it; putting the
	// quantity back must not strand it.
	applied, err := svc.Restore(ctx, []ConsumeLine{{ProductID: 1, BatchNumber: "B-GONE", Quantity: 12}})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	require.Equal(t, int64(0), applied[0].OldQuantity)
	require.Equal(t, int64(12), applied[0].NewQuantity)

	product, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Len(t, product.Batches, 1)
	require.Equal(t, "B-GONE", product.Batches[0].BatchNumber)
	require.Equal(t, int64(12), product.Batches[0].Quantity)
	// Re-created with the service clock and shelf life.
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, now, product.Batches[0].ManufactureDate)
	require.Equal(t, now.AddDate(0, 60, 0), product.Batches[0].ExpiryDate)
}

func TestRestoreUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Restore(context.Background(), []ConsumeLine{{ProductID: 99, BatchNumber: "B-1", Quantity: 1}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestWithdrawStrictCollectsFailures(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addProduct(1, "Paracetamol 500mg")
	_, err := svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber: "B-100", Quantity: 5, ManufactureDate: mfg(2025, time.January), Rate: decimal.NewFromInt(12),
	}})
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, 1, []BatchSelection{
		{BatchNumber: "B-100", Quantity: 10},
		{BatchNumber: "B-404", Quantity: 1},
	}, false)
	require.ErrorIs(t, err, shared.ErrValidation)
	var verrs *shared.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs.Errors, 2)

	// Nothing moved.
	product, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), product.TotalQuantity())
}

func TestWithdrawIgnoresExpiryAndDeletesEmptiedBatch(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addProduct(1, "Paracetamol 500mg")
	// Expired against the test clock: Withdraw pulls from it anyway.
	_, err := svc.AddBatches(ctx, 1, []IncomingBatch{{
		BatchNumber: "B-OLD", Quantity: 8, ManufactureDate: mfg(2020, time.May), Rate: decimal.NewFromInt(9),
	}})
	require.NoError(t, err)

	withdrawn, err := svc.Withdraw(ctx, 1, []BatchSelection{{BatchNumber: "B-OLD", Quantity: 8}}, false)
	require.NoError(t, err)
	require.Len(t, withdrawn, 1)
	require.Equal(t, int64(8), withdrawn[0].Quantity)
	require.Equal(t, mfg(2020, time.May), withdrawn[0].ManufactureDate)

	product, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, product.Batches)
}

func TestWithdrawSkipModePullsWhatItCan(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addProduct(1, "Paracetamol 500mg")
	_, err := svc.AddBatches(ctx, 1, []IncomingBatch{
		{BatchNumber: "B-100", Quantity: 5, ManufactureDate: mfg(2025, time.January), Rate: decimal.NewFromInt(12)},
		{BatchNumber: "B-101", Quantity: 2, ManufactureDate: mfg(2025, time.February), Rate: decimal.NewFromInt(13)},
	})
	require.NoError(t, err)

	withdrawn, err := svc.Withdraw(ctx, 1, []BatchSelection{
		{BatchNumber: "B-100", Quantity: 5},
		{BatchNumber: "B-101", Quantity: 9}, // short, skipped
		{BatchNumber: "B-404", Quantity: 1}, // gone, skipped
	}, true)
	require.NoError(t, err)
	require.Len(t, withdrawn, 1)
	require.Equal(t, "B-100", withdrawn[0].BatchNumber)

	product, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), product.TotalQuantity())
}

func TestWithdrawUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Withdraw(context.Background(), 99, []BatchSelection{{BatchNumber: "B-1", Quantity: 1}}, true)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemoveBatches(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	repo.addProduct(1, "Paracetamol 500mg")
	_, err := svc.AddBatches(ctx, 1, []IncomingBatch{
		{BatchNumber: "B-100", Quantity: 40, ManufactureDate: mfg(2025, time.January), Rate: decimal.NewFromInt(12)},
		{BatchNumber: "B-101", Quantity: 10, ManufactureDate: mfg(2025, time.February), Rate: decimal.NewFromInt(13)},
	})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveBatches(ctx, 1, []string{"B-100"}))
	product, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Len(t, product.Batches, 1)
	require.Equal(t, "B-101", product.Batches[0].BatchNumber)
}
