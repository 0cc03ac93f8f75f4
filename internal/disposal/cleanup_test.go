package disposal

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockline-erp/stockline/internal/inventory"
)

type stubLedger struct {
	mu       sync.Mutex
	products []inventory.Product
	removed  map[int64][]string
	failFor  int64
}

func newStubLedger() *stubLedger {
	return &stubLedger{removed: make(map[int64][]string)}
}

func (l *stubLedger) List(ctx context.Context) ([]inventory.Product, error) {
	return l.products, nil
}

func (l *stubLedger) RemoveBatches(ctx context.Context, productID int64, batchNumbers []string) error {
	if productID == l.failFor {
		return errors.New("storage hiccup")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed[productID] = append(l.removed[productID], batchNumbers...)
	return nil
}

func newTestCleaner(ledger *stubLedger) (*Cleaner, *memoryDisposalRepo) {
	repo := newMemoryDisposalRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(repo, newStubStock(), newStubProductLedger(), &stubNumbers{}, nil, logger)
	cleaner := NewCleaner(svc, ledger, logger, CleanupConfig{DormantMonths: 6, ExpiryGraceDays: 30, Workers: 2})
	now := time.Date(2025, 8, 1, 3, 0, 0, 0, time.UTC)
	cleaner.WithNow(func() time.Time { return now })
	return cleaner, repo
}

func TestCleanupSweepsDormantAndExpired(t *testing.T) {
	now := time.Date(2025, 8, 1, 3, 0, 0, 0, time.UTC)
	ledger := newStubLedger()
	ledger.products = []inventory.Product{
		{
			ID:   1,
			Name: "Paracetamol 500mg",
			Batches: []inventory.Batch{
				// Dormant: empty for more than six months.
				{BatchNumber: "B-OLD", Quantity: 0, AddedAt: now.AddDate(0, -8, 0), ExpiryDate: now.AddDate(1, 0, 0)},
				// Expired past grace with stock remaining.
				{BatchNumber: "B-EXP", Quantity: 14, AddedAt: now.AddDate(0, -3, 0), ExpiryDate: now.AddDate(0, -2, 0)},
				// Healthy.
				{BatchNumber: "B-OK", Quantity: 30, AddedAt: now.AddDate(0, -1, 0), ExpiryDate: now.AddDate(2, 0, 0)},
			},
		},
	}
	cleaner, repo := newTestCleaner(ledger)

	stats, err := cleaner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.ProductsScanned)
	require.Equal(t, 1, stats.DormantBatches)
	require.Equal(t, 1, stats.ExpiredBatches)
	require.Equal(t, int64(14), stats.ExpiredQuantity)
	require.Empty(t, stats.Failures)

	require.ElementsMatch(t, []string{"B-OLD", "B-EXP"}, ledger.removed[1])

	// One record per type, both attributed to the system actor.
	require.Len(t, repo.disposals, 2)
	for _, rec := range repo.disposals {
		require.Equal(t, SystemActor, rec.DisposedBy)
	}
}

func TestCleanupRecentlyExpiredWithinGraceIsKept(t *testing.T) {
	now := time.Date(2025, 8, 1, 3, 0, 0, 0, time.UTC)
	ledger := newStubLedger()
	ledger.products = []inventory.Product{
		{
			ID:   1,
			Name: "Paracetamol 500mg",
			Batches: []inventory.Batch{
				{BatchNumber: "B-FRESH-EXP", Quantity: 5, AddedAt: now.AddDate(0, -2, 0), ExpiryDate: now.AddDate(0, 0, -10)},
			},
		},
	}
	cleaner, repo := newTestCleaner(ledger)

	stats, err := cleaner.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.ExpiredBatches)
	require.Empty(t, repo.disposals)
	require.Empty(t, ledger.removed[1])
}

func TestCleanupIsolatesPerProductFailures(t *testing.T) {
	now := time.Date(2025, 8, 1, 3, 0, 0, 0, time.UTC)
	ledger := newStubLedger()
	ledger.failFor = 1
	broken := inventory.Product{
		ID:   1,
		Name: "Broken",
		Batches: []inventory.Batch{
			{BatchNumber: "B-X", Quantity: 3, AddedAt: now.AddDate(0, -4, 0), ExpiryDate: now.AddDate(0, -2, 0)},
		},
	}
	healthy := inventory.Product{
		ID:   2,
		Name: "Healthy",
		Batches: []inventory.Batch{
			{BatchNumber: "B-Y", Quantity: 9, AddedAt: now.AddDate(0, -4, 0), ExpiryDate: now.AddDate(0, -2, 0)},
		},
	}
	ledger.products = []inventory.Product{broken, healthy}
	cleaner, _ := newTestCleaner(ledger)

	stats, err := cleaner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.Failures, 1)
	require.Equal(t, int64(1), stats.Failures[0].ProductID)
	// The healthy product was still swept.
	require.Equal(t, []string{"B-Y"}, ledger.removed[2])
	require.Equal(t, 1, stats.ExpiredBatches)
}
