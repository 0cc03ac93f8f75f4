package counter

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryCounterRepo struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemoryCounterRepo() *memoryCounterRepo {
	return &memoryCounterRepo{counts: make(map[string]int64)}
}

func (r *memoryCounterRepo) Next(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id]++
	return r.counts[id], nil
}

func (r *memoryCounterRepo) Current(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id], nil
}

func (r *memoryCounterRepo) List(ctx context.Context) ([]Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Counter{}
	for id, count := range r.counts {
		out = append(out, Counter{ID: id, Count: count})
	}
	return out, nil
}

func newTestService() (*Service, *memoryCounterRepo) {
	repo := newMemoryCounterRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(repo, logger)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) })
	return svc, repo
}

func TestNextDocumentNumberStartsAtOne(t *testing.T) {
	svc, _ := newTestService()

	number, err := svc.NextDocumentNumber(context.Background(), SeriesInvoice)
	require.NoError(t, err)
	require.Equal(t, "INV20250001", number)

	number, err = svc.NextDocumentNumber(context.Background(), SeriesInvoice)
	require.NoError(t, err)
	require.Equal(t, "INV20250002", number)
}

func TestSeriesAreIndependent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.NextDocumentNumber(ctx, SeriesInvoice)
	require.NoError(t, err)
	wo, err := svc.NextDocumentNumber(ctx, SeriesWorkOrder)
	require.NoError(t, err)
	grn, err := svc.NextDocumentNumber(ctx, SeriesGRN)
	require.NoError(t, err)

	require.Equal(t, "INV20250001", inv)
	require.Equal(t, "WO20250001", wo)
	require.Equal(t, "GRN20250001", grn)
}

func TestPrefixUppercasesUnknownSeries(t *testing.T) {
	require.Equal(t, "INV", Prefix(SeriesInvoice))
	require.Equal(t, "CREDITNOTE", Prefix("creditnote"))
}

func TestSequenceWidensPastPadWidth(t *testing.T) {
	svc, repo := newTestService()
	repo.counts[SeriesGRN] = 9999

	number, err := svc.NextDocumentNumber(context.Background(), SeriesGRN)
	require.NoError(t, err)
	require.Equal(t, "GRN202510000", number)
}

func TestPreviewDoesNotConsumeSequence(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	preview, err := svc.PreviewNext(ctx, SeriesPurchaseOrder)
	require.NoError(t, err)
	require.Equal(t, "PO20250001", preview)

	number, err := svc.NextDocumentNumber(ctx, SeriesPurchaseOrder)
	require.NoError(t, err)
	require.Equal(t, "PO20250001", number)
}

func TestConcurrentNextIssuesUniqueSequences(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := svc.NextDocumentNumber(ctx, SeriesDefective)
			if err == nil {
				results <- number
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for number := range results {
		require.False(t, seen[number], "duplicate document number %s", number)
		seen[number] = true
	}
	require.Len(t, seen, n)
}
