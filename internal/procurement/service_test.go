package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockline-erp/stockline/internal/components"
	"github.com/stockline-erp/stockline/internal/shared"
)

type memoryProcRepo struct {
	orders   map[string]PurchaseOrder
	receipts map[string]GoodsReceipt
	nextID   int64
	failGRN  bool
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{orders: map[string]PurchaseOrder{}, receipts: map[string]GoodsReceipt{}}
}

func (m *memoryProcRepo) InsertPO(_ context.Context, po PurchaseOrder) (int64, error) {
	if _, ok := m.orders[po.Number]; ok {
		return 0, shared.ErrConflict
	}
	m.nextID++
	po.ID = m.nextID
	m.orders[po.Number] = po
	return po.ID, nil
}

func (m *memoryProcRepo) GetPO(_ context.Context, number string) (PurchaseOrder, error) {
	po, ok := m.orders[number]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	return po, nil
}

func (m *memoryProcRepo) ListPOs(_ context.Context, _ int) ([]PurchaseOrder, error) {
	out := []PurchaseOrder{}
	for _, po := range m.orders {
		out = append(out, po)
	}
	return out, nil
}

func (m *memoryProcRepo) UpdatePO(_ context.Context, po PurchaseOrder) error {
	if _, ok := m.orders[po.Number]; !ok {
		return ErrPONotFound
	}
	m.orders[po.Number] = po
	return nil
}

func (m *memoryProcRepo) DeletePO(_ context.Context, number string) error {
	if _, ok := m.orders[number]; !ok {
		return ErrPONotFound
	}
	delete(m.orders, number)
	return nil
}

func (m *memoryProcRepo) CountGRNsForPO(_ context.Context, poNumber string) (int64, error) {
	var count int64
	for _, grn := range m.receipts {
		if grn.PONumber == poNumber {
			count++
		}
	}
	return count, nil
}

func (m *memoryProcRepo) InsertGRN(_ context.Context, grn GoodsReceipt) (int64, error) {
	if m.failGRN {
		return 0, fmt.Errorf("insert failed")
	}
	if _, ok := m.receipts[grn.Number]; ok {
		return 0, shared.ErrConflict
	}
	m.nextID++
	grn.ID = m.nextID
	m.receipts[grn.Number] = grn
	return grn.ID, nil
}

func (m *memoryProcRepo) GetGRN(_ context.Context, number string) (GoodsReceipt, error) {
	grn, ok := m.receipts[number]
	if !ok {
		return GoodsReceipt{}, ErrGRNNotFound
	}
	return grn, nil
}

func (m *memoryProcRepo) ListGRNs(_ context.Context, _ int) ([]GoodsReceipt, error) {
	out := []GoodsReceipt{}
	for _, grn := range m.receipts {
		out = append(out, grn)
	}
	return out, nil
}

func (m *memoryProcRepo) DeleteGRN(_ context.Context, number string) error {
	if _, ok := m.receipts[number]; !ok {
		return ErrGRNNotFound
	}
	delete(m.receipts, number)
	return nil
}

// stubProcStock tracks net received quantity per item and can fail a
// specific item to exercise compensation.
type stubProcStock struct {
	received map[int64]int64
	failFor  int64
}

func newStubProcStock() *stubProcStock {
	return &stubProcStock{received: map[int64]int64{}, failFor: -1}
}

func (s *stubProcStock) Receive(_ context.Context, itemID, qty int64, _ decimal.Decimal) (components.Stock, error) {
	if itemID == s.failFor {
		return components.Stock{}, fmt.Errorf("receive failed")
	}
	s.received[itemID] += qty
	return components.Stock{ItemID: itemID, CurrentStock: s.received[itemID]}, nil
}

func (s *stubProcStock) Unreceive(_ context.Context, itemID, qty int64, _ decimal.Decimal) (components.Stock, error) {
	s.received[itemID] -= qty
	if s.received[itemID] < 0 {
		s.received[itemID] = 0
	}
	return components.Stock{ItemID: itemID, CurrentStock: s.received[itemID]}, nil
}

type stubProcNumbers struct {
	counts map[string]int64
}

func (s *stubProcNumbers) NextDocumentNumber(_ context.Context, series string) (string, error) {
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[series]++
	prefix := map[string]string{"purchase_order": "PO", "grn": "GRN"}[series]
	return fmt.Sprintf("%s2025%04d", prefix, s.counts[series]), nil
}

type stubProcAudit struct {
	logs []shared.AuditLog
}

func (s *stubProcAudit) Record(_ context.Context, log shared.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newProcService(t *testing.T) (*Service, *memoryProcRepo, *stubProcStock, *stubProcAudit) {
	t.Helper()
	repo := newMemoryProcRepo()
	stock := newStubProcStock()
	audit := &stubProcAudit{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(repo, stock, &stubProcNumbers{}, audit, logger)
	return svc, repo, stock, audit
}

func poLines() []OrderLine {
	return []OrderLine{
		{ItemID: 1, ItemName: "Bearing", Quantity: 10, Rate: decimal.NewFromInt(25)},
		{ItemID: 2, ItemName: "Shaft", Quantity: 4, Rate: decimal.NewFromInt(110)},
	}
}

func TestCreatePOAssignsNumberAndOpenStatus(t *testing.T) {
	svc, _, _, _ := newProcService(t)

	po, err := svc.CreatePO(context.Background(), CreatePOInput{
		VendorName: "Acme Castings",
		Lines:      poLines(),
		CreatedBy:  "buyer",
	})
	require.NoError(t, err)
	require.Equal(t, "PO20250001", po.Number)
	require.Equal(t, StatusOpen, po.Status)
	require.Len(t, po.Lines, 2)
}

func TestCreatePORejectsBadLines(t *testing.T) {
	svc, _, _, _ := newProcService(t)

	_, err := svc.CreatePO(context.Background(), CreatePOInput{
		VendorName: "Acme Castings",
		Lines: []OrderLine{
			{ItemID: 1, ItemName: "Bearing", Quantity: 0, Rate: decimal.NewFromInt(25)},
			{ItemID: 2, ItemName: "Shaft", Quantity: 4, Rate: decimal.NewFromInt(-1)},
		},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	var verrs *shared.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs.Errors, 2)
}

func TestUpdatePOBlockedByReceipts(t *testing.T) {
	svc, _, _, _ := newProcService(t)

	po, err := svc.CreatePO(context.Background(), CreatePOInput{VendorName: "Acme", Lines: poLines()})
	require.NoError(t, err)

	_, err = svc.CreateGRN(context.Background(), CreateGRNInput{PONumber: po.Number, Lines: poLines()})
	require.NoError(t, err)

	_, err = svc.UpdatePO(context.Background(), po.Number, UpdatePOInput{VendorName: "Acme Ltd", Lines: poLines()})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDeletePOBlockedByReceiptsAndAudited(t *testing.T) {
	svc, _, _, audit := newProcService(t)

	po, err := svc.CreatePO(context.Background(), CreatePOInput{VendorName: "Acme", Lines: poLines()})
	require.NoError(t, err)

	_, err = svc.CreateGRN(context.Background(), CreateGRNInput{PONumber: po.Number, Lines: poLines()})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeletePO(context.Background(), po.Number, "buyer"), shared.ErrConflict)

	empty, err := svc.CreatePO(context.Background(), CreatePOInput{VendorName: "Beta", Lines: poLines()})
	require.NoError(t, err)
	require.NoError(t, svc.DeletePO(context.Background(), empty.Number, "buyer"))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "purchase_order.delete", audit.logs[0].Action)
	require.Equal(t, empty.Number, audit.logs[0].EntityID)
}

func TestCreateGRNReceivesStockAndMarksReceiving(t *testing.T) {
	svc, repo, stock, _ := newProcService(t)

	po, err := svc.CreatePO(context.Background(), CreatePOInput{VendorName: "Acme", Lines: poLines()})
	require.NoError(t, err)

	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		PONumber:   po.Number,
		Lines:      poLines(),
		ReceivedBy: "storekeeper",
	})
	require.NoError(t, err)
	require.Equal(t, "GRN20250001", grn.Number)
	require.Equal(t, int64(10), stock.received[1])
	require.Equal(t, int64(4), stock.received[2])

	updated, err := repo.GetPO(context.Background(), po.Number)
	require.NoError(t, err)
	require.Equal(t, StatusReceiving, updated.Status)
}

func TestCreateGRNCompensatesOnReceiveFailure(t *testing.T) {
	svc, repo, stock, _ := newProcService(t)
	stock.failFor = 2

	po, err := svc.CreatePO(context.Background(), CreatePOInput{VendorName: "Acme", Lines: poLines()})
	require.NoError(t, err)

	_, err = svc.CreateGRN(context.Background(), CreateGRNInput{PONumber: po.Number, Lines: poLines()})
	require.Error(t, err)

	// first line was rolled back and the receipt removed
	require.Equal(t, int64(0), stock.received[1])
	require.Empty(t, repo.receipts)

	unchanged, err := repo.GetPO(context.Background(), po.Number)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, unchanged.Status)
}

func TestCreateGRNRejectsClosedPO(t *testing.T) {
	svc, _, _, _ := newProcService(t)

	po, err := svc.CreatePO(context.Background(), CreatePOInput{VendorName: "Acme", Lines: poLines()})
	require.NoError(t, err)
	_, err = svc.ClosePO(context.Background(), po.Number)
	require.NoError(t, err)

	_, err = svc.CreateGRN(context.Background(), CreateGRNInput{PONumber: po.Number, Lines: poLines()})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDeleteGRNReversesStock(t *testing.T) {
	svc, repo, stock, audit := newProcService(t)

	po, err := svc.CreatePO(context.Background(), CreatePOInput{VendorName: "Acme", Lines: poLines()})
	require.NoError(t, err)
	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{PONumber: po.Number, Lines: poLines()})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteGRN(context.Background(), grn.Number, "storekeeper"))
	require.Equal(t, int64(0), stock.received[1])
	require.Equal(t, int64(0), stock.received[2])
	require.Empty(t, repo.receipts)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "goods_receipt.delete", audit.logs[0].Action)
}

func TestCreateGRNUnknownPO(t *testing.T) {
	svc, _, _, _ := newProcService(t)

	_, err := svc.CreateGRN(context.Background(), CreateGRNInput{PONumber: "PO20259999", Lines: poLines()})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
