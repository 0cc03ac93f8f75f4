package workorders

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockline-erp/stockline/internal/components"
	"github.com/stockline-erp/stockline/internal/shared"
)

type memoryWORepo struct {
	boms   map[int64]BOM
	orders map[string]WorkOrder
	nextID int64
}

func newMemoryWORepo() *memoryWORepo {
	return &memoryWORepo{boms: map[int64]BOM{}, orders: map[string]WorkOrder{}}
}

func (m *memoryWORepo) InsertBOM(_ context.Context, bom BOM) (int64, error) {
	m.nextID++
	bom.ID = m.nextID
	m.boms[bom.ID] = bom
	return bom.ID, nil
}

func (m *memoryWORepo) GetBOM(_ context.Context, id int64) (BOM, error) {
	bom, ok := m.boms[id]
	if !ok {
		return BOM{}, ErrBOMNotFound
	}
	return bom, nil
}

func (m *memoryWORepo) ListBOMs(_ context.Context) ([]BOM, error) {
	out := []BOM{}
	for _, bom := range m.boms {
		out = append(out, bom)
	}
	return out, nil
}

func (m *memoryWORepo) InsertWorkOrder(_ context.Context, wo WorkOrder) (int64, error) {
	if _, ok := m.orders[wo.Number]; ok {
		return 0, shared.ErrConflict
	}
	m.nextID++
	wo.ID = m.nextID
	m.orders[wo.Number] = wo
	return wo.ID, nil
}

func (m *memoryWORepo) GetWorkOrder(_ context.Context, number string) (WorkOrder, error) {
	wo, ok := m.orders[number]
	if !ok {
		return WorkOrder{}, ErrWorkOrderNotFound
	}
	return wo, nil
}

func (m *memoryWORepo) ListWorkOrders(_ context.Context, _ int) ([]WorkOrder, error) {
	out := []WorkOrder{}
	for _, wo := range m.orders {
		out = append(out, wo)
	}
	return out, nil
}

func (m *memoryWORepo) UpdateWorkOrder(_ context.Context, wo WorkOrder) error {
	if _, ok := m.orders[wo.Number]; !ok {
		return ErrWorkOrderNotFound
	}
	m.orders[wo.Number] = wo
	return nil
}

func (m *memoryWORepo) DeleteWorkOrder(_ context.Context, number string) error {
	if _, ok := m.orders[number]; !ok {
		return ErrWorkOrderNotFound
	}
	delete(m.orders, number)
	return nil
}

// stubWOStock keeps live currentStock and inUse gauges so reservation
// math can be asserted end to end.
type stubWOStock struct {
	current map[int64]int64
	inUse   map[int64]int64
	// failReserveFor triggers a permanent failure so retry exhaustion
	// and rollback paths are exercised.
	failReserveFor int64
}

func newStubWOStock(current map[int64]int64) *stubWOStock {
	return &stubWOStock{current: current, inUse: map[int64]int64{}, failReserveFor: -1}
}

func (s *stubWOStock) Get(_ context.Context, itemID int64) (components.Stock, error) {
	qty, ok := s.current[itemID]
	if !ok {
		return components.Stock{}, shared.ErrNotFound
	}
	return components.Stock{ItemID: itemID, CurrentStock: qty, InUse: s.inUse[itemID]}, nil
}

func (s *stubWOStock) Reserve(_ context.Context, itemID, qty int64) (components.Stock, error) {
	if itemID == s.failReserveFor {
		return components.Stock{}, fmt.Errorf("reserve failed")
	}
	if s.current[itemID]-s.inUse[itemID] < qty {
		return components.Stock{}, shared.ErrInsufficientQuantity
	}
	s.inUse[itemID] += qty
	return components.Stock{ItemID: itemID, CurrentStock: s.current[itemID], InUse: s.inUse[itemID]}, nil
}

func (s *stubWOStock) Release(_ context.Context, itemID, qty int64) (components.Stock, error) {
	s.inUse[itemID] -= qty
	if s.inUse[itemID] < 0 {
		s.inUse[itemID] = 0
	}
	return components.Stock{ItemID: itemID, CurrentStock: s.current[itemID], InUse: s.inUse[itemID]}, nil
}

func (s *stubWOStock) ConsumeReserved(_ context.Context, itemID, qty int64) (components.Stock, error) {
	if s.inUse[itemID] < qty {
		return components.Stock{}, shared.ErrInsufficientQuantity
	}
	s.inUse[itemID] -= qty
	s.current[itemID] -= qty
	return components.Stock{ItemID: itemID, CurrentStock: s.current[itemID], InUse: s.inUse[itemID]}, nil
}

type stubWONumbers struct {
	count int64
}

func (s *stubWONumbers) NextDocumentNumber(_ context.Context, _ string) (string, error) {
	s.count++
	return fmt.Sprintf("WO2025%04d", s.count), nil
}

type stubWOAudit struct {
	logs []shared.AuditLog
}

func (s *stubWOAudit) Record(_ context.Context, log shared.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newWOService(t *testing.T, current map[int64]int64) (*Service, *memoryWORepo, *stubWOStock, *stubWOAudit) {
	t.Helper()
	repo := newMemoryWORepo()
	stock := newStubWOStock(current)
	audit := &stubWOAudit{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(repo, stock, &stubWONumbers{}, audit, logger)
	return svc, repo, stock, audit
}

// chairBOM needs 4 legs (item 1) and 1 seat (item 2) per unit.
func chairBOM(t *testing.T, repo *memoryWORepo) BOM {
	t.Helper()
	bom := BOM{Name: "Chair", Components: []BOMComponent{
		{ItemID: 1, ItemName: "Leg", RequiredQty: 4},
		{ItemID: 2, ItemName: "Seat", RequiredQty: 1},
	}}
	id, err := repo.InsertBOM(context.Background(), bom)
	require.NoError(t, err)
	bom.ID = id
	return bom
}

// stoolBOM needs 3 legs (item 1) per unit, sharing legs with chairs.
func stoolBOM(t *testing.T, repo *memoryWORepo) BOM {
	t.Helper()
	bom := BOM{Name: "Stool", Components: []BOMComponent{
		{ItemID: 1, ItemName: "Leg", RequiredQty: 3},
	}}
	id, err := repo.InsertBOM(context.Background(), bom)
	require.NoError(t, err)
	bom.ID = id
	return bom
}

func TestCreateReservesComponentsAcrossLines(t *testing.T) {
	svc, repo, stock, _ := newWOService(t, map[int64]int64{1: 100, 2: 20})
	chair := chairBOM(t, repo)
	stool := stoolBOM(t, repo)

	wo, err := svc.Create(context.Background(), CreateInput{
		Lines: []LineInput{
			{BOMID: chair.ID, Quantity: 5},
			{BOMID: stool.ID, Quantity: 10},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "WO20250001", wo.Number)

	// chairs need 20 legs and 5 seats, stools 30 legs
	require.Equal(t, int64(50), stock.inUse[1])
	require.Equal(t, int64(5), stock.inUse[2])
}

func TestCreateCollectsShortfallsWithoutReserving(t *testing.T) {
	svc, repo, stock, _ := newWOService(t, map[int64]int64{1: 10, 2: 1})
	chair := chairBOM(t, repo)

	_, err := svc.Create(context.Background(), CreateInput{
		Lines: []LineInput{{BOMID: chair.ID, Quantity: 5}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	var verrs *shared.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs.Errors, 2)
	require.Zero(t, stock.inUse[1])
	require.Zero(t, stock.inUse[2])
}

func TestCreateUnknownBOM(t *testing.T) {
	svc, _, _, _ := newWOService(t, map[int64]int64{1: 100})

	_, err := svc.Create(context.Background(), CreateInput{
		Lines: []LineInput{{BOMID: 99, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRollsBackOnInsertFailure(t *testing.T) {
	svc, repo, stock, _ := newWOService(t, map[int64]int64{1: 100, 2: 20})
	chair := chairBOM(t, repo)

	_, err := svc.Create(context.Background(), CreateInput{
		Lines: []LineInput{{BOMID: chair.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	// colliding number forces the insert to fail after reservation
	repo.orders["WO20250002"] = WorkOrder{Number: "WO20250002"}
	_, err = svc.Create(context.Background(), CreateInput{
		Lines: []LineInput{{BOMID: chair.ID, Quantity: 3}},
	})
	require.Error(t, err)

	// only the first order's reservation remains
	require.Equal(t, int64(4), stock.inUse[1])
	require.Equal(t, int64(1), stock.inUse[2])
}

func TestUpdateQuantitiesAppliesNetDiff(t *testing.T) {
	svc, repo, stock, _ := newWOService(t, map[int64]int64{1: 100, 2: 20})
	chair := chairBOM(t, repo)
	stool := stoolBOM(t, repo)

	wo, err := svc.Create(context.Background(), CreateInput{
		Lines: []LineInput{
			{BOMID: chair.ID, Quantity: 5},
			{BOMID: stool.ID, Quantity: 10},
		},
	})
	require.NoError(t, err)

	// chairs 5->3 frees 8 legs and 2 seats; stools 10->12 takes 6 legs
	updated, err := svc.UpdateQuantities(context.Background(), wo.Number, []LineInput{
		{BOMID: chair.ID, Quantity: 3},
		{BOMID: stool.ID, Quantity: 12},
	})
	require.NoError(t, err)
	require.Equal(t, int64(48), stock.inUse[1])
	require.Equal(t, int64(3), stock.inUse[2])
	require.Equal(t, int64(3), updated.Lines[0].Quantity)
	require.Equal(t, int64(12), updated.Lines[1].Quantity)
}

func TestUpdateQuantitiesRemovedLineReleasesAll(t *testing.T) {
	svc, repo, stock, _ := newWOService(t, map[int64]int64{1: 100, 2: 20})
	chair := chairBOM(t, repo)
	stool := stoolBOM(t, repo)

	wo, err := svc.Create(context.Background(), CreateInput{
		Lines: []LineInput{
			{BOMID: chair.ID, Quantity: 5},
			{BOMID: stool.ID, Quantity: 10},
		},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateQuantities(context.Background(), wo.Number, []LineInput{
		{BOMID: chair.ID, Quantity: 5},
	})
	require.NoError(t, err)
	require.Equal(t, int64(20), stock.inUse[1])
	require.Len(t, updated.Lines, 1)
}

func TestUpdateQuantitiesRefusesBelowSold(t *testing.T) {
	svc, repo, stock, _ := newWOService(t, map[int64]int64{1: 100, 2: 20})
	chair := chairBOM(t, repo)

	wo, err := svc.Create(context.Background(), CreateInput{
		Lines: []LineInput{{BOMID: chair.ID, Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = svc.RecordSale(context.Background(), wo.Number, chair.ID, 3)
	require.NoError(t, err)

	_, err = svc.UpdateQuantities(context.Background(), wo.Number, []LineInput{
		{BOMID: chair.ID, Quantity: 2},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	// reservations for the two unsold chairs stay put
	require.Equal(t, int64(8), stock.inUse[1])
}

func TestRecordSaleConsumesReservedAndTracksSold(t *testing.T) {
	svc, repo, stock, _ := newWOService(t, map[int64]int64{1: 100, 2: 20})
	chair := chairBOM(t, repo)

	wo, err := svc.Create(context.Background(), CreateInput{
		Lines: []LineInput{{BOMID: chair.ID, Quantity: 5}},
	})
	require.NoError(t, err)

	updated, err := svc.RecordSale(context.Background(), wo.Number, chair.ID, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Lines[0].SoldQuantity)
	require.Equal(t, int64(12), stock.inUse[1])
	require.Equal(t, int64(92), stock.current[1])
	require.Equal(t, int64(3), stock.inUse[2])
	require.Equal(t, int64(18), stock.current[2])

	_, err = svc.RecordSale(context.Background(), wo.Number, chair.ID, 4)
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)
}

func TestDeleteReleasesUnsoldReservations(t *testing.T) {
	svc, repo, stock, audit := newWOService(t, map[int64]int64{1: 100, 2: 20})
	chair := chairBOM(t, repo)

	wo, err := svc.Create(context.Background(), CreateInput{
		Lines: []LineInput{{BOMID: chair.ID, Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = svc.RecordSale(context.Background(), wo.Number, chair.ID, 2)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), wo.Number, "planner"))
	require.Zero(t, stock.inUse[1])
	require.Zero(t, stock.inUse[2])
	require.Empty(t, repo.orders)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "work_order.delete", audit.logs[0].Action)
}
