package workorders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/stockline-erp/stockline/internal/components"
	"github.com/stockline-erp/stockline/internal/counter"
	"github.com/stockline-erp/stockline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	InsertBOM(ctx context.Context, bom BOM) (int64, error)
	GetBOM(ctx context.Context, id int64) (BOM, error)
	ListBOMs(ctx context.Context) ([]BOM, error)
	InsertWorkOrder(ctx context.Context, wo WorkOrder) (int64, error)
	GetWorkOrder(ctx context.Context, number string) (WorkOrder, error)
	ListWorkOrders(ctx context.Context, limit int) ([]WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, wo WorkOrder) error
	DeleteWorkOrder(ctx context.Context, number string) error
}

// StockPort is the slice of the component stock service work orders
// reserve against.
type StockPort interface {
	Get(ctx context.Context, itemID int64) (components.Stock, error)
	Reserve(ctx context.Context, itemID, qty int64) (components.Stock, error)
	Release(ctx context.Context, itemID, qty int64) (components.Stock, error)
	ConsumeReserved(ctx context.Context, itemID, qty int64) (components.Stock, error)
}

// NumberPort issues document numbers.
type NumberPort interface {
	NextDocumentNumber(ctx context.Context, series string) (string, error)
}

// AuditPort records destructive operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates BOM-driven work orders over component stock.
// Every stock write retries transient failures with exponential
// backoff.
type Service struct {
	repo    RepositoryPort
	stock   StockPort
	numbers NumberPort
	audit   AuditPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock StockPort, numbers NumberPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, stock: stock, numbers: numbers, audit: audit, logger: logger}
}

// CreateBOM validates and persists a bill of materials.
func (s *Service) CreateBOM(ctx context.Context, name string, comps []BOMComponent) (BOM, error) {
	if name == "" {
		return BOM{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	if len(comps) == 0 {
		return BOM{}, fmt.Errorf("%w: at least one component required", shared.ErrValidation)
	}
	verrs := &shared.ValidationErrors{}
	for _, c := range comps {
		if c.RequiredQty <= 0 {
			verrs.Add(shared.FieldError{ItemID: c.ItemID, Field: "requiredQty", Reason: "must be positive"})
		}
	}
	if err := verrs.AsError(); err != nil {
		return BOM{}, err
	}
	bom := BOM{Name: name, Components: comps}
	id, err := s.repo.InsertBOM(ctx, bom)
	if err != nil {
		return BOM{}, err
	}
	bom.ID = id
	return bom, nil
}

// GetBOM returns one bill of materials.
func (s *Service) GetBOM(ctx context.Context, id int64) (BOM, error) {
	bom, err := s.repo.GetBOM(ctx, id)
	if errors.Is(err, ErrBOMNotFound) {
		return BOM{}, fmt.Errorf("%w: bom %d", shared.ErrNotFound, id)
	}
	return bom, err
}

func (s *Service) loadOrder(ctx context.Context, number string) (WorkOrder, error) {
	wo, err := s.repo.GetWorkOrder(ctx, number)
	if err != nil {
		if errors.Is(err, ErrWorkOrderNotFound) {
			return WorkOrder{}, fmt.Errorf("%w: work order %s", shared.ErrNotFound, number)
		}
		return WorkOrder{}, err
	}
	return wo, nil
}

// ListBOMs returns every bill of materials.
func (s *Service) ListBOMs(ctx context.Context) ([]BOM, error) {
	return s.repo.ListBOMs(ctx)
}

// LineInput is one requested finished-item line.
type LineInput struct {
	BOMID    int64
	Quantity int64
}

// CreateInput carries the fields of a new work order.
type CreateInput struct {
	Lines     []LineInput
	Notes     string
	CreatedBy string
}

// Create numbers a work order and reserves component stock for every
// BOM line. All lines are validated against available stock before any
// reservation; a failed reservation releases the ones already applied.
func (s *Service) Create(ctx context.Context, in CreateInput) (WorkOrder, error) {
	if len(in.Lines) == 0 {
		return WorkOrder{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	lines := make([]Line, 0, len(in.Lines))
	verrs := &shared.ValidationErrors{}
	boms := map[int64]BOM{}
	for _, li := range in.Lines {
		if li.Quantity <= 0 {
			verrs.Add(shared.FieldError{ItemID: li.BOMID, Field: "quantity", Reason: "must be positive"})
			continue
		}
		bom, err := s.repo.GetBOM(ctx, li.BOMID)
		if err != nil {
			verrs.Add(shared.FieldError{ItemID: li.BOMID, Field: "bomId", Reason: "unknown bill of materials"})
			continue
		}
		boms[bom.ID] = bom
		lines = append(lines, Line{BOMID: bom.ID, BOMName: bom.Name, Quantity: li.Quantity})
	}
	if err := verrs.AsError(); err != nil {
		return WorkOrder{}, err
	}

	needs := componentNeeds(lines, boms)
	if err := s.checkAvailability(ctx, needs); err != nil {
		return WorkOrder{}, err
	}

	if err := s.applyDeltas(ctx, needs); err != nil {
		return WorkOrder{}, err
	}

	number, err := s.numbers.NextDocumentNumber(ctx, counter.SeriesWorkOrder)
	if err != nil {
		s.rollbackDeltas(ctx, needs)
		return WorkOrder{}, fmt.Errorf("issue work order number: %w", err)
	}
	wo := WorkOrder{Number: number, Lines: lines, Notes: in.Notes, CreatedBy: in.CreatedBy}
	id, err := s.repo.InsertWorkOrder(ctx, wo)
	if err != nil {
		s.rollbackDeltas(ctx, needs)
		return WorkOrder{}, err
	}
	wo.ID = id
	s.logger.Info("work order created", "number", wo.Number, "lines", len(wo.Lines))
	return wo, nil
}

// UpdateQuantities replaces the line set of a work order and applies
// only the net per-component stock change. A line cannot drop below
// the quantity downstream sales already consumed, and a line with
// sales cannot be removed.
func (s *Service) UpdateQuantities(ctx context.Context, number string, inputs []LineInput) (WorkOrder, error) {
	if len(inputs) == 0 {
		return WorkOrder{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	wo, err := s.loadOrder(ctx, number)
	if err != nil {
		return WorkOrder{}, err
	}

	existing := map[int64]Line{}
	for _, line := range wo.Lines {
		existing[line.BOMID] = line
	}

	newLines := make([]Line, 0, len(inputs))
	verrs := &shared.ValidationErrors{}
	boms := map[int64]BOM{}
	requested := map[int64]bool{}
	for _, li := range inputs {
		requested[li.BOMID] = true
		if li.Quantity <= 0 {
			verrs.Add(shared.FieldError{ItemID: li.BOMID, Field: "quantity", Reason: "must be positive"})
			continue
		}
		bom, err := s.repo.GetBOM(ctx, li.BOMID)
		if err != nil {
			verrs.Add(shared.FieldError{ItemID: li.BOMID, Field: "bomId", Reason: "unknown bill of materials"})
			continue
		}
		boms[bom.ID] = bom
		line := Line{BOMID: bom.ID, BOMName: bom.Name, Quantity: li.Quantity}
		if prev, ok := existing[bom.ID]; ok {
			if li.Quantity < prev.SoldQuantity {
				verrs.Add(shared.FieldError{ItemID: bom.ID, Field: "quantity", Reason: fmt.Sprintf("cannot drop below %d already sold", prev.SoldQuantity)})
				continue
			}
			line.SoldQuantity = prev.SoldQuantity
		}
		newLines = append(newLines, line)
	}
	for bomID, line := range existing {
		if !requested[bomID] && line.SoldQuantity > 0 {
			verrs.Add(shared.FieldError{ItemID: bomID, Field: "quantity", Reason: fmt.Sprintf("cannot remove line with %d already sold", line.SoldQuantity)})
		}
	}
	if err := verrs.AsError(); err != nil {
		return WorkOrder{}, err
	}

	for _, line := range wo.Lines {
		if _, ok := boms[line.BOMID]; ok {
			continue
		}
		bom, err := s.repo.GetBOM(ctx, line.BOMID)
		if err != nil {
			return WorkOrder{}, fmt.Errorf("load bom %d: %w", line.BOMID, err)
		}
		boms[bom.ID] = bom
	}

	// Reserved stock covers only the unsold remainder of each line, so
	// the diff is taken between unsold needs, not ordered needs.
	deltas := diffNeeds(componentNeeds(unsold(wo.Lines), boms), componentNeeds(unsold(newLines), boms))
	if err := s.checkAvailability(ctx, increasesOnly(deltas)); err != nil {
		return WorkOrder{}, err
	}
	if err := s.applyDeltas(ctx, deltas); err != nil {
		return WorkOrder{}, err
	}

	wo.Lines = newLines
	if err := s.repo.UpdateWorkOrder(ctx, wo); err != nil {
		s.rollbackDeltas(ctx, deltas)
		return WorkOrder{}, err
	}
	return wo, nil
}

// RecordSale consumes reserved stock for sold units of one BOM line.
func (s *Service) RecordSale(ctx context.Context, number string, bomID, qty int64) (WorkOrder, error) {
	if qty <= 0 {
		return WorkOrder{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	wo, err := s.loadOrder(ctx, number)
	if err != nil {
		return WorkOrder{}, err
	}
	idx := -1
	for i, line := range wo.Lines {
		if line.BOMID == bomID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return WorkOrder{}, fmt.Errorf("%w: work order %s has no line for bom %d", shared.ErrNotFound, number, bomID)
	}
	line := wo.Lines[idx]
	if remaining := line.Quantity - line.SoldQuantity; qty > remaining {
		return WorkOrder{}, fmt.Errorf("%w: %d requested, %d unsold on %s", shared.ErrInsufficientQuantity, qty, remaining, number)
	}

	bom, err := s.repo.GetBOM(ctx, bomID)
	if err != nil {
		return WorkOrder{}, fmt.Errorf("load bom %d: %w", bomID, err)
	}
	consumed := []BOMComponent{}
	for _, c := range bom.Components {
		need := c.RequiredQty * qty
		err := shared.WithRetry(ctx, func(ctx context.Context) error {
			_, err := s.stock.ConsumeReserved(ctx, c.ItemID, need)
			return err
		})
		if err != nil {
			// Reserved stock already consumed for earlier components
			// stays consumed; re-reserving would fabricate inventory.
			s.logger.Error("partial reserved consumption", "number", number, "bom", bomID, "item", c.ItemID, "consumed", len(consumed), "error", err)
			return WorkOrder{}, fmt.Errorf("consume reserved item %d: %w", c.ItemID, err)
		}
		consumed = append(consumed, c)
	}

	wo.Lines[idx].SoldQuantity += qty
	if err := s.repo.UpdateWorkOrder(ctx, wo); err != nil {
		return WorkOrder{}, err
	}
	return wo, nil
}

// Delete releases the reservations still held by a work order, then
// removes it.
func (s *Service) Delete(ctx context.Context, number, actor string) error {
	wo, err := s.loadOrder(ctx, number)
	if err != nil {
		return err
	}
	boms := map[int64]BOM{}
	for _, line := range wo.Lines {
		bom, err := s.repo.GetBOM(ctx, line.BOMID)
		if err != nil {
			return fmt.Errorf("load bom %d: %w", line.BOMID, err)
		}
		boms[bom.ID] = bom
	}
	held := componentNeeds(unsold(wo.Lines), boms)
	for _, itemID := range sortedKeys(held) {
		qty := held[itemID]
		if qty == 0 {
			continue
		}
		err := shared.WithRetry(ctx, func(ctx context.Context) error {
			_, err := s.stock.Release(ctx, itemID, qty)
			return err
		})
		if err != nil {
			return fmt.Errorf("release item %d: %w", itemID, err)
		}
	}
	if err := s.repo.DeleteWorkOrder(ctx, number); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "work_order.delete",
		Entity:   "work_order",
		EntityID: number,
	}); err != nil {
		s.logger.Error("audit work order delete", "number", number, "error", err)
	}
	return nil
}

// Get returns one work order.
func (s *Service) Get(ctx context.Context, number string) (WorkOrder, error) {
	return s.loadOrder(ctx, number)
}

// List returns recent work orders.
func (s *Service) List(ctx context.Context, limit int) ([]WorkOrder, error) {
	return s.repo.ListWorkOrders(ctx, limit)
}

// checkAvailability verifies every positive need fits in available
// stock, collecting every shortfall before reporting.
func (s *Service) checkAvailability(ctx context.Context, needs map[int64]int64) error {
	verrs := &shared.ValidationErrors{}
	for _, itemID := range sortedKeys(needs) {
		need := needs[itemID]
		if need <= 0 {
			continue
		}
		stock, err := s.stock.Get(ctx, itemID)
		if err != nil {
			verrs.Add(shared.FieldError{ItemID: itemID, Field: "itemId", Reason: "unknown item"})
			continue
		}
		if avail := stock.Available(); avail < need {
			verrs.Add(shared.FieldError{ItemID: itemID, Field: "quantity", Reason: fmt.Sprintf("%d needed, %d available", need, avail)})
		}
	}
	return verrs.AsError()
}

// applyDeltas reserves positive deltas and releases negative ones, with
// retry around each write. A mid-way failure undoes the applied part.
func (s *Service) applyDeltas(ctx context.Context, deltas map[int64]int64) error {
	applied := map[int64]int64{}
	for _, itemID := range sortedKeys(deltas) {
		delta := deltas[itemID]
		if delta == 0 {
			continue
		}
		err := shared.WithRetry(ctx, func(ctx context.Context) error {
			var err error
			if delta > 0 {
				_, err = s.stock.Reserve(ctx, itemID, delta)
			} else {
				_, err = s.stock.Release(ctx, itemID, -delta)
			}
			return err
		})
		if err != nil {
			s.rollbackDeltas(ctx, applied)
			return fmt.Errorf("adjust reservation for item %d: %w", itemID, err)
		}
		applied[itemID] = delta
	}
	return nil
}

// rollbackDeltas reverses previously applied reservation deltas.
func (s *Service) rollbackDeltas(ctx context.Context, applied map[int64]int64) {
	for _, itemID := range sortedKeys(applied) {
		delta := applied[itemID]
		if delta == 0 {
			continue
		}
		err := shared.WithRetry(ctx, func(ctx context.Context) error {
			var err error
			if delta > 0 {
				_, err = s.stock.Release(ctx, itemID, delta)
			} else {
				_, err = s.stock.Reserve(ctx, itemID, -delta)
			}
			return err
		})
		if err != nil {
			s.logger.Error("rollback reservation delta", "item", itemID, "delta", delta, "error", err)
		}
	}
}

func unsold(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		line.Quantity -= line.SoldQuantity
		line.SoldQuantity = 0
		out = append(out, line)
	}
	return out
}

func diffNeeds(prev, next map[int64]int64) map[int64]int64 {
	deltas := map[int64]int64{}
	for itemID, need := range next {
		deltas[itemID] = need - prev[itemID]
	}
	for itemID, need := range prev {
		if _, ok := next[itemID]; !ok {
			deltas[itemID] = -need
		}
	}
	return deltas
}

func increasesOnly(deltas map[int64]int64) map[int64]int64 {
	out := map[int64]int64{}
	for itemID, delta := range deltas {
		if delta > 0 {
			out[itemID] = delta
		}
	}
	return out
}

// sortedKeys keeps stock writes in a stable order so concurrent
// work-order flows touch items consistently.
func sortedKeys(m map[int64]int64) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
