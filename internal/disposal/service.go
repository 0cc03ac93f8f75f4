package disposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockline-erp/stockline/internal/components"
	"github.com/stockline-erp/stockline/internal/counter"
	"github.com/stockline-erp/stockline/internal/inventory"
	"github.com/stockline-erp/stockline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	InsertDisposal(ctx context.Context, rec Record) error
	ListDisposals(ctx context.Context, filter ListFilter) ([]Record, error)
	Summarize(ctx context.Context) (Summary, error)
	InsertDefective(ctx context.Context, rec DefectiveRecord) (int64, error)
	GetDefective(ctx context.Context, id int64) (DefectiveRecord, error)
	ListDefectives(ctx context.Context) ([]DefectiveRecord, error)
	AddRestoredQty(ctx context.Context, id, qty int64) error
	DeleteDefective(ctx context.Context, id int64) error
	InsertRestore(ctx context.Context, rec RestoreRecord) (int64, error)
	ListRestores(ctx context.Context, defectiveID int64) ([]RestoreRecord, error)
}

// StockPort is the slice of the component stock service the disposal
// flows mutate.
type StockPort interface {
	Get(ctx context.Context, itemID int64) (components.Stock, error)
	MarkDefective(ctx context.Context, itemID, qty int64) (components.Stock, error)
	RestoreDefective(ctx context.Context, itemID, qty int64) (components.Stock, error)
}

// ProductLedgerPort is the slice of the batch ledger manual disposals
// draw from.
type ProductLedgerPort interface {
	Get(ctx context.Context, productID int64) (inventory.Product, error)
	Withdraw(ctx context.Context, productID int64, selections []inventory.BatchSelection, skipUnavailable bool) ([]inventory.WithdrawnBatch, error)
}

// NumberPort issues document numbers.
type NumberPort interface {
	NextDocumentNumber(ctx context.Context, series string) (string, error)
}

// AuditPort records destructive operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates defect tracking and disposal history.
type Service struct {
	repo    RepositoryPort
	stock   StockPort
	ledger  ProductLedgerPort
	numbers NumberPort
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock StockPort, ledger ProductLedgerPort, numbers NumberPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, stock: stock, ledger: ledger, numbers: numbers, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Dispose pulls the selected batches off the ledger and writes one
// disposal record with a snapshot of every batch that was drawn.
// Defective disposals name exactly one batch, need a reason and fail
// on any shortfall; expired disposals take a batch list, skip lines
// that are missing or short, and fall back to an "Expired" reason.
func (s *Service) Dispose(ctx context.Context, productID int64, dtype Type, selections []inventory.BatchSelection, reason, disposedBy string) (Record, error) {
	switch dtype {
	case TypeDefective:
		if reason == "" {
			return Record{}, fmt.Errorf("%w: reason required for defective disposal", shared.ErrValidation)
		}
		if len(selections) != 1 {
			return Record{}, fmt.Errorf("%w: defective disposal names exactly one batch", shared.ErrValidation)
		}
	case TypeExpired:
		if len(selections) == 0 {
			return Record{}, fmt.Errorf("%w: at least one batch required", shared.ErrValidation)
		}
		if reason == "" {
			reason = "Expired"
		}
	default:
		return Record{}, fmt.Errorf("%w: unknown disposal type %q", shared.ErrValidation, dtype)
	}

	product, err := s.ledger.Get(ctx, productID)
	if err != nil {
		return Record{}, err
	}

	withdrawn, err := s.ledger.Withdraw(ctx, productID, selections, dtype == TypeExpired)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ProductID:   productID,
		ProductName: product.Name,
		Type:        dtype,
		Reason:      reason,
		DisposedBy:  disposedBy,
	}
	for _, w := range withdrawn {
		rec.Quantity += w.Quantity
		rec.BatchNumbers = append(rec.BatchNumbers, w.BatchNumber)
		rec.Batches = append(rec.Batches, BatchDisposal{
			BatchNumber:     w.BatchNumber,
			Quantity:        w.Quantity,
			ManufactureDate: w.ManufactureDate,
			ExpiryDate:      w.ExpiryDate,
		})
	}
	if rec.Quantity == 0 {
		return Record{}, fmt.Errorf("%w: none of the named batches had stock to dispose", shared.ErrValidation)
	}

	rec, err = s.recordDisposal(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    disposedBy,
			Action:   "disposal.manual",
			Entity:   "product",
			EntityID: fmt.Sprintf("%d", productID),
			Meta:     map[string]any{"type": string(dtype), "quantity": rec.Quantity, "batches": rec.BatchNumbers},
		})
	}
	s.logger.Info("stock disposed",
		slog.Int64("product", productID),
		slog.String("type", string(dtype)),
		slog.Int64("qty", rec.Quantity),
		slog.Int("batches", len(rec.Batches)))
	return rec, nil
}

// RecordDefective flags item stock as defective under a DF document.
func (s *Service) RecordDefective(ctx context.Context, itemID, qty int64, reason, reportedBy string) (DefectiveRecord, error) {
	if qty <= 0 {
		return DefectiveRecord{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if reason == "" {
		return DefectiveRecord{}, fmt.Errorf("%w: reason required", shared.ErrValidation)
	}
	number, err := s.numbers.NextDocumentNumber(ctx, counter.SeriesDefective)
	if err != nil {
		return DefectiveRecord{}, err
	}
	if _, err := s.stock.MarkDefective(ctx, itemID, qty); err != nil {
		return DefectiveRecord{}, err
	}
	rec := DefectiveRecord{
		DocumentNumber: number,
		ItemID:         itemID,
		Quantity:       qty,
		Reason:         reason,
		ReportedBy:     reportedBy,
	}
	id, err := s.repo.InsertDefective(ctx, rec)
	if err != nil {
		// Undo the gauge move so stock is not stranded as defective.
		if _, rerr := s.stock.RestoreDefective(ctx, itemID, qty); rerr != nil {
			s.logger.Error("defective rollback failed", slog.Int64("item", itemID), slog.Any("error", rerr))
		}
		return DefectiveRecord{}, err
	}
	rec.ID = id
	s.logger.Info("defective recorded",
		slog.String("document", number),
		slog.Int64("item", itemID),
		slog.Int64("qty", qty))
	return rec, nil
}

// RestoreDefective returns flagged stock to use under an RD document.
// The quantity is validated against both the original record and the
// live defect gauge: either can be the tighter bound after partial
// restores or other defect activity on the same item.
func (s *Service) RestoreDefective(ctx context.Context, defectiveID, qty int64, restoredBy string) (RestoreRecord, error) {
	if qty <= 0 {
		return RestoreRecord{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	rec, err := s.repo.GetDefective(ctx, defectiveID)
	if err != nil {
		if errors.Is(err, ErrDefectiveNotFound) {
			return RestoreRecord{}, fmt.Errorf("%w: defective record %d", shared.ErrNotFound, defectiveID)
		}
		return RestoreRecord{}, err
	}
	if qty > rec.Outstanding() {
		return RestoreRecord{}, fmt.Errorf("%w: record %s: outstanding %d, requested %d",
			shared.ErrInsufficientQuantity, rec.DocumentNumber, rec.Outstanding(), qty)
	}
	stock, err := s.stock.Get(ctx, rec.ItemID)
	if err != nil {
		return RestoreRecord{}, err
	}
	if qty > stock.Defect {
		return RestoreRecord{}, fmt.Errorf("%w: item %d: defect gauge %d, requested %d",
			shared.ErrInsufficientQuantity, rec.ItemID, stock.Defect, qty)
	}
	number, err := s.numbers.NextDocumentNumber(ctx, counter.SeriesRestore)
	if err != nil {
		return RestoreRecord{}, err
	}
	if _, err := s.stock.RestoreDefective(ctx, rec.ItemID, qty); err != nil {
		return RestoreRecord{}, err
	}
	if err := s.repo.AddRestoredQty(ctx, defectiveID, qty); err != nil {
		if _, rerr := s.stock.MarkDefective(ctx, rec.ItemID, qty); rerr != nil {
			s.logger.Error("restore rollback failed", slog.Int64("item", rec.ItemID), slog.Any("error", rerr))
		}
		return RestoreRecord{}, err
	}
	restore := RestoreRecord{
		DocumentNumber: number,
		DefectiveID:    defectiveID,
		ItemID:         rec.ItemID,
		Quantity:       qty,
		RestoredBy:     restoredBy,
	}
	id, err := s.repo.InsertRestore(ctx, restore)
	if err != nil {
		return RestoreRecord{}, err
	}
	restore.ID = id
	s.logger.Info("defective restored",
		slog.String("document", number),
		slog.Int64("item", rec.ItemID),
		slog.Int64("qty", qty))
	return restore, nil
}

// DeleteDefective removes a defective record and returns its
// outstanding quantity to on-hand stock.
func (s *Service) DeleteDefective(ctx context.Context, defectiveID int64, actor string) error {
	rec, err := s.repo.GetDefective(ctx, defectiveID)
	if err != nil {
		if errors.Is(err, ErrDefectiveNotFound) {
			return fmt.Errorf("%w: defective record %d", shared.ErrNotFound, defectiveID)
		}
		return err
	}
	if outstanding := rec.Outstanding(); outstanding > 0 {
		if _, err := s.stock.RestoreDefective(ctx, rec.ItemID, outstanding); err != nil {
			return err
		}
	}
	if err := s.repo.DeleteDefective(ctx, defectiveID); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "defective.delete",
			Entity:   "defective_record",
			EntityID: rec.DocumentNumber,
			Meta:     map[string]any{"itemId": rec.ItemID, "quantity": rec.Quantity, "restored": rec.RestoredQty},
		})
	}
	return nil
}

// ListDefectives returns all defective records.
func (s *Service) ListDefectives(ctx context.Context) ([]DefectiveRecord, error) {
	return s.repo.ListDefectives(ctx)
}

// ListRestores returns the restore history for a defective record.
func (s *Service) ListRestores(ctx context.Context, defectiveID int64) ([]RestoreRecord, error) {
	return s.repo.ListRestores(ctx, defectiveID)
}

// List returns disposal records matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	return s.repo.ListDisposals(ctx, filter)
}

// Summary aggregates disposal history.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	return s.repo.Summarize(ctx)
}

// recordDisposal writes one disposal row with a fresh id.
func (s *Service) recordDisposal(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uuid.New()
	if rec.DisposedAt.IsZero() {
		rec.DisposedAt = s.now()
	}
	if err := s.repo.InsertDisposal(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
