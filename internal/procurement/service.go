package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/stockline-erp/stockline/internal/components"
	"github.com/stockline-erp/stockline/internal/counter"
	"github.com/stockline-erp/stockline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	InsertPO(ctx context.Context, po PurchaseOrder) (int64, error)
	GetPO(ctx context.Context, number string) (PurchaseOrder, error)
	ListPOs(ctx context.Context, limit int) ([]PurchaseOrder, error)
	UpdatePO(ctx context.Context, po PurchaseOrder) error
	DeletePO(ctx context.Context, number string) error
	CountGRNsForPO(ctx context.Context, poNumber string) (int64, error)
	InsertGRN(ctx context.Context, grn GoodsReceipt) (int64, error)
	GetGRN(ctx context.Context, number string) (GoodsReceipt, error)
	ListGRNs(ctx context.Context, limit int) ([]GoodsReceipt, error)
	DeleteGRN(ctx context.Context, number string) error
}

// StockPort is the slice of the component stock service goods receipts
// move quantities through.
type StockPort interface {
	Receive(ctx context.Context, itemID, qty int64, rate decimal.Decimal) (components.Stock, error)
	Unreceive(ctx context.Context, itemID, qty int64, rate decimal.Decimal) (components.Stock, error)
}

// NumberPort issues document numbers.
type NumberPort interface {
	NextDocumentNumber(ctx context.Context, series string) (string, error)
}

// AuditPort records destructive operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates purchase orders and goods receipts.
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

func (s *Service) loadPO(ctx context.Context, number string) (PurchaseOrder, error) {
	po, err := s.repo.GetPO(ctx, number)
	if err != nil {
		if errors.Is(err, ErrPONotFound) {
			return PurchaseOrder{}, fmt.Errorf("%w: purchase order %s", shared.ErrNotFound, number)
		}
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (s *Service) loadGRN(ctx context.Context, number string) (GoodsReceipt, error) {
	grn, err := s.repo.GetGRN(ctx, number)
	if err != nil {
		if errors.Is(err, ErrGRNNotFound) {
			return GoodsReceipt{}, fmt.Errorf("%w: goods receipt %s", shared.ErrNotFound, number)
		}
		return GoodsReceipt{}, err
	}
	return grn, nil
}

// CreatePOInput carries the fields of a new purchase order.
type CreatePOInput struct {
	VendorName string
	Lines      []OrderLine
	Notes      string
	CreatedBy  string
}

// CreatePO numbers and persists a purchase order.
func (s *Service) CreatePO(ctx context.Context, in CreatePOInput) (PurchaseOrder, error) {
	if err := validateLines(in.Lines); err != nil {
		return PurchaseOrder{}, err
	}
	if in.VendorName == "" {
		return PurchaseOrder{}, fmt.Errorf("%w: vendorName required", shared.ErrValidation)
	}
	number, err := s.numbers.NextDocumentNumber(ctx, counter.SeriesPurchaseOrder)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("issue purchase order number: %w", err)
	}
	po := PurchaseOrder{
		Number:     number,
		VendorName: in.VendorName,
		Lines:      in.Lines,
		Status:     StatusOpen,
		Notes:      in.Notes,
		CreatedBy:  in.CreatedBy,
	}
	id, err := s.repo.InsertPO(ctx, po)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.ID = id
	s.logger.Info("purchase order created", "number", po.Number, "vendor", po.VendorName, "lines", len(po.Lines))
	return po, nil
}

// UpdatePOInput carries the mutable purchase order fields.
type UpdatePOInput struct {
	VendorName string
	Lines      []OrderLine
	Notes      string
}

// UpdatePO rewrites an open purchase order. Orders with receipts booked
// against them are immutable.
func (s *Service) UpdatePO(ctx context.Context, number string, in UpdatePOInput) (PurchaseOrder, error) {
	if err := validateLines(in.Lines); err != nil {
		return PurchaseOrder{}, err
	}
	po, err := s.loadPO(ctx, number)
	if err != nil {
		return PurchaseOrder{}, err
	}
	refs, err := s.repo.CountGRNsForPO(ctx, number)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if refs > 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order %s has %d goods receipts", shared.ErrConflict, number, refs)
	}
	po.VendorName = in.VendorName
	po.Lines = in.Lines
	po.Notes = in.Notes
	if err := s.repo.UpdatePO(ctx, po); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// ClosePO marks a purchase order fully received.
func (s *Service) ClosePO(ctx context.Context, number string) (PurchaseOrder, error) {
	po, err := s.loadPO(ctx, number)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Status = StatusClosed
	if err := s.repo.UpdatePO(ctx, po); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// DeletePO removes a purchase order no receipts reference.
func (s *Service) DeletePO(ctx context.Context, number, actor string) error {
	if _, err := s.loadPO(ctx, number); err != nil {
		return err
	}
	refs, err := s.repo.CountGRNsForPO(ctx, number)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: purchase order %s has %d goods receipts", shared.ErrConflict, number, refs)
	}
	if err := s.repo.DeletePO(ctx, number); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "purchase_order.delete",
		Entity:   "purchase_order",
		EntityID: number,
	}); err != nil {
		s.logger.Error("audit purchase order delete", "number", number, "error", err)
	}
	return nil
}

// GetPO returns one purchase order.
func (s *Service) GetPO(ctx context.Context, number string) (PurchaseOrder, error) {
	return s.loadPO(ctx, number)
}

// ListPOs returns recent purchase orders.
func (s *Service) ListPOs(ctx context.Context, limit int) ([]PurchaseOrder, error) {
	return s.repo.ListPOs(ctx, limit)
}

// CreateGRNInput carries the fields of a new goods receipt.
type CreateGRNInput struct {
	PONumber   string
	Lines      []OrderLine
	ReceivedBy string
}

// CreateGRN books received quantities into component stock under a GRN
// document. The receipt row and the per-line stock movements run as a
// saga: a failed movement rolls back the already applied lines and the
// receipt itself.
func (s *Service) CreateGRN(ctx context.Context, in CreateGRNInput) (GoodsReceipt, error) {
	if err := validateLines(in.Lines); err != nil {
		return GoodsReceipt{}, err
	}
	po, err := s.loadPO(ctx, in.PONumber)
	if err != nil {
		return GoodsReceipt{}, err
	}
	if po.Status == StatusClosed {
		return GoodsReceipt{}, fmt.Errorf("%w: purchase order %s is closed", shared.ErrConflict, po.Number)
	}
	number, err := s.numbers.NextDocumentNumber(ctx, counter.SeriesGRN)
	if err != nil {
		return GoodsReceipt{}, fmt.Errorf("issue goods receipt number: %w", err)
	}
	grn := GoodsReceipt{
		Number:     number,
		PONumber:   po.Number,
		Lines:      in.Lines,
		ReceivedBy: in.ReceivedBy,
	}

	var applied []OrderLine
	saga := shared.NewSaga(s.logger).
		AddStep(shared.SagaStep{
			Name: "persist-receipt",
			Run: func(ctx context.Context) error {
				id, err := s.repo.InsertGRN(ctx, grn)
				if err != nil {
					return err
				}
				grn.ID = id
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return s.repo.DeleteGRN(ctx, grn.Number)
			},
		}).
		AddStep(shared.SagaStep{
			Name: "receive-stock",
			Run: func(ctx context.Context) error {
				for _, line := range grn.Lines {
					if _, err := s.stock.Receive(ctx, line.ItemID, line.Quantity, line.Rate); err != nil {
						return fmt.Errorf("receive item %d: %w", line.ItemID, err)
					}
					applied = append(applied, line)
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				for i := len(applied) - 1; i >= 0; i-- {
					line := applied[i]
					if _, err := s.stock.Unreceive(ctx, line.ItemID, line.Quantity, line.Rate); err != nil {
						return fmt.Errorf("unreceive item %d: %w", line.ItemID, err)
					}
				}
				return nil
			},
		}).
		AddStep(shared.SagaStep{
			Name: "mark-receiving",
			Run: func(ctx context.Context) error {
				if po.Status != StatusOpen {
					return nil
				}
				po.Status = StatusReceiving
				return s.repo.UpdatePO(ctx, po)
			},
		})
	if err := saga.Execute(ctx); err != nil {
		return GoodsReceipt{}, err
	}
	s.logger.Info("goods receipt created", "number", grn.Number, "po", grn.PONumber, "lines", len(grn.Lines))
	return grn, nil
}

// DeleteGRN reverses the stock booked by a receipt and removes it.
func (s *Service) DeleteGRN(ctx context.Context, number, actor string) error {
	grn, err := s.loadGRN(ctx, number)
	if err != nil {
		return err
	}
	for _, line := range grn.Lines {
		if _, err := s.stock.Unreceive(ctx, line.ItemID, line.Quantity, line.Rate); err != nil {
			return fmt.Errorf("unreceive item %d: %w", line.ItemID, err)
		}
	}
	if err := s.repo.DeleteGRN(ctx, number); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "goods_receipt.delete",
		Entity:   "goods_receipt",
		EntityID: number,
		Meta:     map[string]any{"poNumber": grn.PONumber},
	}); err != nil {
		s.logger.Error("audit goods receipt delete", "number", number, "error", err)
	}
	return nil
}

// GetGRN returns one goods receipt.
func (s *Service) GetGRN(ctx context.Context, number string) (GoodsReceipt, error) {
	return s.loadGRN(ctx, number)
}

// ListGRNs returns recent goods receipts.
func (s *Service) ListGRNs(ctx context.Context, limit int) ([]GoodsReceipt, error) {
	return s.repo.ListGRNs(ctx, limit)
}

func validateLines(lines []OrderLine) error {
	verrs := &shared.ValidationErrors{}
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			verrs.Add(shared.FieldError{ItemID: line.ItemID, Field: "quantity", Reason: "must be positive"})
		}
		if line.Rate.IsNegative() {
			verrs.Add(shared.FieldError{ItemID: line.ItemID, Field: "rate", Reason: "must not be negative"})
		}
	}
	return verrs.AsError()
}
