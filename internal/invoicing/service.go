package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockline-erp/stockline/internal/counter"
	"github.com/stockline-erp/stockline/internal/inventory"
	"github.com/stockline-erp/stockline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Insert(ctx context.Context, inv Invoice) (int64, error)
	GetByNumber(ctx context.Context, number string) (Invoice, error)
	List(ctx context.Context, limit int) ([]Invoice, error)
	UpdateHeader(ctx context.Context, inv Invoice) error
	UpdateItems(ctx context.Context, inv Invoice) error
	DeleteByNumber(ctx context.Context, number string) error
	InsertArchive(ctx context.Context, arch ArchivedInvoice) error
	UpdateArchiveStockDetails(ctx context.Context, number string, details []StockRestoreDetail) error
	DeleteArchive(ctx context.Context, number string) error
	ListArchived(ctx context.Context, limit int) ([]ArchivedInvoice, error)
	InsertHistory(ctx context.Context, entry HistoryEntry) error
	ListHistory(ctx context.Context, number string) ([]HistoryEntry, error)
	InsertItemUpdate(ctx context.Context, rec ItemUpdateRecord) error
	ListItemUpdates(ctx context.Context, number string) ([]ItemUpdateRecord, error)
}

// LedgerPort is the batch ledger surface invoicing drives.
type LedgerPort interface {
	Consume(ctx context.Context, lines []inventory.ConsumeLine) ([]inventory.AppliedConsumption, error)
	Restore(ctx context.Context, lines []inventory.ConsumeLine) ([]inventory.AppliedConsumption, error)
}

// PromoPort resolves a promo code to its discount percent.
type PromoPort interface {
	ValidateCode(ctx context.Context, code string) (int64, error)
}

// LoyaltyPort settles coins against a completed invoice: the redeemed
// coins come off the balance, the earned coins go on.
type LoyaltyPort interface {
	SettleInvoiceCoins(ctx context.Context, customerPhone string, coinsUsed, baseValue int64) (int64, error)
}

// NumberPort issues document numbers.
type NumberPort interface {
	NextDocumentNumber(ctx context.Context, series string) (string, error)
}

// AuditPort records destructive operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the invoice lifecycle.
type Service struct {
	repo    RepositoryPort
	ledger  LedgerPort
	promos  PromoPort
	loyalty LoyaltyPort
	numbers NumberPort
	audit   AuditPort
	idem    *shared.IdempotencyStore
	logger  *slog.Logger
}

// NewService builds Service. Promo, loyalty, audit and idempotency are
// optional.
func NewService(repo RepositoryPort, ledger LedgerPort, numbers NumberPort, logger *slog.Logger,
	promos PromoPort, loyalty LoyaltyPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledger,
		promos:  promos,
		loyalty: loyalty,
		numbers: numbers,
		audit:   audit,
		idem:    idem,
		logger:  logger,
	}
}

// CreateInput carries a new invoice request.
type CreateInput struct {
	CustomerName   string
	CustomerPhone  string
	Items          []Item
	PromoCode      string
	LoyaltyCoins   int64
	Notes          string
	PaymentMethod  string
	CreatedBy      string
	IdempotencyKey string
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	verrs := &shared.ValidationErrors{}
	for _, item := range items {
		if item.ProductID == 0 || item.BatchNumber == "" {
			verrs.Add(shared.FieldError{ProductID: item.ProductID, BatchNumber: item.BatchNumber, Reason: "productId and batchNumber are required"})
		}
		if item.Quantity < 1 {
			verrs.Add(shared.FieldError{ProductID: item.ProductID, BatchNumber: item.BatchNumber, Reason: "quantity must be at least 1"})
		}
		if item.Price.IsNegative() {
			verrs.Add(shared.FieldError{ProductID: item.ProductID, BatchNumber: item.BatchNumber, Reason: "price must not be negative"})
		}
		if item.DiscountPct < 0 || item.DiscountPct > 100 {
			verrs.Add(shared.FieldError{ProductID: item.ProductID, BatchNumber: item.BatchNumber, Reason: "discountPct must be between 0 and 100"})
		}
		if item.TaxSlab < 0 {
			verrs.Add(shared.FieldError{ProductID: item.ProductID, BatchNumber: item.BatchNumber, Reason: "taxSlab must not be negative"})
		}
	}
	return verrs.AsError()
}

// Create issues the document number, persists the invoice, draws down
// the named batches and settles loyalty coins. The ledger draw-down and
// coin settlement run after persistence; if either fails, every
// completed step is compensated so no half-created invoice survives.
func (s *Service) Create(ctx context.Context, input CreateInput) (Invoice, error) {
	if err := validateItems(input.Items); err != nil {
		return Invoice{}, err
	}
	if input.LoyaltyCoins < 0 {
		return Invoice{}, fmt.Errorf("%w: loyalty coins must not be negative", shared.ErrValidation)
	}
	if input.LoyaltyCoins > 0 && (input.CustomerPhone == "" || s.loyalty == nil) {
		return Invoice{}, fmt.Errorf("%w: loyalty redemption requires a known customer phone", shared.ErrValidation)
	}

	if s.idem != nil && input.IdempotencyKey != "" {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "invoicing"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Invoice{}, fmt.Errorf("%w: duplicate invoice submission", shared.ErrConflict)
			}
			return Invoice{}, err
		}
	}

	var promoPct int64
	if input.PromoCode != "" {
		if s.promos == nil {
			return Invoice{}, fmt.Errorf("%w: promo codes not supported", shared.ErrValidation)
		}
		pct, err := s.promos.ValidateCode(ctx, input.PromoCode)
		if err != nil {
			return Invoice{}, err
		}
		promoPct = pct
	}

	number, err := s.numbers.NextDocumentNumber(ctx, counter.SeriesInvoice)
	if err != nil {
		return Invoice{}, err
	}

	totals := CalculateTotals(input.Items, promoPct, input.LoyaltyCoins)
	inv := Invoice{
		Number:             number,
		CustomerName:       input.CustomerName,
		CustomerPhone:      input.CustomerPhone,
		Items:              totals.Items,
		Subtotal:           totals.Subtotal,
		ItemDiscount:       totals.ItemDiscount,
		PromoCode:          input.PromoCode,
		PromoPct:           promoPct,
		PromoDiscount:      totals.PromoDiscount,
		LoyaltyCoinsUsed:   totals.LoyaltyCoinsUsed,
		LoyaltyDiscount:    totals.LoyaltyDiscount,
		LoyaltyCoinsEarned: totals.LoyaltyCoinsEarned,
		BaseValue:          totals.BaseValue,
		Total:              totals.Total,
		Notes:              input.Notes,
		PaymentMethod:      input.PaymentMethod,
		CreatedBy:          input.CreatedBy,
	}

	lines := consumeLines(inv.Items)
	var applied []inventory.AppliedConsumption

	saga := shared.NewSaga(s.logger).
		AddStep(shared.SagaStep{
			Name: "persist-invoice",
			Run: func(ctx context.Context) error {
				id, err := s.repo.Insert(ctx, inv)
				if err != nil {
					return err
				}
				inv.ID = id
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return s.repo.DeleteByNumber(ctx, inv.Number)
			},
		}).
		AddStep(shared.SagaStep{
			Name: "consume-batches",
			Run: func(ctx context.Context) error {
				var err error
				applied, err = s.ledger.Consume(ctx, lines)
				return err
			},
			Compensate: func(ctx context.Context) error {
				if len(applied) == 0 {
					return nil
				}
				_, err := s.ledger.Restore(ctx, restoreLines(applied))
				return err
			},
		})
	if s.loyalty != nil && input.CustomerPhone != "" {
		saga.AddStep(shared.SagaStep{
			Name: "settle-loyalty",
			Run: func(ctx context.Context) error {
				_, err := s.loyalty.SettleInvoiceCoins(ctx, input.CustomerPhone,
					totals.LoyaltyCoinsUsed, totals.BaseValue.IntPart())
				return err
			},
		})
	}

	if err := saga.Execute(ctx); err != nil {
		if s.idem != nil && input.IdempotencyKey != "" {
			_ = s.idem.Delete(ctx, input.IdempotencyKey, "invoicing")
		}
		return Invoice{}, err
	}

	s.logger.Info("invoice created",
		slog.String("number", inv.Number),
		slog.Int("items", len(inv.Items)),
		slog.String("total", inv.Total.String()))
	return inv, nil
}

// UpdateHeader edits the bounded header fields, recording one history
// entry per changed field. Items and totals have their own flow.
func (s *Service) UpdateHeader(ctx context.Context, number string, update HeaderUpdate, updatedBy string) (Invoice, error) {
	inv, err := s.Get(ctx, number)
	if err != nil {
		return Invoice{}, err
	}

	changes := []HistoryEntry{}
	apply := func(field string, target *string, next *string) {
		if next == nil || *next == *target {
			return
		}
		changes = append(changes, HistoryEntry{
			InvoiceNumber: number,
			Field:         field,
			OldValue:      *target,
			NewValue:      *next,
			UpdatedBy:     updatedBy,
		})
		*target = *next
	}
	apply("customerName", &inv.CustomerName, update.CustomerName)
	apply("customerPhone", &inv.CustomerPhone, update.CustomerPhone)
	apply("notes", &inv.Notes, update.Notes)
	apply("paymentMethod", &inv.PaymentMethod, update.PaymentMethod)

	if len(changes) == 0 {
		return inv, nil
	}
	if err := s.repo.UpdateHeader(ctx, inv); err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return Invoice{}, fmt.Errorf("%w: invoice %s", shared.ErrNotFound, number)
		}
		return Invoice{}, err
	}
	for _, entry := range changes {
		if err := s.repo.InsertHistory(ctx, entry); err != nil {
			s.logger.Error("invoice history write failed", slog.String("number", number), slog.Any("error", err))
		}
	}
	inv.UpdatedAt = time.Now()
	return inv, nil
}

type lineKey struct {
	productID   int64
	batchNumber string
}

// UpdateItems replaces the invoice's item set. The old and new sets are
// diffed per batch: net increases draw the extra stock down, net
// decreases put it back, and the totals are repriced with the stored
// promo percent and loyalty redemption. Every run, successful or rolled
// back, leaves an ItemUpdateRecord with the diff, the ledger movements
// and the outcome.
func (s *Service) UpdateItems(ctx context.Context, number string, newItems []Item, updatedBy string) (Invoice, error) {
	if err := validateItems(newItems); err != nil {
		return Invoice{}, err
	}
	inv, err := s.Get(ctx, number)
	if err != nil {
		return Invoice{}, err
	}

	rec := ItemUpdateRecord{InvoiceNumber: number, OldTotal: inv.Total, UpdatedBy: updatedBy}
	consume := []inventory.ConsumeLine{}
	restore := []inventory.ConsumeLine{}

	oldByKey := make(map[lineKey]Item, len(inv.Items))
	for _, item := range inv.Items {
		oldByKey[lineKey{item.ProductID, item.BatchNumber}] = item
	}
	seen := make(map[lineKey]bool, len(newItems))
	for _, item := range newItems {
		key := lineKey{item.ProductID, item.BatchNumber}
		if seen[key] {
			return Invoice{}, fmt.Errorf("%w: duplicate line for product %d batch %s", shared.ErrValidation, item.ProductID, item.BatchNumber)
		}
		seen[key] = true
		old, ok := oldByKey[key]
		if !ok {
			rec.ItemsAdded = append(rec.ItemsAdded, item)
			consume = append(consume, inventory.ConsumeLine{ProductID: item.ProductID, ProductName: item.Name, BatchNumber: item.BatchNumber, Quantity: item.Quantity})
			continue
		}
		if item.Quantity != old.Quantity {
			rec.ItemsUpdated = append(rec.ItemsUpdated, ItemQuantityChange{
				ProductID:          item.ProductID,
				BatchNumber:        item.BatchNumber,
				OldQuantity:        old.Quantity,
				NewQuantity:        item.Quantity,
				QuantityDifference: item.Quantity - old.Quantity,
			})
			if delta := item.Quantity - old.Quantity; delta > 0 {
				consume = append(consume, inventory.ConsumeLine{ProductID: item.ProductID, ProductName: item.Name, BatchNumber: item.BatchNumber, Quantity: delta})
			} else {
				restore = append(restore, inventory.ConsumeLine{ProductID: item.ProductID, ProductName: item.Name, BatchNumber: item.BatchNumber, Quantity: -delta})
			}
		}
	}
	for _, item := range inv.Items {
		if !seen[lineKey{item.ProductID, item.BatchNumber}] {
			rec.ItemsRemoved = append(rec.ItemsRemoved, item)
			restore = append(restore, inventory.ConsumeLine{ProductID: item.ProductID, ProductName: item.Name, BatchNumber: item.BatchNumber, Quantity: item.Quantity})
		}
	}

	totals := CalculateTotals(newItems, inv.PromoPct, inv.LoyaltyCoinsUsed)
	updated := inv
	updated.Items = totals.Items
	updated.Subtotal = totals.Subtotal
	updated.ItemDiscount = totals.ItemDiscount
	updated.PromoDiscount = totals.PromoDiscount
	updated.LoyaltyCoinsUsed = totals.LoyaltyCoinsUsed
	updated.LoyaltyDiscount = totals.LoyaltyDiscount
	updated.LoyaltyCoinsEarned = totals.LoyaltyCoinsEarned
	updated.BaseValue = totals.BaseValue
	updated.Total = totals.Total
	rec.NewTotal = totals.Total
	rec.Difference = totals.Total.Sub(inv.Total)

	var consumed, restored []inventory.AppliedConsumption
	saga := shared.NewSaga(s.logger)
	if len(consume) > 0 {
		saga.AddStep(shared.SagaStep{
			Name: "draw-added-stock",
			Run: func(ctx context.Context) error {
				var err error
				consumed, err = s.ledger.Consume(ctx, consume)
				return err
			},
			Compensate: func(ctx context.Context) error {
				if len(consumed) == 0 {
					return nil
				}
				_, err := s.ledger.Restore(ctx, restoreLines(consumed))
				return err
			},
		})
	}
	if len(restore) > 0 {
		saga.AddStep(shared.SagaStep{
			Name: "return-removed-stock",
			Run: func(ctx context.Context) error {
				var err error
				restored, err = s.ledger.Restore(ctx, restore)
				return err
			},
			Compensate: func(ctx context.Context) error {
				if len(restored) == 0 {
					return nil
				}
				_, err := s.ledger.Consume(ctx, restoreLines(restored))
				return err
			},
		})
	}
	saga.AddStep(shared.SagaStep{
		Name: "persist-items",
		Run: func(ctx context.Context) error {
			return s.repo.UpdateItems(ctx, updated)
		},
		Compensate: func(ctx context.Context) error {
			return s.repo.UpdateItems(ctx, inv)
		},
	})

	sagaErr := saga.Execute(ctx)
	for _, a := range consumed {
		rec.InventoryUpdates = append(rec.InventoryUpdates, InventoryAdjustment{
			ProductID: a.ProductID, BatchNumber: a.BatchNumber, Operation: AdjustmentDeduct,
			Quantity: a.Quantity, BeforeQuantity: a.OldQuantity, AfterQuantity: a.NewQuantity,
		})
	}
	for _, a := range restored {
		rec.InventoryUpdates = append(rec.InventoryUpdates, InventoryAdjustment{
			ProductID: a.ProductID, BatchNumber: a.BatchNumber, Operation: AdjustmentAdd,
			Quantity: a.Quantity, BeforeQuantity: a.OldQuantity, AfterQuantity: a.NewQuantity,
		})
	}

	if sagaErr != nil {
		rec.Status = ItemUpdateRolledBack
		rec.ErrorDetails = sagaErr.Error()
		var se *shared.SagaError
		if errors.As(sagaErr, &se) {
			for _, cerr := range se.CompensationErrs {
				rec.ErrorDetails += "; " + cerr.Error()
			}
		}
		if werr := s.repo.InsertItemUpdate(ctx, rec); werr != nil {
			s.logger.Error("item update trail write failed", slog.String("number", number), slog.Any("error", werr))
		}
		return Invoice{}, sagaErr
	}

	rec.Status = ItemUpdateSuccess
	if err := s.repo.InsertItemUpdate(ctx, rec); err != nil {
		s.logger.Error("item update trail write failed", slog.String("number", number), slog.Any("error", err))
	}
	updated.UpdatedAt = time.Now()
	s.logger.Info("invoice items updated",
		slog.String("number", number),
		slog.Int("added", len(rec.ItemsAdded)),
		slog.Int("removed", len(rec.ItemsRemoved)),
		slog.Int("changed", len(rec.ItemsUpdated)))
	return updated, nil
}

// Delete archives a copy of the invoice, restores its stock into the
// archive's before/after detail, then removes the document. The archive
// lands first so a crash mid-way leaves an archived record rather than
// restored stock with no trace of where it came from.
func (s *Service) Delete(ctx context.Context, number, deletedBy string) (ArchivedInvoice, error) {
	inv, err := s.Get(ctx, number)
	if err != nil {
		return ArchivedInvoice{}, err
	}

	lines := consumeLines(inv.Items)
	var restored []inventory.AppliedConsumption
	arch := ArchivedInvoice{Invoice: inv, DeletedBy: deletedBy}

	saga := shared.NewSaga(s.logger).
		AddStep(shared.SagaStep{
			Name: "archive-invoice",
			Run: func(ctx context.Context) error {
				return s.repo.InsertArchive(ctx, arch)
			},
			Compensate: func(ctx context.Context) error {
				return s.repo.DeleteArchive(ctx, number)
			},
		}).
		AddStep(shared.SagaStep{
			Name: "restore-stock",
			Run: func(ctx context.Context) error {
				var err error
				restored, err = s.ledger.Restore(ctx, lines)
				if err != nil {
					return err
				}
				for _, a := range restored {
					arch.StockDetails = append(arch.StockDetails, StockRestoreDetail{
						ProductID:   a.ProductID,
						BatchNumber: a.BatchNumber,
						Quantity:    a.Quantity,
						OldQuantity: a.OldQuantity,
						NewQuantity: a.NewQuantity,
					})
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				if len(restored) == 0 {
					return nil
				}
				_, err := s.ledger.Consume(ctx, restoreLines(restored))
				return err
			},
		}).
		AddStep(shared.SagaStep{
			Name: "record-restoration",
			Run: func(ctx context.Context) error {
				return s.repo.UpdateArchiveStockDetails(ctx, number, arch.StockDetails)
			},
		}).
		AddStep(shared.SagaStep{
			Name: "delete-invoice",
			Run: func(ctx context.Context) error {
				return s.repo.DeleteByNumber(ctx, number)
			},
		})

	if err := saga.Execute(ctx); err != nil {
		return ArchivedInvoice{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    deletedBy,
			Action:   "invoice.delete",
			Entity:   "invoice",
			EntityID: number,
			Meta:     map[string]any{"total": inv.Total.String(), "items": len(inv.Items)},
		})
	}
	s.logger.Info("invoice deleted",
		slog.String("number", number),
		slog.String("by", deletedBy),
		slog.Int("restoredLines", len(restored)))
	return arch, nil
}

// Get loads one invoice by number.
func (s *Service) Get(ctx context.Context, number string) (Invoice, error) {
	inv, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return Invoice{}, fmt.Errorf("%w: invoice %s", shared.ErrNotFound, number)
		}
		return Invoice{}, err
	}
	return inv, nil
}

// List returns invoices newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Invoice, error) {
	return s.repo.List(ctx, limit)
}

// ListArchived returns deleted invoices newest first.
func (s *Service) ListArchived(ctx context.Context, limit int) ([]ArchivedInvoice, error) {
	return s.repo.ListArchived(ctx, limit)
}

// History returns the header edit trail for one invoice.
func (s *Service) History(ctx context.Context, number string) ([]HistoryEntry, error) {
	return s.repo.ListHistory(ctx, number)
}

// ItemUpdateHistory returns the item edit trail for one invoice.
func (s *Service) ItemUpdateHistory(ctx context.Context, number string) ([]ItemUpdateRecord, error) {
	return s.repo.ListItemUpdates(ctx, number)
}

func consumeLines(items []Item) []inventory.ConsumeLine {
	lines := make([]inventory.ConsumeLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, inventory.ConsumeLine{
			ProductID:   item.ProductID,
			ProductName: item.Name,
			BatchNumber: item.BatchNumber,
			Quantity:    item.Quantity,
		})
	}
	return lines
}

// restoreLines turns applied ledger movements back into request lines
// for the opposite operation.
func restoreLines(applied []inventory.AppliedConsumption) []inventory.ConsumeLine {
	lines := make([]inventory.ConsumeLine, 0, len(applied))
	for _, a := range applied {
		lines = append(lines, inventory.ConsumeLine{ProductID: a.ProductID, BatchNumber: a.BatchNumber, Quantity: a.Quantity})
	}
	return lines
}
