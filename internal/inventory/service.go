package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockline-erp/stockline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, productID int64) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// ServiceConfig groups ledger settings.
type ServiceConfig struct {
	// ShelfLifeMonths sets batch expiry relative to manufacture date.
	ShelfLifeMonths int
}

// Service coordinates batch ledger operations.
type Service struct {
	repo      RepositoryPort
	logger    *slog.Logger
	shelfLife int
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	shelfLife := cfg.ShelfLifeMonths
	if shelfLife <= 0 {
		shelfLife = 60
	}
	return &Service{repo: repo, logger: logger, shelfLife: shelfLife, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// AddBatches receives lots into the ledger. An incoming batch whose
// number already exists merges into the stored batch when both share a
// manufacture month; a different month is a conflict. Price history
// grows only when at least one genuinely new batch lands.
func (s *Service) AddBatches(ctx context.Context, productID int64, incoming []IncomingBatch) (Product, error) {
	if len(incoming) == 0 {
		return Product{}, fmt.Errorf("%w: at least one batch required", shared.ErrValidation)
	}
	for _, in := range incoming {
		if in.BatchNumber == "" {
			return Product{}, fmt.Errorf("%w: batch number required", shared.ErrValidation)
		}
		if in.Quantity <= 0 {
			return Product{}, fmt.Errorf("%w: batch %s: quantity must be positive", shared.ErrValidation, in.BatchNumber)
		}
		if in.ManufactureDate.IsZero() {
			return Product{}, fmt.Errorf("%w: batch %s: manufacture date required", shared.ErrValidation, in.BatchNumber)
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProductForUpdate(ctx, productID); err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
			}
			return err
		}
		newBatches := 0
		for _, in := range incoming {
			existing, err := tx.GetBatchForUpdate(ctx, productID, in.BatchNumber)
			switch {
			case err == nil:
				if !sameMonth(existing.ManufactureDate, in.ManufactureDate) {
					return fmt.Errorf("%w: batch %s exists with manufacture month %s", shared.ErrConflict,
						in.BatchNumber, existing.ManufactureDate.Format("2006-01"))
				}
				if _, err := tx.AddBatchQuantity(ctx, productID, in.BatchNumber, in.Quantity); err != nil {
					return err
				}
			case errors.Is(err, ErrBatchNotFound):
				batch := Batch{
					ProductID:       productID,
					BatchNumber:     in.BatchNumber,
					Quantity:        in.Quantity,
					ManufactureDate: in.ManufactureDate,
					ExpiryDate:      in.ManufactureDate.AddDate(0, s.shelfLife, 0),
					Rate:            in.Rate,
				}
				if _, err := tx.InsertBatch(ctx, batch); err != nil {
					return err
				}
				if err := tx.InsertPricePoint(ctx, productID, in.Rate, s.now()); err != nil {
					return err
				}
				newBatches++
			default:
				return err
			}
		}
		s.logger.Info("batches received",
			slog.Int64("product", productID),
			slog.Int("incoming", len(incoming)),
			slog.Int("new", newBatches))
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return s.repo.GetProduct(ctx, productID)
}

// Consume draws down the named batches. Every line is validated first
// and all failures are collected; nothing is written unless the whole
// request is clean. The applied consumptions are returned so a larger
// workflow can compensate.
func (s *Service) Consume(ctx context.Context, lines []ConsumeLine) ([]AppliedConsumption, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	now := s.now()
	applied := []AppliedConsumption{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		verrs := &shared.ValidationErrors{}
		batches := make([]Batch, len(lines))
		for i, line := range lines {
			if line.Quantity < 1 {
				verrs.Add(shared.FieldError{ProductID: line.ProductID, BatchNumber: line.BatchNumber, Reason: "quantity must be at least 1"})
				continue
			}
			batch, err := tx.GetBatchForUpdate(ctx, line.ProductID, line.BatchNumber)
			if err != nil {
				if errors.Is(err, ErrBatchNotFound) {
					verrs.Add(shared.FieldError{ProductID: line.ProductID, BatchNumber: line.BatchNumber, Reason: "batch not found"})
					continue
				}
				return err
			}
			if batch.Expired(now) {
				verrs.Add(shared.FieldError{ProductID: line.ProductID, BatchNumber: line.BatchNumber,
					Reason: fmt.Sprintf("batch expired on %s", batch.ExpiryDate.Format("2006-01-02"))})
				continue
			}
			if batch.Quantity < line.Quantity {
				verrs.Add(shared.FieldError{ProductID: line.ProductID, BatchNumber: line.BatchNumber,
					Reason: fmt.Sprintf("insufficient quantity: available %d, requested %d", batch.Quantity, line.Quantity)})
				continue
			}
			batches[i] = batch
		}
		if err := verrs.AsError(); err != nil {
			return err
		}
		for i, line := range lines {
			remaining, err := tx.DecrementBatchQuantity(ctx, line.ProductID, line.BatchNumber, line.Quantity)
			if err != nil {
				if errors.Is(err, ErrBatchNotFound) {
					return fmt.Errorf("%w: product %d batch %s", shared.ErrInsufficientQuantity, line.ProductID, line.BatchNumber)
				}
				return err
			}
			applied = append(applied, AppliedConsumption{
				ProductID:   line.ProductID,
				BatchNumber: line.BatchNumber,
				Quantity:    line.Quantity,
				OldQuantity: batches[i].Quantity,
				NewQuantity: remaining,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Restore puts consumed quantities back onto their batches. A batch the
// cleanup sweep has already purged is re-created with fresh dates so
// the stock still lands somewhere countable; only a missing product
// fails the request. Every line is checked before any quantity moves.
func (s *Service) Restore(ctx context.Context, lines []ConsumeLine) ([]AppliedConsumption, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	now := s.now()
	applied := []AppliedConsumption{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		verrs := &shared.ValidationErrors{}
		batches := make([]Batch, len(lines))
		recreate := make([]bool, len(lines))
		for i, line := range lines {
			batch, err := tx.GetBatchForUpdate(ctx, line.ProductID, line.BatchNumber)
			if err != nil {
				if errors.Is(err, ErrBatchNotFound) {
					if _, perr := tx.GetProductForUpdate(ctx, line.ProductID); perr != nil {
						if errors.Is(perr, ErrProductNotFound) {
							verrs.Add(shared.FieldError{ProductID: line.ProductID, BatchNumber: line.BatchNumber, Reason: "product not found"})
							continue
						}
						return perr
					}
					recreate[i] = true
					continue
				}
				return err
			}
			batches[i] = batch
		}
		if err := verrs.AsError(); err != nil {
			return err
		}
		for i, line := range lines {
			if recreate[i] {
				batch := Batch{
					ProductID:       line.ProductID,
					BatchNumber:     line.BatchNumber,
					Quantity:        line.Quantity,
					ManufactureDate: now,
					ExpiryDate:      now.AddDate(0, s.shelfLife, 0),
				}
				if _, err := tx.InsertBatch(ctx, batch); err != nil {
					return err
				}
				s.logger.Info("restore re-created purged batch",
					slog.Int64("product", line.ProductID),
					slog.String("batch", line.BatchNumber),
					slog.Int64("qty", line.Quantity))
				applied = append(applied, AppliedConsumption{
					ProductID:   line.ProductID,
					BatchNumber: line.BatchNumber,
					Quantity:    line.Quantity,
					OldQuantity: 0,
					NewQuantity: line.Quantity,
				})
				continue
			}
			newQty, err := tx.AddBatchQuantity(ctx, line.ProductID, line.BatchNumber, line.Quantity)
			if err != nil {
				return err
			}
			applied = append(applied, AppliedConsumption{
				ProductID:   line.ProductID,
				BatchNumber: line.BatchNumber,
				Quantity:    line.Quantity,
				OldQuantity: batches[i].Quantity,
				NewQuantity: newQty,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Withdraw pulls quantities off the named batches for disposal. Unlike
// Consume it ignores expiry, since expired stock is exactly what gets
// disposed, and it deletes batches it empties. In strict mode every
// problem is collected and the request fails whole; with skipUnavailable
// missing or short batches are passed over and whatever can be pulled
// is pulled.
func (s *Service) Withdraw(ctx context.Context, productID int64, selections []BatchSelection, skipUnavailable bool) ([]WithdrawnBatch, error) {
	if len(selections) == 0 {
		return nil, fmt.Errorf("%w: at least one batch required", shared.ErrValidation)
	}
	withdrawn := []WithdrawnBatch{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProductForUpdate(ctx, productID); err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
			}
			return err
		}
		verrs := &shared.ValidationErrors{}
		eligible := make([]Batch, 0, len(selections))
		quantities := make([]int64, 0, len(selections))
		for _, sel := range selections {
			if sel.Quantity < 1 {
				if !skipUnavailable {
					verrs.Add(shared.FieldError{ProductID: productID, BatchNumber: sel.BatchNumber, Reason: "quantity must be at least 1"})
				}
				continue
			}
			batch, err := tx.GetBatchForUpdate(ctx, productID, sel.BatchNumber)
			if err != nil {
				if errors.Is(err, ErrBatchNotFound) {
					if !skipUnavailable {
						verrs.Add(shared.FieldError{ProductID: productID, BatchNumber: sel.BatchNumber, Reason: "batch not found"})
					}
					continue
				}
				return err
			}
			if batch.Quantity < sel.Quantity {
				if !skipUnavailable {
					verrs.Add(shared.FieldError{ProductID: productID, BatchNumber: sel.BatchNumber,
						Reason: fmt.Sprintf("insufficient quantity: available %d, requested %d", batch.Quantity, sel.Quantity)})
				}
				continue
			}
			eligible = append(eligible, batch)
			quantities = append(quantities, sel.Quantity)
		}
		if err := verrs.AsError(); err != nil {
			return err
		}
		for i, batch := range eligible {
			remaining, err := tx.DecrementBatchQuantity(ctx, productID, batch.BatchNumber, quantities[i])
			if err != nil {
				return err
			}
			if remaining == 0 {
				if err := tx.DeleteBatch(ctx, productID, batch.BatchNumber); err != nil {
					return err
				}
			}
			withdrawn = append(withdrawn, WithdrawnBatch{
				BatchNumber:     batch.BatchNumber,
				Quantity:        quantities[i],
				ManufactureDate: batch.ManufactureDate,
				ExpiryDate:      batch.ExpiryDate,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// RemoveBatches deletes the named batches, used by the cleanup sweep.
func (s *Service) RemoveBatches(ctx context.Context, productID int64, batchNumbers []string) error {
	if len(batchNumbers) == 0 {
		return nil
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, number := range batchNumbers {
			if err := tx.DeleteBatch(ctx, productID, number); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get loads a product with batches and price history.
func (s *Service) Get(ctx context.Context, productID int64) (Product, error) {
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
		}
		return Product{}, err
	}
	return p, nil
}

// List returns all products with batch details.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}
