package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/stockline-erp/stockline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, itemID int64) (Stock, error)
	ListStock(ctx context.Context) ([]Stock, error)
}

// Service coordinates component stock mutations.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Receive books goods-receipt quantities onto an item. The average
// price follows the receipt count: each receipt contributes its rate
// once regardless of quantity.
func (s *Service) Receive(ctx context.Context, itemID, qty int64, rate decimal.Decimal) (Stock, error) {
	if qty <= 0 {
		return Stock{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if rate.IsNegative() {
		return Stock{}, fmt.Errorf("%w: rate must not be negative", shared.ErrValidation)
	}
	var out Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, itemID)
		if err != nil && !errors.Is(err, ErrStockNotFound) {
			return err
		}
		stock.ItemID = itemID
		stock.CurrentStock += qty
		stock.TotalRateSum = stock.TotalRateSum.Add(rate)
		stock.RateCount++
		stock.TotalQty += qty
		stock.AveragePrice = stock.TotalRateSum.Div(decimal.NewFromInt(stock.RateCount))
		out = stock
		return tx.UpsertStock(ctx, stock)
	})
	if err != nil {
		return Stock{}, err
	}
	return out, nil
}

// Unreceive reverses a goods receipt on GRN deletion. The reversal
// subtracts rate*qty from the rate sum and qty from both the received
// total and the rate counter, flooring every gauge at zero; an emptied
// counter averages to zero. Receipts bump the counter by one while
// reversals drop it by quantity, so the average re-centers on whatever
// receipts remain. Asymmetry included.
func (s *Service) Unreceive(ctx context.Context, itemID, qty int64, rate decimal.Decimal) (Stock, error) {
	if qty <= 0 {
		return Stock{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var out Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, itemID)
		if err != nil {
			if errors.Is(err, ErrStockNotFound) {
				return fmt.Errorf("%w: item %d", shared.ErrNotFound, itemID)
			}
			return err
		}
		stock.CurrentStock = floorZero(stock.CurrentStock - qty)
		stock.TotalRateSum = floorZeroDecimal(stock.TotalRateSum.Sub(rate.Mul(decimal.NewFromInt(qty))))
		stock.RateCount = floorZero(stock.RateCount - qty)
		stock.TotalQty = floorZero(stock.TotalQty - qty)
		if stock.RateCount > 0 {
			stock.AveragePrice = stock.TotalRateSum.Div(decimal.NewFromInt(stock.RateCount))
		} else {
			stock.AveragePrice = decimal.Zero
		}
		out = stock
		return tx.UpsertStock(ctx, stock)
	})
	if err != nil {
		return Stock{}, err
	}
	return out, nil
}

// Reserve marks quantities as in use by a work order. Availability is
// current stock minus what other orders already hold.
func (s *Service) Reserve(ctx context.Context, itemID, qty int64) (Stock, error) {
	if qty <= 0 {
		return Stock{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var out Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, itemID)
		if err != nil {
			if errors.Is(err, ErrStockNotFound) {
				return fmt.Errorf("%w: item %d", shared.ErrNotFound, itemID)
			}
			return err
		}
		if stock.Available() < qty {
			return fmt.Errorf("%w: item %d: available %d, requested %d",
				shared.ErrInsufficientQuantity, itemID, stock.Available(), qty)
		}
		stock.InUse += qty
		out = stock
		return tx.UpsertStock(ctx, stock)
	})
	if err != nil {
		return Stock{}, err
	}
	return out, nil
}

// Release frees a reservation, flooring at zero.
func (s *Service) Release(ctx context.Context, itemID, qty int64) (Stock, error) {
	if qty <= 0 {
		return Stock{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var out Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, itemID)
		if err != nil {
			if errors.Is(err, ErrStockNotFound) {
				return fmt.Errorf("%w: item %d", shared.ErrNotFound, itemID)
			}
			return err
		}
		stock.InUse = floorZero(stock.InUse - qty)
		out = stock
		return tx.UpsertStock(ctx, stock)
	})
	if err != nil {
		return Stock{}, err
	}
	return out, nil
}

// ConsumeReserved converts a reservation into consumed stock when a
// work order completes: both the hold and the on-hand quantity drop.
func (s *Service) ConsumeReserved(ctx context.Context, itemID, qty int64) (Stock, error) {
	if qty <= 0 {
		return Stock{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var out Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, itemID)
		if err != nil {
			if errors.Is(err, ErrStockNotFound) {
				return fmt.Errorf("%w: item %d", shared.ErrNotFound, itemID)
			}
			return err
		}
		stock.InUse = floorZero(stock.InUse - qty)
		stock.CurrentStock = floorZero(stock.CurrentStock - qty)
		out = stock
		return tx.UpsertStock(ctx, stock)
	})
	if err != nil {
		return Stock{}, err
	}
	return out, nil
}

// MarkDefective moves on-hand stock into the defect gauge.
func (s *Service) MarkDefective(ctx context.Context, itemID, qty int64) (Stock, error) {
	if qty <= 0 {
		return Stock{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var out Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, itemID)
		if err != nil {
			if errors.Is(err, ErrStockNotFound) {
				return fmt.Errorf("%w: item %d", shared.ErrNotFound, itemID)
			}
			return err
		}
		stock.Defect += qty
		stock.CurrentStock = floorZero(stock.CurrentStock - qty)
		out = stock
		return tx.UpsertStock(ctx, stock)
	})
	if err != nil {
		return Stock{}, err
	}
	return out, nil
}

// RestoreDefective moves quantities out of the defect gauge back into
// on-hand stock. The caller must not restore more than is flagged.
func (s *Service) RestoreDefective(ctx context.Context, itemID, qty int64) (Stock, error) {
	if qty <= 0 {
		return Stock{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var out Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, itemID)
		if err != nil {
			if errors.Is(err, ErrStockNotFound) {
				return fmt.Errorf("%w: item %d", shared.ErrNotFound, itemID)
			}
			return err
		}
		if stock.Defect < qty {
			return fmt.Errorf("%w: item %d: defect gauge %d, requested %d",
				shared.ErrInsufficientQuantity, itemID, stock.Defect, qty)
		}
		stock.Defect -= qty
		stock.CurrentStock += qty
		out = stock
		return tx.UpsertStock(ctx, stock)
	})
	if err != nil {
		return Stock{}, err
	}
	return out, nil
}

// Get loads one item's gauges.
func (s *Service) Get(ctx context.Context, itemID int64) (Stock, error) {
	stock, err := s.repo.GetStock(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return Stock{}, fmt.Errorf("%w: item %d", shared.ErrNotFound, itemID)
		}
		return Stock{}, err
	}
	return stock, nil
}

// List returns every item gauge row.
func (s *Service) List(ctx context.Context) ([]Stock, error) {
	return s.repo.ListStock(ctx)
}
