package disposal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stockline-erp/stockline/internal/inventory"
)

// LedgerPort is the slice of the batch ledger the sweep reads and prunes.
type LedgerPort interface {
	List(ctx context.Context) ([]inventory.Product, error)
	RemoveBatches(ctx context.Context, productID int64, batchNumbers []string) error
}

// CleanupConfig sets sweep thresholds.
type CleanupConfig struct {
	// DormantMonths ages out zero-quantity batches.
	DormantMonths int
	// ExpiryGraceDays delays expired disposal past the expiry date.
	ExpiryGraceDays int
	// Workers bounds sweep concurrency across products.
	Workers int
}

// Cleaner runs the periodic batch hygiene sweep.
type Cleaner struct {
	service *Service
	ledger  LedgerPort
	logger  *slog.Logger
	cfg     CleanupConfig
	now     func() time.Time
}

// NewCleaner builds Cleaner.
func NewCleaner(service *Service, ledger LedgerPort, logger *slog.Logger, cfg CleanupConfig) *Cleaner {
	if cfg.DormantMonths <= 0 {
		cfg.DormantMonths = 6
	}
	if cfg.ExpiryGraceDays <= 0 {
		cfg.ExpiryGraceDays = 30
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Cleaner{service: service, ledger: ledger, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the cleaner clock for testing.
func (c *Cleaner) WithNow(fn func() time.Time) {
	if fn != nil {
		c.now = fn
	}
}

// Run sweeps every product once. A product that fails is recorded and
// skipped; the sweep never aborts because one ledger entry is bad.
// At most one disposal record per product and type is written per run.
func (c *Cleaner) Run(ctx context.Context) (CleanupStats, error) {
	now := c.now()
	stats := CleanupStats{RanAt: now}

	products, err := c.ledger.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("cleanup: list products: %w", err)
	}
	stats.ProductsScanned = len(products)

	dormantCutoff := now.AddDate(0, -c.cfg.DormantMonths, 0)
	graceCutoff := now.AddDate(0, 0, -c.cfg.ExpiryGraceDays)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	for _, product := range products {
		g.Go(func() error {
			dormant, expired, expiredQty := classifyBatches(product.Batches, dormantCutoff, graceCutoff)
			if len(dormant) == 0 && len(expired) == 0 {
				return nil
			}
			if err := c.sweepProduct(gctx, product, dormant, expired, expiredQty); err != nil {
				mu.Lock()
				stats.Failures = append(stats.Failures, CleanupFailure{ProductID: product.ID, Reason: err.Error()})
				mu.Unlock()
				c.logger.Warn("cleanup skipped product",
					slog.Int64("product", product.ID),
					slog.Any("error", err))
				return nil
			}
			mu.Lock()
			stats.DormantBatches += len(dormant)
			stats.ExpiredBatches += len(expired)
			stats.ExpiredQuantity += expiredQty
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	c.logger.Info("cleanup sweep finished",
		slog.Int("scanned", stats.ProductsScanned),
		slog.Int("dormant", stats.DormantBatches),
		slog.Int("expired", stats.ExpiredBatches),
		slog.Int("failures", len(stats.Failures)))
	return stats, nil
}

func (c *Cleaner) sweepProduct(ctx context.Context, product inventory.Product, dormant, expired []string, expiredQty int64) error {
	if len(dormant) > 0 {
		rec := Record{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Type:         TypeDefective,
			Quantity:     0,
			BatchNumbers: dormant,
			Reason:       fmt.Sprintf("dormant zero-quantity batches older than %d months", c.cfg.DormantMonths),
			DisposedBy:   SystemActor,
		}
		if _, err := c.service.recordDisposal(ctx, rec); err != nil {
			return fmt.Errorf("record dormant disposal: %w", err)
		}
	}
	if len(expired) > 0 {
		rec := Record{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Type:         TypeExpired,
			Quantity:     expiredQty,
			BatchNumbers: expired,
			Reason:       fmt.Sprintf("expired more than %d days ago", c.cfg.ExpiryGraceDays),
			DisposedBy:   SystemActor,
		}
		if _, err := c.service.recordDisposal(ctx, rec); err != nil {
			return fmt.Errorf("record expired disposal: %w", err)
		}
	}
	remove := append(append([]string{}, dormant...), expired...)
	if err := c.ledger.RemoveBatches(ctx, product.ID, remove); err != nil {
		return fmt.Errorf("remove batches: %w", err)
	}
	return nil
}

// classifyBatches splits a product's batches into dormant zero-quantity
// lots and stocked lots past the expiry grace window.
func classifyBatches(batches []inventory.Batch, dormantCutoff, graceCutoff time.Time) (dormant, expired []string, expiredQty int64) {
	for _, b := range batches {
		switch {
		case b.Quantity == 0 && b.AddedAt.Before(dormantCutoff):
			dormant = append(dormant, b.BatchNumber)
		case b.Quantity > 0 && b.ExpiryDate.Before(graceCutoff):
			expired = append(expired, b.BatchNumber)
			expiredQty += b.Quantity
		}
	}
	return dormant, expired, expiredQty
}
