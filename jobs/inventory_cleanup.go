package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockline-erp/stockline/internal/disposal"
)

// NewInventoryCleanupHandler returns the asynq handler that runs the
// disposal cleaner over the batch ledger.
func NewInventoryCleanupHandler(cleaner *disposal.Cleaner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		stats, err := cleaner.Run(ctx)
		if err != nil {
			logger.Error("inventory cleanup failed", "error", err)
			return err
		}
		logger.Info("inventory cleanup finished",
			"scanned", stats.ProductsScanned,
			"dormant", stats.DormantBatches,
			"expired", stats.ExpiredBatches,
			"failures", len(stats.Failures))
		return nil
	}
}
