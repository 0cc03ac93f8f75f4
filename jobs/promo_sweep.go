package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockline-erp/stockline/internal/sales"
)

// NewPromoSweepHandler returns the asynq handler that expires overdue
// promo codes.
func NewPromoSweepHandler(svc *sales.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		flagged, err := svc.SweepExpiredPromos(ctx)
		if err != nil {
			logger.Error("promo sweep failed", "error", err)
			return err
		}
		logger.Info("promo sweep finished", "flagged", flagged)
		return nil
	}
}
