package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryCleanup triggers the nightly disposal sweep over the
	// batch ledger.
	TaskInventoryCleanup = "inventory:cleanup"
	// TaskPromoSweep flags promo codes whose end date has passed.
	TaskPromoSweep = "promo:sweep"
)

// SweepPayload carries scheduling metadata shared by both periodic
// tasks.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduledFor"`
}

// NewInventoryCleanupTask constructs the nightly cleanup task.
func NewInventoryCleanupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryCleanup, body, asynq.Queue(QueueDefault)), nil
}

// NewPromoSweepTask constructs the hourly promo sweep task.
func NewPromoSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPromoSweep, body, asynq.Queue(QueueDefault)), nil
}
