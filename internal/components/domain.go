package components

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock tracks item-level gauges for raw components. Unlike the batch
// ledger, component stock is a set of counters per item: on-hand,
// reserved for work orders, and flagged defective.
type Stock struct {
	ItemID       int64
	CurrentStock int64
	InUse        int64
	Defect       int64
	// Receipt-side average cost inputs. TotalRateSum accumulates the
	// per-receipt rate and RateCount the number of receipts; TotalQty
	// accumulates received units.
	TotalRateSum decimal.Decimal
	RateCount    int64
	TotalQty     int64
	AveragePrice decimal.Decimal
	UpdatedAt    time.Time
}

// Available is the stock a work order may still reserve.
func (s Stock) Available() int64 {
	avail := s.CurrentStock - s.InUse
	if avail < 0 {
		return 0
	}
	return avail
}

func floorZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func floorZeroDecimal(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
