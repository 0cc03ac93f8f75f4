package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a batch-tracked ledger entry. Stock for a product is the
// sum of its batch quantities.
type Product struct {
	ID           int64
	Name         string
	SKU          string
	Batches      []Batch
	PriceHistory []PricePoint
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TotalQuantity sums quantities across batches.
func (p Product) TotalQuantity() int64 {
	var total int64
	for _, b := range p.Batches {
		total += b.Quantity
	}
	return total
}

// Batch is a uniquely numbered lot of a product.
type Batch struct {
	ID              int64
	ProductID       int64
	BatchNumber     string
	Quantity        int64
	ManufactureDate time.Time
	ExpiryDate      time.Time
	Rate            decimal.Decimal
	AddedAt         time.Time
}

// Expired reports whether the batch is past its expiry at the given time.
func (b Batch) Expired(at time.Time) bool {
	return b.ExpiryDate.Before(at)
}

// PricePoint records a purchase rate at receipt time.
type PricePoint struct {
	ID         int64
	ProductID  int64
	Rate       decimal.Decimal
	RecordedAt time.Time
}

// IncomingBatch describes a lot being received into the ledger.
type IncomingBatch struct {
	BatchNumber     string
	Quantity        int64
	ManufactureDate time.Time
	Rate            decimal.Decimal
}

// ConsumeLine identifies stock to draw down: the caller names the exact
// batch, there is no automatic lot picking.
type ConsumeLine struct {
	ProductID   int64
	ProductName string
	BatchNumber string
	Quantity    int64
}

// BatchSelection names a batch and the quantity to pull from it.
type BatchSelection struct {
	BatchNumber string
	Quantity    int64
}

// WithdrawnBatch snapshots a batch as it was withdrawn, including the
// dates a disposal record wants to keep after the batch is gone.
type WithdrawnBatch struct {
	BatchNumber     string
	Quantity        int64
	ManufactureDate time.Time
	ExpiryDate      time.Time
}

// AppliedConsumption records one executed draw-down so a failed
// workflow can put the stock back.
type AppliedConsumption struct {
	ProductID   int64
	BatchNumber string
	Quantity    int64
	OldQuantity int64
	NewQuantity int64
}

// sameMonth reports whether two dates fall in the same calendar month.
func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
