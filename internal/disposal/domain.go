package disposal

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies why stock left the ledger.
type Type string

const (
	// TypeDefective marks stock pulled for defects, including dormant
	// zero-quantity batches swept by cleanup.
	TypeDefective Type = "defective"
	// TypeExpired marks stock disposed after its expiry window.
	TypeExpired Type = "expired"
)

// SystemActor is recorded as the disposer for automated sweeps.
const SystemActor = "system-auto-cleanup"

// Record is one disposal event. Cleanup writes at most one record per
// product and type per sweep; manual disposals carry a per-batch
// snapshot in Batches.
type Record struct {
	ID           uuid.UUID
	ProductID    int64
	ProductName  string
	Type         Type
	Quantity     int64
	BatchNumbers []string
	Batches      []BatchDisposal
	Reason       string
	DisposedBy   string
	DisposedAt   time.Time
}

// BatchDisposal snapshots one batch at the moment it was pulled.
type BatchDisposal struct {
	BatchNumber     string    `json:"batchNumber"`
	Quantity        int64     `json:"quantity"`
	ManufactureDate time.Time `json:"manufactureDate"`
	ExpiryDate      time.Time `json:"expiryDate"`
}

// DefectiveRecord tracks item stock flagged defective, numbered from
// the DF series.
type DefectiveRecord struct {
	ID             int64
	DocumentNumber string
	ItemID         int64
	Quantity       int64
	RestoredQty    int64
	Reason         string
	ReportedBy     string
	CreatedAt      time.Time
}

// Outstanding is the quantity still held in the defect gauge.
func (d DefectiveRecord) Outstanding() int64 {
	return d.Quantity - d.RestoredQty
}

// RestoreRecord tracks defective stock returned to use, numbered from
// the RD series.
type RestoreRecord struct {
	ID             int64
	DocumentNumber string
	DefectiveID    int64
	ItemID         int64
	Quantity       int64
	RestoredBy     string
	CreatedAt      time.Time
}

// ListFilter narrows disposal queries.
type ListFilter struct {
	Type      Type
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}

// Summary aggregates disposal volume per type.
type Summary struct {
	TotalRecords      int64
	DefectiveRecords  int64
	ExpiredRecords    int64
	DefectiveQuantity int64
	ExpiredQuantity   int64
}

// CleanupStats reports one sweep run.
type CleanupStats struct {
	ProductsScanned int
	DormantBatches  int
	ExpiredBatches  int
	ExpiredQuantity int64
	Failures        []CleanupFailure
	RanAt           time.Time
}

// CleanupFailure records a per-product error without stopping the sweep.
type CleanupFailure struct {
	ProductID int64
	Reason    string
}
