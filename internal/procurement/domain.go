package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder is a numbered commitment to buy components.
type PurchaseOrder struct {
	ID         int64
	Number     string
	VendorName string
	Lines      []OrderLine
	Status     Status
	Notes      string
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderLine is one item on a purchase order.
type OrderLine struct {
	ItemID   int64           `json:"itemId"`
	ItemName string          `json:"itemName"`
	Quantity int64           `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
}

// Status tracks purchase order progress.
type Status string

const (
	// StatusOpen means no goods have been received yet.
	StatusOpen Status = "open"
	// StatusReceiving means at least one GRN references the order.
	StatusReceiving Status = "receiving"
	// StatusClosed means the order is fully received.
	StatusClosed Status = "closed"
)

// GoodsReceipt books received components against a purchase order,
// numbered from the GRN series.
type GoodsReceipt struct {
	ID         int64
	Number     string
	PONumber   string
	Lines      []OrderLine
	ReceivedBy string
	CreatedAt  time.Time
}
