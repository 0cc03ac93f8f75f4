package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is a finalized sales document. Header fields and the item set
// can be edited afterwards through their dedicated flows; every edit
// leaves an audit trail.
type Invoice struct {
	ID                 int64
	Number             string
	CustomerName       string
	CustomerPhone      string
	Items              []Item
	Subtotal           decimal.Decimal
	ItemDiscount       decimal.Decimal
	PromoCode          string
	PromoPct           int64
	PromoDiscount      decimal.Decimal
	LoyaltyCoinsUsed   int64
	LoyaltyDiscount    decimal.Decimal
	LoyaltyCoinsEarned int64
	BaseValue          decimal.Decimal
	Total              decimal.Decimal
	Notes              string
	PaymentMethod      string
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Item is one invoice line naming the exact batch it consumed. Price is
// tax-inclusive; the calculator splits out the base value and the GST
// halves per line.
type Item struct {
	ProductID      int64           `json:"productId"`
	Name           string          `json:"name"`
	BatchNumber    string          `json:"batchNumber"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	DiscountPct    int64           `json:"discountPct"`
	TaxSlab        int64           `json:"taxSlab"`
	LineTotal      decimal.Decimal `json:"lineTotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	BaseValue      decimal.Decimal `json:"baseValue"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	CGST           decimal.Decimal `json:"cgst"`
	SGST           decimal.Decimal `json:"sgst"`
}

// ArchivedInvoice is the copy kept after deletion, together with the
// stock that was returned to the ledger.
type ArchivedInvoice struct {
	Invoice
	DeletedBy    string
	DeletedAt    time.Time
	StockDetails []StockRestoreDetail
}

// StockRestoreDetail records the before/after batch quantities written
// back during invoice deletion.
type StockRestoreDetail struct {
	ProductID   int64  `json:"productId"`
	BatchNumber string `json:"batchNumber"`
	Quantity    int64  `json:"quantity"`
	OldQuantity int64  `json:"oldQuantity"`
	NewQuantity int64  `json:"newQuantity"`
}

// HistoryEntry records one header field edit.
type HistoryEntry struct {
	ID            int64
	InvoiceNumber string
	Field         string
	OldValue      string
	NewValue      string
	UpdatedBy     string
	UpdatedAt     time.Time
}

// HeaderUpdate carries the editable header fields. Nil pointers leave
// the stored value untouched; line items have their own flow.
type HeaderUpdate struct {
	CustomerName  *string
	CustomerPhone *string
	Notes         *string
	PaymentMethod *string
}

// Item update outcomes written to the audit trail.
const (
	ItemUpdateSuccess    = "SUCCESS"
	ItemUpdateRolledBack = "FAILED_WITH_ROLLBACK"
)

// Ledger operations named in an InventoryAdjustment.
const (
	AdjustmentAdd    = "ADD"
	AdjustmentDeduct = "DEDUCT"
)

// ItemUpdateRecord is the audit trail for one item-set edit: the diff,
// every ledger movement, the totals change and the outcome. A failed
// attempt is recorded too, with the rollback details.
type ItemUpdateRecord struct {
	ID               int64
	InvoiceNumber    string
	ItemsAdded       []Item
	ItemsRemoved     []Item
	ItemsUpdated     []ItemQuantityChange
	InventoryUpdates []InventoryAdjustment
	OldTotal         decimal.Decimal
	NewTotal         decimal.Decimal
	Difference       decimal.Decimal
	Status           string
	ErrorDetails     string
	UpdatedBy        string
	UpdatedAt        time.Time
}

// ItemQuantityChange records a quantity edit on a line that survived
// the update.
type ItemQuantityChange struct {
	ProductID          int64  `json:"productId"`
	BatchNumber        string `json:"batchNumber"`
	OldQuantity        int64  `json:"oldQuantity"`
	NewQuantity        int64  `json:"newQuantity"`
	QuantityDifference int64  `json:"quantityDifference"`
}

// InventoryAdjustment records one ledger movement made for an item
// update, with the batch quantity before and after.
type InventoryAdjustment struct {
	ProductID      int64  `json:"productId"`
	BatchNumber    string `json:"batchNumber"`
	Operation      string `json:"operation"`
	Quantity       int64  `json:"quantity"`
	BeforeQuantity int64  `json:"beforeQuantity"`
	AfterQuantity  int64  `json:"afterQuantity"`
}
