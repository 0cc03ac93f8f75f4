package sales

import "time"

// PromoCode is a percent discount valid until its end date. Codes are
// stored uppercased and the end date always lands on the last
// millisecond of its day.
type PromoCode struct {
	ID        int64
	Code      string
	Discount  int64
	EndDate   time.Time
	IsActive  bool
	IsExpired bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the code's end date has passed.
func (p PromoCode) Expired(at time.Time) bool {
	return p.EndDate.Before(at)
}

// normalizeEndDate pins a date to 23:59:59.999 local so a code stays
// usable through its whole final day.
func normalizeEndDate(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 999*int(time.Millisecond), d.Location())
}

// Loyalty earn channels. Sales channel earns are capped, invoice
// channel earns are not.
const (
	ChannelSales   = "sales"
	ChannelInvoice = "invoice"
)

// Customer carries the loyalty balance keyed by phone number.
type Customer struct {
	ID        int64
	Name      string
	Phone     string
	Coins     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
