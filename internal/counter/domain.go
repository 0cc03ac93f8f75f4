package counter

import (
	"fmt"
	"strings"
	"time"
)

// Counter tracks a monotonically increasing document sequence.
type Counter struct {
	ID        string
	Count     int64
	UpdatedAt time.Time
}

// Well-known counter identifiers, one per numbered document series.
const (
	SeriesInvoice       = "invoice"
	SeriesWorkOrder     = "workorder"
	SeriesGRN           = "grn"
	SeriesPurchaseOrder = "purchase_order"
	SeriesDefective     = "defective"
	SeriesRestore       = "restore"
)

// Document number prefixes per series.
var seriesPrefix = map[string]string{
	SeriesInvoice:       "INV",
	SeriesWorkOrder:     "WO",
	SeriesGRN:           "GRN",
	SeriesPurchaseOrder: "PO",
	SeriesDefective:     "DF",
	SeriesRestore:       "RD",
}

// Prefix returns the document prefix for a series, or the series name
// uppercased when the series is not a well-known one.
func Prefix(series string) string {
	if p, ok := seriesPrefix[series]; ok {
		return p
	}
	return strings.ToUpper(series)
}

// FormatDocumentNumber renders a document number as PREFIX + year +
// zero-padded sequence. The pad width is four; sequences past 9999
// simply grow wider.
func FormatDocumentNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s%d%04d", prefix, year, seq)
}
