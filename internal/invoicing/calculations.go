package invoicing

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// DefaultTaxSlab is the GST percent assumed when a line names none.
const DefaultTaxSlab = 18

// Totals is the priced form of an item set. Discounts stack in a fixed
// order: per-line item discounts first, then the promo percent on what
// remains, then loyalty coins capped at the amount still owed.
type Totals struct {
	Items              []Item
	Subtotal           decimal.Decimal
	ItemDiscount       decimal.Decimal
	PromoDiscount      decimal.Decimal
	LoyaltyDiscount    decimal.Decimal
	BaseValue          decimal.Decimal
	Total              decimal.Decimal
	LoyaltyCoinsUsed   int64
	LoyaltyCoinsEarned int64
}

// CalculateTotals prices the item set. Per line the tax-inclusive total
// is discounted by the line's own percent, the remainder is split into
// a tax-exclusive base and a tax amount halved into CGST and SGST.
// promoPct is the promo-code percent applied to the document after item
// discounts; loyaltyCoins is the coin count the customer wants to
// redeem, one rupee each, never below a zero total. Coins earned are
// floor(base value / 100). Everything is rounded to two places.
func CalculateTotals(items []Item, promoPct, loyaltyCoins int64) Totals {
	out := Totals{Items: make([]Item, len(items))}
	subtotal := decimal.Zero
	itemDiscount := decimal.Zero
	base := decimal.Zero
	for i, item := range items {
		if item.TaxSlab <= 0 {
			item.TaxSlab = DefaultTaxSlab
		}
		lineTotal := item.Price.Mul(decimal.NewFromInt(item.Quantity))
		discount := lineTotal.Mul(decimal.NewFromInt(item.DiscountPct)).Div(hundred)
		afterDiscount := lineTotal.Sub(discount)
		divisor := decimal.NewFromInt(1).Add(decimal.NewFromInt(item.TaxSlab).Div(hundred))
		baseValue := afterDiscount.Div(divisor)
		tax := afterDiscount.Sub(baseValue)
		half := tax.Div(two)

		item.LineTotal = lineTotal.Round(2)
		item.DiscountAmount = discount.Round(2)
		item.BaseValue = baseValue.Round(2)
		item.TaxAmount = tax.Round(2)
		item.CGST = half.Round(2)
		item.SGST = half.Round(2)
		out.Items[i] = item

		subtotal = subtotal.Add(lineTotal)
		itemDiscount = itemDiscount.Add(discount)
		base = base.Add(baseValue)
	}

	afterItems := subtotal.Sub(itemDiscount)
	promoDiscount := afterItems.Mul(decimal.NewFromInt(promoPct)).Div(hundred).Round(2)
	afterPromo := afterItems.Sub(promoDiscount)

	coinsUsed := loyaltyCoins
	if coinsUsed < 0 {
		coinsUsed = 0
	}
	if owed := afterPromo.IntPart(); coinsUsed > owed {
		coinsUsed = owed
	}
	loyaltyDiscount := decimal.NewFromInt(coinsUsed)

	out.Subtotal = subtotal.Round(2)
	out.ItemDiscount = itemDiscount.Round(2)
	out.PromoDiscount = promoDiscount
	out.LoyaltyDiscount = loyaltyDiscount
	out.BaseValue = base.Round(2)
	out.Total = afterPromo.Sub(loyaltyDiscount).Round(2)
	out.LoyaltyCoinsUsed = coinsUsed
	out.LoyaltyCoinsEarned = base.Div(hundred).IntPart()
	return out
}
