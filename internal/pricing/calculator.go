package pricing

import "github.com/shopspring/decimal"

// LineBreakdown is the full derivation of one item's total.
type LineBreakdown struct {
	Order         int             `json:"order"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	AfterDiscount decimal.Decimal `json:"after_discount"`
	Tax           decimal.Decimal `json:"tax"`
	SetupFee      decimal.Decimal `json:"setup_fee"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Margin        decimal.Decimal `json:"margin"`
	Recurring     bool            `json:"recurring"`
}

// Calculate derives an item's total:
//
//	subtotal      = quantity × unitPrice
//	discount      = subtotal × pct / 100  or  fixed amount, clamped to [0, subtotal]
//	afterDiscount = subtotal − discount
//	tax           = afterDiscount × taxPercent / 100
//	totalPrice    = afterDiscount + tax + setupFee
//
// Each component is rounded to the minor unit before it is combined, so the
// breakdown always adds up exactly. Margin is reported alongside and never
// feeds into totalPrice.
func Calculate(item LineItem) LineBreakdown {
	n := item.Normalize()

	subtotal := RoundMinor(n.Quantity.Mul(n.UnitPrice))

	var discount decimal.Decimal
	switch n.Discount.Mode {
	case DiscountAmount:
		discount = RoundMinor(n.Discount.Value)
	default:
		discount = RoundMinor(percentOf(subtotal, n.Discount.Value))
	}
	discount = decimal.Min(discount, subtotal)

	afterDiscount := subtotal.Sub(discount)
	tax := RoundMinor(percentOf(afterDiscount, n.TaxPercent))
	setupFee := RoundMinor(n.SetupFee)
	total := afterDiscount.Add(tax).Add(setupFee)

	return LineBreakdown{
		Order:         n.Order,
		Subtotal:      subtotal,
		Discount:      discount,
		AfterDiscount: afterDiscount,
		Tax:           tax,
		SetupFee:      setupFee,
		TotalPrice:    total,
		Margin:        RoundMinor(percentOf(total, n.MarginPercent)),
		Recurring:     n.Kind.IsRecurring(),
	}
}
