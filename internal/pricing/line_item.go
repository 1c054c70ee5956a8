// Package pricing computes line item and proposal totals.
//
// Everything here is a pure function of its input: no I/O, no shared state,
// safe to call on every keystroke and from any number of goroutines.
package pricing

import "github.com/shopspring/decimal"

// ItemKind classifies a line item.
type ItemKind string

const (
	KindProduct      ItemKind = "product"
	KindService      ItemKind = "service"
	KindSubscription ItemKind = "subscription"
	KindOneTime      ItemKind = "one_time"
)

// IsValid reports whether k is a known kind.
func (k ItemKind) IsValid() bool {
	switch k {
	case KindProduct, KindService, KindSubscription, KindOneTime:
		return true
	}
	return false
}

// IsRecurring reports whether the item contributes to recurring revenue.
func (k ItemKind) IsRecurring() bool {
	return k == KindSubscription
}

// DiscountMode selects how a discount value is interpreted.
type DiscountMode string

const (
	DiscountPercentage DiscountMode = "percentage"
	DiscountAmount     DiscountMode = "amount"
)

// IsValid reports whether m is a known mode.
func (m DiscountMode) IsValid() bool {
	return m == DiscountPercentage || m == DiscountAmount
}

// Discount is an item's own discount. Value is a percentage in [0, 100] when
// Mode is DiscountPercentage and a currency amount when Mode is DiscountAmount.
type Discount struct {
	Mode  DiscountMode    `json:"mode"`
	Value decimal.Decimal `json:"value"`
}

// NoDiscount returns a zero discount in the given mode.
func NoDiscount(mode DiscountMode) Discount {
	return Discount{Mode: mode, Value: decimal.Zero}
}

// PercentOff builds a percentage discount.
func PercentOff(pct decimal.Decimal) Discount {
	return Discount{Mode: DiscountPercentage, Value: pct}
}

// AmountOff builds a fixed amount discount.
func AmountOff(amount decimal.Decimal) Discount {
	return Discount{Mode: DiscountAmount, Value: amount}
}

// LineItem is one priced row of a proposal. Totals are never stored on the
// item; use Calculate.
type LineItem struct {
	ID            string          `json:"id"`
	Order         int             `json:"order"`
	Kind          ItemKind        `json:"kind"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	SKU           string          `json:"sku,omitempty"`
	Vendor        string          `json:"vendor,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Discount      Discount        `json:"discount"`
	TaxPercent    decimal.Decimal `json:"tax_percent"`
	SetupFee      decimal.Decimal `json:"setup_fee"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
}

// Normalize returns a copy with every numeric input coerced into its legal
// range and the setup fee zeroed for kinds that cannot carry one.
func (i LineItem) Normalize() LineItem {
	out := i
	out.Quantity = CoerceAmount(i.Quantity)
	out.UnitPrice = CoerceAmount(i.UnitPrice)
	out.TaxPercent = CoercePercent(i.TaxPercent)
	out.MarginPercent = CoercePercent(i.MarginPercent)

	switch i.Discount.Mode {
	case DiscountAmount:
		out.Discount.Value = CoerceAmount(i.Discount.Value)
	case DiscountPercentage:
		out.Discount.Value = CoercePercent(i.Discount.Value)
	default:
		out.Discount = NoDiscount(DiscountPercentage)
	}

	if i.Kind.IsRecurring() {
		out.SetupFee = CoerceAmount(i.SetupFee)
	} else {
		out.SetupFee = decimal.Zero
	}
	return out
}

// TotalPrice is shorthand for Calculate(i).TotalPrice.
func (i LineItem) TotalPrice() decimal.Decimal {
	return Calculate(i).TotalPrice
}
