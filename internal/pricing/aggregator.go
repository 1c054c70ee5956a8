package pricing

import "github.com/shopspring/decimal"

// Totals are the proposal-level figures folded from its items.
type Totals struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	TotalDiscount    decimal.Decimal `json:"total_discount"`
	TotalTax         decimal.Decimal `json:"total_tax"`
	TotalSetupFees   decimal.Decimal `json:"total_setup_fees"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	TotalMargin      decimal.Decimal `json:"total_margin"`
	RecurringRevenue decimal.Decimal `json:"recurring_revenue"`
	Lines            []LineBreakdown `json:"lines"`
}

// Aggregate folds items into proposal totals. Tax is summed per item, each on
// its own after-discount amount, never recomputed on the aggregate subtotal.
// An empty slice yields zero totals.
func Aggregate(items []LineItem) Totals {
	t := Totals{
		Subtotal:         decimal.Zero,
		TotalDiscount:    decimal.Zero,
		TotalTax:         decimal.Zero,
		TotalSetupFees:   decimal.Zero,
		TotalMargin:      decimal.Zero,
		RecurringRevenue: decimal.Zero,
		Lines:            make([]LineBreakdown, 0, len(items)),
	}

	for _, item := range items {
		line := Calculate(item)
		t.Subtotal = t.Subtotal.Add(line.Subtotal)
		t.TotalDiscount = t.TotalDiscount.Add(line.Discount)
		t.TotalTax = t.TotalTax.Add(line.Tax)
		t.TotalSetupFees = t.TotalSetupFees.Add(line.SetupFee)
		t.TotalMargin = t.TotalMargin.Add(line.Margin)
		if line.Recurring {
			t.RecurringRevenue = t.RecurringRevenue.Add(line.TotalPrice)
		}
		t.Lines = append(t.Lines, line)
	}

	t.GrandTotal = t.Subtotal.Sub(t.TotalDiscount).Add(t.TotalTax).Add(t.TotalSetupFees)
	return t
}

// SumLineTotals adds up the per-line totals. It always equals GrandTotal.
func (t Totals) SumLineTotals() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range t.Lines {
		sum = sum.Add(l.TotalPrice)
	}
	return sum
}
