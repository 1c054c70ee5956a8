package pricing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func sampleItems() []LineItem {
	return []LineItem{
		{
			Order: 1, Kind: KindProduct, Name: "Firewall appliance",
			Quantity: dec("2"), UnitPrice: dec("1200"),
			Discount: PercentOff(dec("10")), TaxPercent: dec("20"), MarginPercent: dec("25"),
		},
		{
			Order: 2, Kind: KindSubscription, Name: "Managed endpoint (per seat)",
			Quantity: dec("45"), UnitPrice: dec("12.99"),
			Discount: PercentOff(dec("5")), TaxPercent: dec("20"), SetupFee: dec("250"), MarginPercent: dec("40"),
		},
		{
			Order: 3, Kind: KindService, Name: "Onboarding",
			Quantity: dec("6"), UnitPrice: dec("95"),
			Discount: PercentOff(dec("0")), TaxPercent: dec("0"), MarginPercent: dec("60"),
		},
		{
			Order: 4, Kind: KindOneTime, Name: "Site survey",
			Quantity: dec("1"), UnitPrice: dec("300"),
			Discount: PercentOff(dec("100")), TaxPercent: dec("20"),
		},
	}
}

func TestAggregate_Empty(t *testing.T) {
	for _, items := range [][]LineItem{nil, {}} {
		got := Aggregate(items)
		for name, v := range map[string]decimal.Decimal{
			"Subtotal":         got.Subtotal,
			"TotalDiscount":    got.TotalDiscount,
			"TotalTax":         got.TotalTax,
			"TotalSetupFees":   got.TotalSetupFees,
			"GrandTotal":       got.GrandTotal,
			"TotalMargin":      got.TotalMargin,
			"RecurringRevenue": got.RecurringRevenue,
		} {
			if !v.IsZero() {
				t.Errorf("%s = %s, want 0", name, v)
			}
		}
		if len(got.Lines) != 0 {
			t.Errorf("Lines = %d, want 0", len(got.Lines))
		}
	}
}

func TestAggregate_Totals(t *testing.T) {
	got := Aggregate(sampleItems())

	// line 1: 2400 - 240 = 2160, tax 432, total 2592, margin 648
	// line 2: 584.55 - 29.23 = 555.32, tax 111.06, setup 250, total 916.38, margin 366.55
	// line 3: 570, total 570, margin 342
	// line 4: 300 - 300 = 0, total 0
	want := map[string]struct {
		got  decimal.Decimal
		want string
	}{
		"Subtotal":         {got.Subtotal, "3854.55"},
		"TotalDiscount":    {got.TotalDiscount, "569.23"},
		"TotalTax":         {got.TotalTax, "543.06"},
		"TotalSetupFees":   {got.TotalSetupFees, "250"},
		"GrandTotal":       {got.GrandTotal, "4078.38"},
		"TotalMargin":      {got.TotalMargin, "1356.55"},
		"RecurringRevenue": {got.RecurringRevenue, "916.38"},
	}
	for name, tc := range want {
		if !tc.got.Equal(dec(tc.want)) {
			t.Errorf("%s = %s, want %s", name, tc.got, tc.want)
		}
	}
}

func TestAggregate_GrandTotalEqualsSumOfLineTotals(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	kinds := []ItemKind{KindProduct, KindService, KindSubscription, KindOneTime}

	for run := 0; run < 200; run++ {
		n := 1 + r.Intn(12)
		items := make([]LineItem, n)
		for i := range items {
			d := PercentOff(decimal.NewFromFloat(float64(r.Intn(10000)) / 100))
			if r.Intn(2) == 0 {
				d = AmountOff(decimal.New(int64(r.Intn(500000)), -2))
			}
			items[i] = LineItem{
				Order:         i + 1,
				Kind:          kinds[r.Intn(len(kinds))],
				Quantity:      decimal.New(int64(r.Intn(10000)), -2),
				UnitPrice:     decimal.New(int64(r.Intn(1000000)), -3),
				Discount:      d,
				TaxPercent:    decimal.New(int64(r.Intn(3000)), -2),
				SetupFee:      decimal.New(int64(r.Intn(50000)), -2),
				MarginPercent: decimal.New(int64(r.Intn(100)), 0),
			}
		}

		totals := Aggregate(items)
		if !totals.GrandTotal.Equal(totals.SumLineTotals()) {
			t.Fatalf("run %d: GrandTotal %s != sum of lines %s", run, totals.GrandTotal, totals.SumLineTotals())
		}
		if totals.GrandTotal.IsNegative() {
			t.Fatalf("run %d: negative GrandTotal %s", run, totals.GrandTotal)
		}
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	items := sampleItems()
	a := Aggregate(items)
	b := Aggregate(items)

	if !a.GrandTotal.Equal(b.GrandTotal) || !a.TotalTax.Equal(b.TotalTax) || !a.TotalMargin.Equal(b.TotalMargin) {
		t.Fatalf("aggregate not idempotent: %+v vs %+v", a, b)
	}
	for i := range a.Lines {
		if !a.Lines[i].TotalPrice.Equal(b.Lines[i].TotalPrice) {
			t.Errorf("line %d differs: %s vs %s", i, a.Lines[i].TotalPrice, b.Lines[i].TotalPrice)
		}
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	items := sampleItems()
	reversed := make([]LineItem, len(items))
	for i, it := range items {
		reversed[len(items)-1-i] = it
	}

	if a, b := Aggregate(items), Aggregate(reversed); !a.GrandTotal.Equal(b.GrandTotal) {
		t.Errorf("GrandTotal depends on order: %s vs %s", a.GrandTotal, b.GrandTotal)
	}
}

func TestAggregate_TaxPerItemNotOnAggregate(t *testing.T) {
	items := []LineItem{
		{Kind: KindProduct, Quantity: dec("1"), UnitPrice: dec("0.05"), Discount: PercentOff(dec("0")), TaxPercent: dec("10")},
		{Kind: KindProduct, Quantity: dec("1"), UnitPrice: dec("0.05"), Discount: PercentOff(dec("0")), TaxPercent: dec("10")},
	}
	// Each line's 0.005 tax rounds to 0.01; taxing the 0.10 aggregate would give 0.01.
	if got := Aggregate(items).TotalTax; !got.Equal(dec("0.02")) {
		t.Errorf("TotalTax = %s, want 0.02", got)
	}
}
