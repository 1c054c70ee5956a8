package proposal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-sales-proposals/internal/pricing"
)

// CatalogEntry is the product data a catalog lookup supplies when an item is
// instantiated from the catalog.
type CatalogEntry struct {
	SKU           string           `json:"sku"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Kind          pricing.ItemKind `json:"kind"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	MarginPercent decimal.Decimal  `json:"margin_percent"`
	Vendor        string           `json:"vendor"`
	SetupFee      decimal.Decimal  `json:"setup_fee"`
	TaxPercent    decimal.Decimal  `json:"tax_percent"`
}

// ItemFromCatalog builds an unsaved line item from a catalog entry. Unknown
// kinds fall back to product.
func ItemFromCatalog(e CatalogEntry, quantity decimal.Decimal) pricing.LineItem {
	kind := e.Kind
	if !kind.IsValid() {
		kind = pricing.KindProduct
	}
	return pricing.LineItem{
		Kind:          kind,
		Name:          e.Name,
		Description:   e.Description,
		SKU:           e.SKU,
		Vendor:        e.Vendor,
		Quantity:      quantity,
		UnitPrice:     e.UnitPrice,
		TaxPercent:    e.TaxPercent,
		SetupFee:      e.SetupFee,
		MarginPercent: e.MarginPercent,
	}
}

// AddCatalogItem appends an item prefilled from the catalog.
func (p *Proposal) AddCatalogItem(e CatalogEntry, quantity decimal.Decimal, now time.Time) (pricing.LineItem, error) {
	return p.AddItem(ItemFromCatalog(e, quantity), now)
}
