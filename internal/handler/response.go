package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-sales-proposals/internal/pricing"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
)

// money renders an amount with exactly two decimals, e.g. "1200.00".
func money(d decimal.Decimal) string {
	return d.StringFixed(pricing.MinorUnitPlaces)
}

type lineItemResponse struct {
	ID            string `json:"id"`
	Order         int    `json:"order"`
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	SKU           string `json:"sku,omitempty"`
	Vendor        string `json:"vendor,omitempty"`
	Quantity      string `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	DiscountMode  string `json:"discount_mode"`
	Discount      string `json:"discount"`
	TaxPercent    string `json:"tax_percent"`
	SetupFee      string `json:"setup_fee"`
	MarginPercent string `json:"margin_percent"`
	TotalPrice    string `json:"total_price"`
}

type lineBreakdownResponse struct {
	Order         int    `json:"order"`
	Subtotal      string `json:"subtotal"`
	Discount      string `json:"discount"`
	AfterDiscount string `json:"after_discount"`
	Tax           string `json:"tax"`
	SetupFee      string `json:"setup_fee"`
	TotalPrice    string `json:"total_price"`
	Margin        string `json:"margin"`
	Recurring     bool   `json:"recurring"`
}

type totalsResponse struct {
	Subtotal         string                  `json:"subtotal"`
	TotalDiscount    string                  `json:"total_discount"`
	TotalTax         string                  `json:"total_tax"`
	TotalSetupFees   string                  `json:"total_setup_fees"`
	GrandTotal       string                  `json:"grand_total"`
	TotalMargin      string                  `json:"total_margin"`
	RecurringRevenue string                  `json:"recurring_revenue"`
	Lines            []lineBreakdownResponse `json:"lines"`
}

type proposalResponse struct {
	ID            string             `json:"id"`
	EntityID      string             `json:"entity_id"`
	ClientID      string             `json:"client_id"`
	Title         string             `json:"title"`
	Currency      string             `json:"currency"`
	DiscountMode  string             `json:"discount_mode"`
	Status        string             `json:"status"`
	Notes         string             `json:"notes,omitempty"`
	CreatedBy     string             `json:"created_by,omitempty"`
	DeclineReason string             `json:"decline_reason,omitempty"`
	Items         []lineItemResponse `json:"items"`
	Totals        totalsResponse     `json:"totals"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
	AcceptedAt    *time.Time         `json:"accepted_at,omitempty"`
	DeclinedAt    *time.Time         `json:"declined_at,omitempty"`
}

func newTotalsResponse(t pricing.Totals) totalsResponse {
	lines := make([]lineBreakdownResponse, len(t.Lines))
	for i, l := range t.Lines {
		lines[i] = lineBreakdownResponse{
			Order:         l.Order,
			Subtotal:      money(l.Subtotal),
			Discount:      money(l.Discount),
			AfterDiscount: money(l.AfterDiscount),
			Tax:           money(l.Tax),
			SetupFee:      money(l.SetupFee),
			TotalPrice:    money(l.TotalPrice),
			Margin:        money(l.Margin),
			Recurring:     l.Recurring,
		}
	}
	return totalsResponse{
		Subtotal:         money(t.Subtotal),
		TotalDiscount:    money(t.TotalDiscount),
		TotalTax:         money(t.TotalTax),
		TotalSetupFees:   money(t.TotalSetupFees),
		GrandTotal:       money(t.GrandTotal),
		TotalMargin:      money(t.TotalMargin),
		RecurringRevenue: money(t.RecurringRevenue),
		Lines:            lines,
	}
}

func newProposalResponse(p *proposal.Proposal) proposalResponse {
	totals := p.Totals()
	items := make([]lineItemResponse, len(p.Items))
	for i, it := range p.Items {
		items[i] = lineItemResponse{
			ID:            it.ID,
			Order:         it.Order,
			Kind:          string(it.Kind),
			Name:          it.Name,
			Description:   it.Description,
			SKU:           it.SKU,
			Vendor:        it.Vendor,
			Quantity:      it.Quantity.String(),
			UnitPrice:     money(it.UnitPrice),
			DiscountMode:  string(it.Discount.Mode),
			Discount:      it.Discount.Value.String(),
			TaxPercent:    it.TaxPercent.String(),
			SetupFee:      money(it.SetupFee),
			MarginPercent: it.MarginPercent.String(),
			TotalPrice:    money(totals.Lines[i].TotalPrice),
		}
	}

	return proposalResponse{
		ID:            p.ID,
		EntityID:      p.EntityID,
		ClientID:      p.ClientID,
		Title:         p.Title,
		Currency:      p.Currency,
		DiscountMode:  string(p.DiscountMode),
		Status:        string(p.Status),
		Notes:         p.Notes,
		CreatedBy:     p.CreatedBy,
		DeclineReason: p.DeclineReason,
		Items:         items,
		Totals:        newTotalsResponse(totals),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		SentAt:        p.SentAt,
		AcceptedAt:    p.AcceptedAt,
		DeclinedAt:    p.DeclinedAt,
	}
}
