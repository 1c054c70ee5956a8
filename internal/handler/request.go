package handler

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-sales-proposals/internal/client"
	"github.com/pesio-ai/be-sales-proposals/internal/pricing"
)

// Number is a numeric form field. Editors send either JSON numbers or the raw
// text of an input box; anything unparsable decodes as zero instead of
// failing the request.
type Number struct {
	decimal.Decimal
}

// UnmarshalJSON accepts 12, 12.5, "12.5", "", null and garbage. Values
// outside pricing.InRange decode as zero.
func (n *Number) UnmarshalJSON(data []byte) error {
	raw := string(bytes.TrimSpace(data))
	if raw == "null" {
		n.Decimal = decimal.Zero
		return nil
	}
	raw = strings.Trim(raw, `"`)
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		d = decimal.Zero
	}
	n.Decimal = pricing.Bounded(d)
	return nil
}

// lineItemInput is the editable part of a line item as posted by clients.
type lineItemInput struct {
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	SKU           string `json:"sku"`
	Vendor        string `json:"vendor"`
	Quantity      Number `json:"quantity"`
	UnitPrice     Number `json:"unit_price"`
	DiscountMode  string `json:"discount_mode"`
	Discount      Number `json:"discount"`
	TaxPercent    Number `json:"tax_percent"`
	SetupFee      Number `json:"setup_fee"`
	MarginPercent Number `json:"margin_percent"`
}

func (in lineItemInput) toLineItem() pricing.LineItem {
	return pricing.LineItem{
		Kind:          pricing.ItemKind(strings.ToLower(strings.TrimSpace(in.Kind))),
		Name:          in.Name,
		Description:   in.Description,
		SKU:           in.SKU,
		Vendor:        in.Vendor,
		Quantity:      in.Quantity.Decimal,
		UnitPrice:     in.UnitPrice.Decimal,
		Discount:      pricing.Discount{Mode: pricing.DiscountMode(strings.ToLower(in.DiscountMode)), Value: in.Discount.Decimal},
		TaxPercent:    in.TaxPercent.Decimal,
		SetupFee:      in.SetupFee.Decimal,
		MarginPercent: in.MarginPercent.Decimal,
	}
}

func toLineItems(in []lineItemInput) []pricing.LineItem {
	out := make([]pricing.LineItem, len(in))
	for i, it := range in {
		out[i] = it.toLineItem()
	}
	return out
}

type createProposalRequest struct {
	EntityID     string `json:"entity_id"`
	ClientID     string `json:"client_id"`
	Title        string `json:"title"`
	Currency     string `json:"currency"`
	DiscountMode string `json:"discount_mode"`
	Notes        string `json:"notes"`
	CreatedBy    string `json:"created_by"`
}

type addItemRequest struct {
	ProposalID string        `json:"proposal_id"`
	SKU        string        `json:"sku"`
	Item       lineItemInput `json:"item"`
}

type updateItemRequest struct {
	ProposalID string        `json:"proposal_id"`
	ItemID     string        `json:"item_id"`
	Item       lineItemInput `json:"item"`
}

type removeItemRequest struct {
	ProposalID string `json:"proposal_id"`
	ItemID     string `json:"item_id"`
}

type discountModeRequest struct {
	ProposalID string `json:"proposal_id"`
	Mode       string `json:"mode"`
}

type transitionRequest struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

type previewRequest struct {
	DiscountMode string          `json:"discount_mode"`
	Items        []lineItemInput `json:"items"`
}

type startWorkflowRequest struct {
	ProposalID  string               `json:"proposal_id"`
	RequestedBy string               `json:"requested_by"`
	Approvers   []client.ApproverRef `json:"approvers"`
}

type decideRequest struct {
	WorkflowID string `json:"workflow_id"`
	StepID     string `json:"step_id"`
	Decision   string `json:"decision"`
	ActorID    string `json:"actor_id"`
	Comment    string `json:"comment"`
}

type cancelWorkflowRequest struct {
	WorkflowID string `json:"workflow_id"`
	ActorID    string `json:"actor_id"`
	Reason     string `json:"reason"`
}
