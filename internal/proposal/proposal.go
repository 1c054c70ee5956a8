// Package proposal holds the proposal aggregate: its ordered line items, the
// proposal-wide discount mode, and the draft/sent/accepted/declined lifecycle.
package proposal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-sales-proposals/internal/pricing"
)

// Status is the commercial state of a proposal.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusAccepted, StatusDeclined:
		return true
	}
	return false
}

var (
	ErrItemNotFound      = errors.New("line item not found")
	ErrNotEditable       = errors.New("proposal is not editable")
	ErrInvalidTransition = errors.New("invalid proposal status transition")
)

// Proposal is a priced offer to a client. Totals are never stored on it;
// call Totals for a fresh fold over Items.
type Proposal struct {
	ID            string               `json:"id"`
	EntityID      string               `json:"entity_id"`
	ClientID      string               `json:"client_id"`
	Title         string               `json:"title"`
	Currency      string               `json:"currency"`
	DiscountMode  pricing.DiscountMode `json:"discount_mode"`
	Status        Status               `json:"status"`
	Items         []pricing.LineItem   `json:"items"`
	Notes         string               `json:"notes,omitempty"`
	CreatedBy     string               `json:"created_by,omitempty"`
	DeclineReason string               `json:"decline_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	SentAt        *time.Time           `json:"sent_at,omitempty"`
	AcceptedAt    *time.Time           `json:"accepted_at,omitempty"`
	DeclinedAt    *time.Time           `json:"declined_at,omitempty"`
}

// Draft describes a new proposal.
type Draft struct {
	EntityID     string
	ClientID     string
	Title        string
	Currency     string
	DiscountMode pricing.DiscountMode
	Notes        string
	CreatedBy    string
}

// New validates d and returns an empty draft proposal.
func New(d Draft, now time.Time) (*Proposal, error) {
	if strings.TrimSpace(d.EntityID) == "" {
		return nil, fmt.Errorf("entity_id is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(d.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("currency must be a 3-letter ISO 4217 code, got %q", d.Currency)
	}
	mode := d.DiscountMode
	if mode == "" {
		mode = pricing.DiscountPercentage
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown discount mode %q", d.DiscountMode)
	}

	return &Proposal{
		ID:           uuid.NewString(),
		EntityID:     d.EntityID,
		ClientID:     d.ClientID,
		Title:        strings.TrimSpace(d.Title),
		Currency:     currency,
		DiscountMode: mode,
		Status:       StatusDraft,
		Items:        []pricing.LineItem{},
		Notes:        d.Notes,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Totals folds the current items into proposal totals.
func (p *Proposal) Totals() pricing.Totals {
	return pricing.Aggregate(p.Items)
}

// Item returns the line item with the given ID.
func (p *Proposal) Item(itemID string) (pricing.LineItem, bool) {
	if i := p.indexOf(itemID); i >= 0 {
		return p.Items[i], true
	}
	return pricing.LineItem{}, false
}

// AddItem appends item at the end of the list and returns it as stored:
// normalized, with an ID, the next order, and a discount in the proposal's mode.
func (p *Proposal) AddItem(item pricing.LineItem, now time.Time) (pricing.LineItem, error) {
	if err := p.ensureEditable(); err != nil {
		return pricing.LineItem{}, err
	}
	if item.Kind == "" {
		item.Kind = pricing.KindProduct
	}
	if !item.Kind.IsValid() {
		return pricing.LineItem{}, fmt.Errorf("unknown item kind %q", item.Kind)
	}

	item.ID = uuid.NewString()
	item.Order = len(p.Items) + 1
	item = p.settle(item)

	p.Items = append(p.Items, item)
	p.UpdatedAt = now
	return item, nil
}

// UpdateItem replaces the editable fields of an existing item. ID and order
// are kept.
func (p *Proposal) UpdateItem(itemID string, item pricing.LineItem, now time.Time) (pricing.LineItem, error) {
	if err := p.ensureEditable(); err != nil {
		return pricing.LineItem{}, err
	}
	idx := p.indexOf(itemID)
	if idx < 0 {
		return pricing.LineItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if item.Kind == "" {
		item.Kind = p.Items[idx].Kind
	}
	if !item.Kind.IsValid() {
		return pricing.LineItem{}, fmt.Errorf("unknown item kind %q", item.Kind)
	}

	item.ID = p.Items[idx].ID
	item.Order = p.Items[idx].Order
	item = p.settle(item)

	p.Items[idx] = item
	p.UpdatedAt = now
	return item, nil
}

// RemoveItem deletes an item and renumbers the rest 1..N, keeping their
// relative order.
func (p *Proposal) RemoveItem(itemID string, now time.Time) error {
	if err := p.ensureEditable(); err != nil {
		return err
	}
	idx := p.indexOf(itemID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}

	items := make([]pricing.LineItem, 0, len(p.Items)-1)
	items = append(items, p.Items[:idx]...)
	items = append(items, p.Items[idx+1:]...)
	for i := range items {
		items[i].Order = i + 1
	}
	p.Items = items
	p.UpdatedAt = now
	return nil
}

// SetDiscountMode switches the proposal-wide discount mode. Discount values
// recorded under the old mode are discarded: every item restarts at zero in
// the new mode. Setting the current mode is a no-op.
func (p *Proposal) SetDiscountMode(mode pricing.DiscountMode, now time.Time) error {
	if err := p.ensureEditable(); err != nil {
		return err
	}
	if !mode.IsValid() {
		return fmt.Errorf("unknown discount mode %q", mode)
	}
	if mode == p.DiscountMode {
		return nil
	}

	p.DiscountMode = mode
	for i := range p.Items {
		p.Items[i].Discount = pricing.NoDiscount(mode)
	}
	p.UpdatedAt = now
	return nil
}

// Clone returns a deep copy.
func (p *Proposal) Clone() *Proposal {
	c := *p
	c.Items = make([]pricing.LineItem, len(p.Items))
	copy(c.Items, p.Items)
	c.SentAt = cloneTime(p.SentAt)
	c.AcceptedAt = cloneTime(p.AcceptedAt)
	c.DeclinedAt = cloneTime(p.DeclinedAt)
	return &c
}

// settle normalizes an item and forces its discount into the proposal's mode.
// A discount without a mode is read in the proposal's mode; one in the other
// mode is dropped.
func (p *Proposal) settle(item pricing.LineItem) pricing.LineItem {
	if item.Discount.Mode == "" {
		item.Discount.Mode = p.DiscountMode
	}
	if item.Discount.Mode != p.DiscountMode {
		item.Discount = pricing.NoDiscount(p.DiscountMode)
	}
	item.Name = strings.TrimSpace(item.Name)
	return item.Normalize()
}

func (p *Proposal) ensureEditable() error {
	if p.Status != StatusDraft {
		return fmt.Errorf("%w: status is %s", ErrNotEditable, p.Status)
	}
	return nil
}

func (p *Proposal) indexOf(itemID string) int {
	for i, it := range p.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
