package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/client"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/logger"
	"github.com/pesio-ai/be-sales-proposals/internal/pricing"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
	"github.com/pesio-ai/be-sales-proposals/internal/repository"
)

// ProposalService handles proposal editing and the commercial lifecycle.
type ProposalService struct {
	proposals repository.ProposalStore
	workflows repository.WorkflowStore
	audit     repository.AuditStore
	catalog   client.CatalogClientInterface
	publisher client.EventPublisherInterface
	locks     *ProposalLocks
	now       func() time.Time
	log       *logger.Logger
}

// NewProposalService creates a new proposal service
func NewProposalService(
	proposals repository.ProposalStore,
	workflows repository.WorkflowStore,
	audit repository.AuditStore,
	catalog client.CatalogClientInterface,
	publisher client.EventPublisherInterface,
	locks *ProposalLocks,
	log *logger.Logger,
) *ProposalService {
	return &ProposalService{
		proposals: proposals,
		workflows: workflows,
		audit:     audit,
		catalog:   catalog,
		publisher: publisher,
		locks:     locks,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// CreateProposalRequest represents a create proposal request
type CreateProposalRequest struct {
	EntityID     string
	ClientID     string
	Title        string
	Currency     string
	DiscountMode string
	Notes        string
	CreatedBy    string
}

// Gates is the pair of lifecycle checks shown next to a proposal.
type Gates struct {
	Send   proposal.Gate `json:"can_send"`
	Accept proposal.Gate `json:"can_mark_accepted"`
}

// CreateProposal creates an empty draft proposal
func (s *ProposalService) CreateProposal(ctx context.Context, req *CreateProposalRequest) (*proposal.Proposal, error) {
	if strings.TrimSpace(req.EntityID) == "" {
		return nil, errors.InvalidInput("entity_id", "entity_id is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}
	mode := pricing.DiscountMode(strings.ToLower(req.DiscountMode))
	if mode != "" && !mode.IsValid() {
		return nil, errors.InvalidInput("discount_mode", "must be percentage or amount")
	}

	p, err := proposal.New(proposal.Draft{
		EntityID:     req.EntityID,
		ClientID:     req.ClientID,
		Title:        req.Title,
		Currency:     req.Currency,
		DiscountMode: mode,
		Notes:        req.Notes,
		CreatedBy:    req.CreatedBy,
	}, s.now())
	if err != nil {
		return nil, errors.InvalidInput("proposal", err.Error())
	}

	if err := s.proposals.Create(ctx, p); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		ProposalID:  p.ID,
		EntityID:    p.EntityID,
		Action:      repository.ActionProposalCreated,
		PerformedBy: req.CreatedBy,
		PerformedAt: p.CreatedAt,
		StatusAfter: statusPtr(string(p.Status)),
	})

	s.log.Info().
		Str("proposal_id", p.ID).
		Str("entity_id", p.EntityID).
		Str("currency", p.Currency).
		Msg("Proposal created")

	return p, nil
}

// GetProposal retrieves a proposal by ID
func (s *ProposalService) GetProposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	return s.proposals.GetByID(ctx, id)
}

// ListProposals lists proposals matching filter
func (s *ProposalService) ListProposals(ctx context.Context, filter repository.ProposalFilter) ([]*proposal.Proposal, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, errors.InvalidInput("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	return s.proposals.List(ctx, filter)
}

// AddItem appends a line item to a draft proposal
func (s *ProposalService) AddItem(ctx context.Context, proposalID string, item pricing.LineItem) (*proposal.Proposal, error) {
	return s.edit(ctx, proposalID, func(p *proposal.Proposal, now time.Time) error {
		added, err := p.AddItem(item, now)
		if err != nil {
			return err
		}
		s.log.Debug().
			Str("proposal_id", p.ID).
			Str("item_id", added.ID).
			Int("order", added.Order).
			Msg("Line item added")
		return nil
	})
}

// AddCatalogItem appends an item prefilled from the product catalog
func (s *ProposalService) AddCatalogItem(ctx context.Context, proposalID, sku string, quantity decimal.Decimal) (*proposal.Proposal, error) {
	if strings.TrimSpace(sku) == "" {
		return nil, errors.InvalidInput("sku", "sku is required")
	}
	if s.catalog == nil {
		return nil, errors.New(errors.ErrCodeInternal, "catalog service is not configured")
	}

	// Entity scoping for the lookup comes from the stored proposal.
	current, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	entry, err := s.catalog.GetProduct(ctx, current.EntityID, sku)
	if err != nil {
		return nil, err
	}

	return s.edit(ctx, proposalID, func(p *proposal.Proposal, now time.Time) error {
		_, err := p.AddCatalogItem(*entry, pricing.CoerceAmount(quantity), now)
		return err
	})
}

// UpdateItem replaces an item's inputs
func (s *ProposalService) UpdateItem(ctx context.Context, proposalID, itemID string, item pricing.LineItem) (*proposal.Proposal, error) {
	return s.edit(ctx, proposalID, func(p *proposal.Proposal, now time.Time) error {
		_, err := p.UpdateItem(itemID, item, now)
		return err
	})
}

// RemoveItem deletes an item and renumbers the rest
func (s *ProposalService) RemoveItem(ctx context.Context, proposalID, itemID string) (*proposal.Proposal, error) {
	return s.edit(ctx, proposalID, func(p *proposal.Proposal, now time.Time) error {
		return p.RemoveItem(itemID, now)
	})
}

// SetDiscountMode switches the proposal-wide discount mode
func (s *ProposalService) SetDiscountMode(ctx context.Context, proposalID, mode string) (*proposal.Proposal, error) {
	m := pricing.DiscountMode(strings.ToLower(mode))
	if !m.IsValid() {
		return nil, errors.InvalidInput("discount_mode", "must be percentage or amount")
	}
	return s.edit(ctx, proposalID, func(p *proposal.Proposal, now time.Time) error {
		if p.DiscountMode != m {
			s.log.Info().
				Str("proposal_id", p.ID).
				Str("from", string(p.DiscountMode)).
				Str("to", string(m)).
				Int("items_reset", len(p.Items)).
				Msg("Discount mode switched")
		}
		return p.SetDiscountMode(m, now)
	})
}

// GetTotals recomputes a stored proposal's totals
func (s *ProposalService) GetTotals(ctx context.Context, proposalID string) (pricing.Totals, error) {
	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return pricing.Totals{}, err
	}
	return p.Totals(), nil
}

// PreviewTotals prices unsaved items under the given discount mode. It never
// fails: unknown modes fall back to percentage and bad numbers to zero.
func (s *ProposalService) PreviewTotals(mode string, items []pricing.LineItem) pricing.Totals {
	m := pricing.DiscountMode(strings.ToLower(mode))
	if !m.IsValid() {
		m = pricing.DiscountPercentage
	}
	priced := make([]pricing.LineItem, len(items))
	for i, it := range items {
		switch it.Discount.Mode {
		case m:
		case "":
			it.Discount.Mode = m
		default:
			it.Discount = pricing.NoDiscount(m)
		}
		if it.Order == 0 {
			it.Order = i + 1
		}
		priced[i] = it
	}
	return pricing.Aggregate(priced)
}

// GetGates evaluates both lifecycle gates for a stored proposal
func (s *ProposalService) GetGates(ctx context.Context, proposalID string) (*Gates, error) {
	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	wf, err := s.workflows.GetLatestByProposalID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return &Gates{Send: proposal.CanSend(p), Accept: proposal.CanMarkAccepted(p, wf)}, nil
}

// SendProposal moves a draft to sent
func (s *ProposalService) SendProposal(ctx context.Context, proposalID, actorID string) (*proposal.Proposal, error) {
	p, err := s.transition(ctx, proposalID, actorID, repository.ActionProposalSent, func(p *proposal.Proposal, now time.Time) error {
		return p.Send(now)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, client.EventProposalSent, p.ID, p.EntityID, actorID,
		recipients(p.CreatedBy), map[string]any{
			"title":       p.Title,
			"grand_total": p.Totals().GrandTotal.StringFixed(pricing.MinorUnitPlaces),
			"currency":    p.Currency,
		})
	return p, nil
}

// MarkAccepted records client acceptance of a sent proposal
func (s *ProposalService) MarkAccepted(ctx context.Context, proposalID, actorID string) (*proposal.Proposal, error) {
	p, err := s.transition(ctx, proposalID, actorID, repository.ActionProposalAccepted, func(p *proposal.Proposal, now time.Time) error {
		wf, err := s.workflows.GetLatestByProposalID(ctx, p.ID)
		if err != nil {
			return err
		}
		return p.MarkAccepted(wf, now)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, client.EventProposalAccepted, p.ID, p.EntityID, actorID,
		recipients(p.CreatedBy), map[string]any{
			"title":       p.Title,
			"grand_total": p.Totals().GrandTotal.StringFixed(pricing.MinorUnitPlaces),
		})
	return p, nil
}

// DeclineProposal records that the client turned the proposal down
func (s *ProposalService) DeclineProposal(ctx context.Context, proposalID, actorID, reason string) (*proposal.Proposal, error) {
	p, err := s.transition(ctx, proposalID, actorID, repository.ActionProposalDeclined, func(p *proposal.Proposal, now time.Time) error {
		return p.Decline(reason, now)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, client.EventProposalDeclined, p.ID, p.EntityID, actorID,
		recipients(p.CreatedBy), map[string]any{"reason": reason})
	return p, nil
}

// DeleteProposal deletes a draft proposal
func (s *ProposalService) DeleteProposal(ctx context.Context, proposalID, actorID string) error {
	unlock := s.locks.Lock(proposalID)
	defer unlock()

	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return err
	}
	if p.Status != proposal.StatusDraft {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot delete proposal with status '%s'", p.Status))
	}

	if err := s.proposals.Delete(ctx, proposalID); err != nil {
		return err
	}

	s.log.Info().
		Str("proposal_id", proposalID).
		Str("deleted_by", actorID).
		Msg("Proposal deleted")

	return nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// mutate loads, edits and saves a proposal under its lock, so no reader sees
// totals that lag behind an edit.
func (s *ProposalService) mutate(ctx context.Context, proposalID string, fn func(p *proposal.Proposal, now time.Time) error) (*proposal.Proposal, error) {
	unlock := s.locks.Lock(proposalID)
	defer unlock()

	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if err := fn(p, s.now()); err != nil {
		return nil, domainError(err)
	}
	if err := s.proposals.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// edit is mutate for pricing changes. Items and discount mode are frozen
// while the latest workflow is pending or approved, so an approval always
// refers to the totals it was granted on.
func (s *ProposalService) edit(ctx context.Context, proposalID string, fn func(p *proposal.Proposal, now time.Time) error) (*proposal.Proposal, error) {
	return s.mutate(ctx, proposalID, func(p *proposal.Proposal, now time.Time) error {
		if p.Status == proposal.StatusDraft {
			if err := s.assertPricingOpen(ctx, p.ID); err != nil {
				return err
			}
		}
		return fn(p, now)
	})
}

func (s *ProposalService) assertPricingOpen(ctx context.Context, proposalID string) error {
	wf, err := s.workflows.GetLatestByProposalID(ctx, proposalID)
	if err != nil {
		return err
	}
	if wf == nil {
		return nil
	}
	switch wf.Status {
	case approval.StatusPending:
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("pricing is under review in approval workflow %s; cancel it before editing", wf.ID))
	case approval.StatusApproved:
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("pricing was approved by workflow %s and can no longer change", wf.ID))
	}
	return nil
}

// transition runs a status change through mutate and records it in the audit log.
func (s *ProposalService) transition(
	ctx context.Context,
	proposalID, actorID, action string,
	fn func(p *proposal.Proposal, now time.Time) error,
) (*proposal.Proposal, error) {
	var before proposal.Status
	p, err := s.mutate(ctx, proposalID, func(p *proposal.Proposal, now time.Time) error {
		before = p.Status
		return fn(p, now)
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("proposal_id", proposalID).
			Str("action", action).
			Msg("Proposal transition refused")
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		ProposalID:   p.ID,
		EntityID:     p.EntityID,
		Action:       action,
		PerformedBy:  actorID,
		PerformedAt:  p.UpdatedAt,
		StatusBefore: statusPtr(string(before)),
		StatusAfter:  statusPtr(string(p.Status)),
		Metadata: map[string]any{
			"grand_total": p.Totals().GrandTotal.StringFixed(pricing.MinorUnitPlaces),
			"items":       len(p.Items),
		},
	})

	s.log.Info().
		Str("proposal_id", p.ID).
		Str("status_before", string(before)).
		Str("status_after", string(p.Status)).
		Str("actor_id", actorID).
		Msg("Proposal status changed")

	return p, nil
}

// appendAudit writes an audit entry and logs a warning on failure (never returns error).
func (s *ProposalService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("proposal_id", entry.ProposalID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func (s *ProposalService) publish(ctx context.Context, eventType, proposalID, entityID, actorID string, to []string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishProposalEvent(ctx, eventType, proposalID, entityID, actorID, to, payload)
}

func statusPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func recipients(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
