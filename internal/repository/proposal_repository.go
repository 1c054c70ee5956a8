package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-sales-proposals/internal/platform/database"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/pricing"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
)

// ProposalRepository stores proposals in Postgres. The header and its items
// are always written together in one transaction.
type ProposalRepository struct {
	db *database.DB
}

// NewProposalRepository creates a new ProposalRepository.
func NewProposalRepository(db *database.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

const proposalColumns = `
	id, entity_id, client_id, title, currency, discount_mode, status,
	notes, created_by, decline_reason,
	created_at, updated_at, sent_at, accepted_at, declined_at
`

// Create inserts a proposal and its items.
func (r *ProposalRepository) Create(ctx context.Context, p *proposal.Proposal) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO proposals
			    (id, entity_id, client_id, title, currency, discount_mode, status,
			     notes, created_by, decline_reason, grand_total,
			     created_at, updated_at, sent_at, accepted_at, declined_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7,
			        $8, $9, $10, $11::numeric,
			        $12, $13, $14, $15, $16)
		`

		_, err := tx.Exec(ctx, query,
			p.ID,
			p.EntityID,
			p.ClientID,
			p.Title,
			p.Currency,
			string(p.DiscountMode),
			string(p.Status),
			p.Notes,
			p.CreatedBy,
			p.DeclineReason,
			p.Totals().GrandTotal.StringFixed(pricing.MinorUnitPlaces),
			p.CreatedAt,
			p.UpdatedAt,
			p.SentAt,
			p.AcceptedAt,
			p.DeclinedAt,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create proposal")
		}

		return r.insertItems(ctx, tx, p)
	})
}

// GetByID retrieves a proposal with its items ordered by position.
func (r *ProposalRepository) GetByID(ctx context.Context, id string) (*proposal.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`

	p, err := r.scanProposal(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("proposal", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get proposal")
	}

	items, err := r.getItems(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Items = items
	return p, nil
}

// List returns proposals matching filter, newest first, with their items.
func (r *ProposalRepository) List(ctx context.Context, filter ProposalFilter) ([]*proposal.Proposal, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if filter.ClientID != "" {
		add("client_id = $%d", filter.ClientID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}

	query := `SELECT ` + proposalColumns + ` FROM proposals`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit(), filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list proposals")
	}
	defer rows.Close()

	var proposals []*proposal.Proposal
	for rows.Next() {
		p, err := r.scanProposal(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan proposal")
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list proposals")
	}
	rows.Close()

	for _, p := range proposals {
		if p.Items, err = r.getItems(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return proposals, nil
}

// Update rewrites the header, refreshes the denormalized grand total and
// replaces the item list.
func (r *ProposalRepository) Update(ctx context.Context, p *proposal.Proposal) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE proposals
			SET client_id      = $2,
			    title          = $3,
			    currency       = $4,
			    discount_mode  = $5,
			    status         = $6,
			    notes          = $7,
			    decline_reason = $8,
			    grand_total    = $9::numeric,
			    updated_at     = $10,
			    sent_at        = $11,
			    accepted_at    = $12,
			    declined_at    = $13
			WHERE id = $1
		`

		tag, err := tx.Exec(ctx, query,
			p.ID,
			p.ClientID,
			p.Title,
			p.Currency,
			string(p.DiscountMode),
			string(p.Status),
			p.Notes,
			p.DeclineReason,
			p.Totals().GrandTotal.StringFixed(pricing.MinorUnitPlaces),
			p.UpdatedAt,
			p.SentAt,
			p.AcceptedAt,
			p.DeclinedAt,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update proposal")
		}
		if tag.RowsAffected() == 0 {
			return errors.NotFound("proposal", p.ID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM proposal_items WHERE proposal_id = $1`, p.ID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear proposal items")
		}
		return r.insertItems(ctx, tx, p)
	})
}

// Delete removes a proposal; items, workflows and steps cascade.
func (r *ProposalRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM proposals WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete proposal")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("proposal", id)
	}
	return nil
}

func (r *ProposalRepository) insertItems(ctx context.Context, tx pgx.Tx, p *proposal.Proposal) error {
	query := `
		INSERT INTO proposal_items
		    (id, proposal_id, item_order, kind, name, description, sku, vendor,
		     quantity, unit_price, discount_mode, discount_value,
		     tax_percent, setup_fee, margin_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
		        $9::numeric, $10::numeric, $11, $12::numeric,
		        $13::numeric, $14::numeric, $15::numeric)
	`

	for _, it := range p.Items {
		_, err := tx.Exec(ctx, query,
			it.ID,
			p.ID,
			it.Order,
			string(it.Kind),
			it.Name,
			it.Description,
			it.SKU,
			it.Vendor,
			it.Quantity.String(),
			it.UnitPrice.String(),
			string(it.Discount.Mode),
			it.Discount.Value.String(),
			it.TaxPercent.String(),
			it.SetupFee.String(),
			it.MarginPercent.String(),
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert proposal item")
		}
	}
	return nil
}

func (r *ProposalRepository) getItems(ctx context.Context, proposalID string) ([]pricing.LineItem, error) {
	query := `
		SELECT id, item_order, kind, name, description, sku, vendor,
		       quantity::text, unit_price::text, discount_mode, discount_value::text,
		       tax_percent::text, setup_fee::text, margin_percent::text
		FROM proposal_items
		WHERE proposal_id = $1
		ORDER BY item_order ASC
	`

	rows, err := r.db.Query(ctx, query, proposalID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get proposal items")
	}
	defer rows.Close()

	items := []pricing.LineItem{}
	for rows.Next() {
		it, err := r.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read proposal items")
	}
	return items, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ProposalRepository) scanProposal(row rowScanner) (*proposal.Proposal, error) {
	p := &proposal.Proposal{Items: []pricing.LineItem{}}
	var mode, status string
	err := row.Scan(
		&p.ID,
		&p.EntityID,
		&p.ClientID,
		&p.Title,
		&p.Currency,
		&mode,
		&status,
		&p.Notes,
		&p.CreatedBy,
		&p.DeclineReason,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.SentAt,
		&p.AcceptedAt,
		&p.DeclinedAt,
	)
	if err != nil {
		return nil, err
	}
	p.DiscountMode = pricing.DiscountMode(mode)
	p.Status = proposal.Status(status)
	return p, nil
}

func (r *ProposalRepository) scanItem(row rowScanner) (pricing.LineItem, error) {
	var (
		it                                       pricing.LineItem
		kind, mode                               string
		qty, price, discount, tax, setup, margin string
	)
	err := row.Scan(
		&it.ID,
		&it.Order,
		&kind,
		&it.Name,
		&it.Description,
		&it.SKU,
		&it.Vendor,
		&qty,
		&price,
		&mode,
		&discount,
		&tax,
		&setup,
		&margin,
	)
	if err != nil {
		return it, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan proposal item")
	}

	it.Kind = pricing.ItemKind(kind)
	it.Discount.Mode = pricing.DiscountMode(mode)
	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&it.Quantity, qty},
		{&it.UnitPrice, price},
		{&it.Discount.Value, discount},
		{&it.TaxPercent, tax},
		{&it.SetupFee, setup},
		{&it.MarginPercent, margin},
	} {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return it, errors.Wrap(err, errors.ErrCodeInternal, "failed to parse stored amount")
		}
		*f.dst = v
	}
	return it, nil
}
