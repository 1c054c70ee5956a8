package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/pricing"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
)

func newProposal(t *testing.T, entityID string, created time.Time) *proposal.Proposal {
	t.Helper()
	p, err := proposal.New(proposal.Draft{EntityID: entityID, Title: "Proposal " + entityID}, created)
	require.NoError(t, err)
	_, err = p.AddItem(pricing.LineItem{Name: "Item", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100)}, created)
	require.NoError(t, err)
	return p
}

func TestMemoryProposals_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Proposals()
	p := newProposal(t, "ent-1", time.Now())

	require.NoError(t, store.Create(ctx, p))
	assert.True(t, errors.Is(store.Create(ctx, p), errors.ErrCodeConflict))

	got, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Title, got.Title)
	require.Len(t, got.Items, 1)

	got.Items[0].Name = "mutated outside the store"
	again, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Item", again.Items[0].Name)

	got.Title = "Renamed"
	require.NoError(t, store.Update(ctx, got))
	again, err = store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", again.Title)

	require.NoError(t, store.Delete(ctx, p.ID))
	_, err = store.GetByID(ctx, p.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	assert.True(t, errors.Is(store.Delete(ctx, p.ID), errors.ErrCodeNotFound))
}

func TestMemoryProposals_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().Proposals()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Create(ctx, newProposal(t, "ent-a", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, store.Create(ctx, newProposal(t, "ent-b", base)))

	all, err := store.List(ctx, ProposalFilter{EntityID: "ent-a"})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.True(t, all[0].CreatedAt.After(all[4].CreatedAt), "newest first")

	page, err := store.List(ctx, ProposalFilter{EntityID: "ent-a", Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	none, err := store.List(ctx, ProposalFilter{Status: proposal.StatusSent})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryWorkflows(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	now := time.Now()

	p := newProposal(t, "ent-1", now)
	require.NoError(t, mem.Proposals().Create(ctx, p))

	latest, err := mem.Workflows().GetLatestByProposalID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	orphan, err := approval.NewWorkflow("missing", []approval.Approver{{ID: "a", Required: true}}, now)
	require.NoError(t, err)
	assert.True(t, errors.Is(mem.Workflows().Create(ctx, orphan), errors.ErrCodeNotFound))

	first, err := approval.NewWorkflow(p.ID, []approval.Approver{{ID: "alice", Required: true}, {ID: "bob", Required: true}}, now)
	require.NoError(t, err)
	require.NoError(t, first.Cancel(now))
	require.NoError(t, mem.Workflows().Create(ctx, first))

	second, err := approval.NewWorkflow(p.ID, []approval.Approver{{ID: "alice", Required: true}, {ID: "bob", Required: true}}, now)
	require.NoError(t, err)
	require.NoError(t, mem.Workflows().Create(ctx, second))

	latest, err = mem.Workflows().GetLatestByProposalID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	pendingAlice, err := mem.Workflows().ListPendingForApprover(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pendingAlice, 1)
	assert.Equal(t, second.ID, pendingAlice[0].ID)

	pendingBob, err := mem.Workflows().ListPendingForApprover(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pendingBob, "bob's step is not active yet")

	require.NoError(t, latest.Decide(latest.Steps[0].ID, approval.DecisionApprove, "", now))
	require.NoError(t, mem.Workflows().Update(ctx, latest))

	pendingBob, err = mem.Workflows().ListPendingForApprover(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, pendingBob, 1)

	require.NoError(t, mem.Proposals().Delete(ctx, p.ID))
	all, err := mem.Workflows().ListByProposalID(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryAudit(t *testing.T) {
	ctx := context.Background()
	audit := NewMemoryStore().Audit()

	e := &AuditEntry{ProposalID: "p1", Action: ActionProposalCreated, PerformedBy: "u1", PerformedAt: time.Now()}
	require.NoError(t, audit.Append(ctx, e))
	assert.NotEmpty(t, e.ID)
	require.NoError(t, audit.Append(ctx, &AuditEntry{ProposalID: "p2", Action: ActionProposalSent}))

	entries, err := audit.ListByProposalID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionProposalCreated, entries[0].Action)
}

func TestProposalFilterLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, ProposalFilter{}.limit())
	assert.Equal(t, maxListLimit, ProposalFilter{Limit: 10_000}.limit())
	assert.Equal(t, 7, ProposalFilter{Limit: 7}.limit())
}
