package repository

import (
	"context"
	"time"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
)

// ── Stores consumed by the service layer ─────────────────────────────────────

// ProposalStore persists proposals together with their line items.
type ProposalStore interface {
	Create(ctx context.Context, p *proposal.Proposal) error
	GetByID(ctx context.Context, id string) (*proposal.Proposal, error)
	List(ctx context.Context, filter ProposalFilter) ([]*proposal.Proposal, error)
	// Update rewrites the header and replaces the item list.
	Update(ctx context.Context, p *proposal.Proposal) error
	Delete(ctx context.Context, id string) error
}

// WorkflowStore persists approval workflows together with their steps.
type WorkflowStore interface {
	Create(ctx context.Context, wf *approval.Workflow) error
	GetByID(ctx context.Context, id string) (*approval.Workflow, error)
	// GetLatestByProposalID returns nil when the proposal has no workflow.
	GetLatestByProposalID(ctx context.Context, proposalID string) (*approval.Workflow, error)
	ListByProposalID(ctx context.Context, proposalID string) ([]*approval.Workflow, error)
	// ListPendingForApprover returns pending workflows whose active step is
	// assigned to approverID.
	ListPendingForApprover(ctx context.Context, approverID string) ([]*approval.Workflow, error)
	Update(ctx context.Context, wf *approval.Workflow) error
}

// AuditStore appends and reads immutable audit entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByProposalID(ctx context.Context, proposalID string) ([]*AuditEntry, error)
}

// ProposalFilter narrows List. Zero values match everything.
type ProposalFilter struct {
	EntityID string
	ClientID string
	Status   proposal.Status
	Limit    int
	Offset   int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (f ProposalFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	}
	return f.Limit
}

// Audit actions.
const (
	ActionProposalCreated   = "proposal_created"
	ActionProposalSent      = "proposal_sent"
	ActionProposalAccepted  = "proposal_accepted"
	ActionProposalDeclined  = "proposal_declined"
	ActionWorkflowStarted   = "workflow_started"
	ActionStepApproved      = "step_approved"
	ActionStepRejected      = "step_rejected"
	ActionStepSkipped       = "step_skipped"
	ActionWorkflowCancelled = "workflow_cancelled"
)

// AuditEntry is one immutable record in the audit log.
type AuditEntry struct {
	ID           string         `json:"id"`
	ProposalID   string         `json:"proposal_id"`
	WorkflowID   *string        `json:"workflow_id,omitempty"`
	StepID       *string        `json:"step_id,omitempty"`
	EntityID     string         `json:"entity_id"`
	Action       string         `json:"action"`
	PerformedBy  string         `json:"performed_by"`
	PerformedAt  time.Time      `json:"performed_at"`
	StatusBefore *string        `json:"status_before,omitempty"`
	StatusAfter  *string        `json:"status_after,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
