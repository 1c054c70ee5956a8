package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/client"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/logger"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
	"github.com/pesio-ai/be-sales-proposals/internal/repository"
)

// ApprovalService orchestrates the sequential approval workflow of a proposal.
type ApprovalService struct {
	proposals repository.ProposalStore
	workflows repository.WorkflowStore
	audit     repository.AuditStore
	directory client.DirectoryClientInterface
	publisher client.EventPublisherInterface
	locks     *ProposalLocks
	now       func() time.Time
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	proposals repository.ProposalStore,
	workflows repository.WorkflowStore,
	audit repository.AuditStore,
	directory client.DirectoryClientInterface,
	publisher client.EventPublisherInterface,
	locks *ProposalLocks,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		proposals: proposals,
		workflows: workflows,
		audit:     audit,
		directory: directory,
		publisher: publisher,
		locks:     locks,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// StartWorkflowRequest represents a start approval request
type StartWorkflowRequest struct {
	ProposalID  string
	RequestedBy string
	Approvers   []client.ApproverRef
}

// DecideRequest represents an approver's decision on the active step
type DecideRequest struct {
	WorkflowID string
	StepID     string
	Decision   string
	ActorID    string
	Comment    string
}

// ── Workflow creation ─────────────────────────────────────────────────────────

// StartWorkflow resolves the approvers and opens a new workflow for a
// proposal. A proposal has at most one pending workflow at a time.
func (s *ApprovalService) StartWorkflow(ctx context.Context, req *StartWorkflowRequest) (*approval.Workflow, error) {
	if len(req.Approvers) == 0 {
		return nil, errors.InvalidInput("approvers", "at least one approver is required")
	}
	seen := make(map[string]bool, len(req.Approvers))
	for _, a := range req.Approvers {
		if strings.TrimSpace(a.UserID) == "" {
			return nil, errors.InvalidInput("approvers", "approver user_id is required")
		}
		if seen[a.UserID] {
			return nil, errors.InvalidInput("approvers", fmt.Sprintf("approver %s listed twice", a.UserID))
		}
		seen[a.UserID] = true
	}

	unlock := s.locks.Lock(req.ProposalID)
	defer unlock()

	p, err := s.proposals.GetByID(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	if p.Status == proposal.StatusAccepted || p.Status == proposal.StatusDeclined {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot request approval for a %s proposal", p.Status))
	}

	current, err := s.workflows.GetLatestByProposalID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Status == approval.StatusPending {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("proposal already has a pending approval workflow (%s)", current.ID))
	}

	approvers, err := s.directory.ResolveApprovers(ctx, p.EntityID, req.Approvers)
	if err != nil {
		return nil, err
	}

	wf, err := approval.NewWorkflow(p.ID, approvers, s.now())
	if err != nil {
		return nil, domainError(err)
	}
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		ProposalID:  p.ID,
		WorkflowID:  &wf.ID,
		EntityID:    p.EntityID,
		Action:      repository.ActionWorkflowStarted,
		PerformedBy: req.RequestedBy,
		PerformedAt: wf.CreatedAt,
		StatusAfter: statusPtr(string(wf.Status)),
		Metadata:    map[string]any{"total_steps": len(wf.Steps)},
	})

	s.log.Info().
		Str("proposal_id", p.ID).
		Str("workflow_id", wf.ID).
		Int("total_steps", len(wf.Steps)).
		Str("status", string(wf.Status)).
		Msg("Approval workflow created")

	s.notifyProgress(ctx, p, wf, req.RequestedBy)
	return wf, nil
}

// ── Decide ────────────────────────────────────────────────────────────────────

// Decide applies an approver's decision to the workflow's active step.
// Deciding any other step is refused without changing anything.
func (s *ApprovalService) Decide(ctx context.Context, req *DecideRequest) (*approval.Workflow, error) {
	decision := approval.Decision(strings.ToLower(req.Decision))
	if !decision.IsValid() {
		return nil, errors.InvalidInput("decision", "must be approve, reject or skip")
	}

	wf, err := s.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(wf.ProposalID)
	defer unlock()

	// Re-read under the lock; another decision may have landed meanwhile.
	wf, err = s.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	step, ok := wf.Step(req.StepID)
	if !ok {
		return nil, errors.NotFound("approval_step", req.StepID)
	}
	// Ordering is checked before identity: deciding a step that is not active
	// is a conflict whoever asks.
	if active, ok := wf.ActiveStep(); ok && active.ID == step.ID {
		if err := s.assertCanAct(step, req.ActorID); err != nil {
			return nil, err
		}
	}

	before := wf.Status
	if err := wf.Decide(req.StepID, decision, req.Comment, s.now()); err != nil {
		s.log.Warn().Err(err).
			Str("workflow_id", wf.ID).
			Str("step_id", req.StepID).
			Str("actor_id", req.ActorID).
			Msg("Approval decision refused")
		return nil, domainError(err)
	}
	if err := s.workflows.Update(ctx, wf); err != nil {
		return nil, err
	}

	decided, _ := wf.Step(req.StepID)
	p, err := s.proposals.GetByID(ctx, wf.ProposalID)
	if err != nil {
		s.log.Warn().Err(err).Str("proposal_id", wf.ProposalID).Msg("Could not load proposal after decision")
		p = &proposal.Proposal{ID: wf.ProposalID}
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		ProposalID:   wf.ProposalID,
		WorkflowID:   &wf.ID,
		StepID:       &decided.ID,
		EntityID:     p.EntityID,
		Action:       stepAction(decided.Status),
		PerformedBy:  req.ActorID,
		PerformedAt:  *decided.DecidedAt,
		StatusBefore: statusPtr(string(before)),
		StatusAfter:  statusPtr(string(wf.Status)),
		Metadata: map[string]any{
			"step_order": decided.Order,
			"comments":   decided.Comments,
		},
	})

	s.log.Info().
		Str("workflow_id", wf.ID).
		Int("step_order", decided.Order).
		Str("step_status", string(decided.Status)).
		Str("workflow_status", string(wf.Status)).
		Msg("Approval step decided")

	s.publish(ctx, client.EventApprovalStepDecided, wf.ProposalID, p.EntityID, req.ActorID,
		recipients(p.CreatedBy), map[string]any{
			"workflow_id":     wf.ID,
			"step_order":      decided.Order,
			"step_status":     string(decided.Status),
			"workflow_status": string(wf.Status),
			"comments":        decided.Comments,
		})
	s.notifyProgress(ctx, p, wf, req.ActorID)
	return wf, nil
}

// ── Cancel ────────────────────────────────────────────────────────────────────

// CancelWorkflow administratively closes a pending workflow.
func (s *ApprovalService) CancelWorkflow(ctx context.Context, workflowID, actorID, reason string) (*approval.Workflow, error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(wf.ProposalID)
	defer unlock()

	wf, err = s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := wf.Cancel(s.now()); err != nil {
		return nil, domainError(err)
	}
	if err := s.workflows.Update(ctx, wf); err != nil {
		return nil, err
	}

	p, err := s.proposals.GetByID(ctx, wf.ProposalID)
	if err != nil {
		p = &proposal.Proposal{ID: wf.ProposalID}
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		ProposalID:   wf.ProposalID,
		WorkflowID:   &wf.ID,
		EntityID:     p.EntityID,
		Action:       repository.ActionWorkflowCancelled,
		PerformedBy:  actorID,
		PerformedAt:  *wf.CompletedAt,
		StatusBefore: statusPtr(string(approval.StatusPending)),
		StatusAfter:  statusPtr(string(wf.Status)),
		Metadata:     map[string]any{"reason": reason},
	})

	s.log.Info().
		Str("workflow_id", wf.ID).
		Str("cancelled_by", actorID).
		Msg("Approval workflow cancelled")

	s.publish(ctx, client.EventApprovalCancelled, p.ID, p.EntityID, actorID,
		pendingApprovers(wf), map[string]any{"reason": reason})
	return wf, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetWorkflow returns a workflow by ID.
func (s *ApprovalService) GetWorkflow(ctx context.Context, workflowID string) (*approval.Workflow, error) {
	return s.workflows.GetByID(ctx, workflowID)
}

// GetProposalWorkflow returns the latest workflow of a proposal.
func (s *ApprovalService) GetProposalWorkflow(ctx context.Context, proposalID string) (*approval.Workflow, error) {
	wf, err := s.workflows.GetLatestByProposalID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, errors.NotFound("approval_workflow for proposal", proposalID)
	}
	return wf, nil
}

// GetPendingApprovals returns the workflows currently waiting on approverID.
func (s *ApprovalService) GetPendingApprovals(ctx context.Context, approverID string) ([]*approval.Workflow, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, errors.InvalidInput("approver_id", "approver_id is required")
	}
	return s.workflows.ListPendingForApprover(ctx, approverID)
}

// GetApprovalHistory returns the audit trail of a proposal, oldest first.
func (s *ApprovalService) GetApprovalHistory(ctx context.Context, proposalID string) ([]*repository.AuditEntry, error) {
	return s.audit.ListByProposalID(ctx, proposalID)
}

// ── Authorization helper ──────────────────────────────────────────────────────

// assertCanAct checks that userID is the approver assigned to a step.
func (s *ApprovalService) assertCanAct(step approval.Step, userID string) error {
	if step.ApproverID == userID {
		return nil
	}
	return errors.New(errors.ErrCodeUnauthorized,
		"user is not authorized to act on this approval step")
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// notifyProgress tells the next approver it is their turn, or tells the
// proposal owner the outcome once the workflow closes.
func (s *ApprovalService) notifyProgress(ctx context.Context, p *proposal.Proposal, wf *approval.Workflow, actorID string) {
	switch wf.Status {
	case approval.StatusApproved:
		s.publish(ctx, client.EventProposalApproved, p.ID, p.EntityID, actorID,
			recipients(p.CreatedBy), map[string]any{"workflow_id": wf.ID})
	case approval.StatusRejected:
		s.publish(ctx, client.EventProposalRejected, p.ID, p.EntityID, actorID,
			recipients(p.CreatedBy), map[string]any{"workflow_id": wf.ID})
	case approval.StatusPending:
		if next, ok := wf.ActiveStep(); ok {
			s.publish(ctx, client.EventApprovalRequired, p.ID, p.EntityID, actorID,
				recipients(next.ApproverID), map[string]any{
					"workflow_id": wf.ID,
					"step_id":     next.ID,
					"step_order":  next.Order,
					"title":       p.Title,
				})
		}
	}
}

func (s *ApprovalService) publish(ctx context.Context, eventType, proposalID, entityID, actorID string, to []string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishProposalEvent(ctx, eventType, proposalID, entityID, actorID, to, payload)
}

// appendAudit writes an audit entry and logs a warning on failure (never returns error).
func (s *ApprovalService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("proposal_id", entry.ProposalID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func stepAction(status approval.StepStatus) string {
	switch status {
	case approval.StepApproved:
		return repository.ActionStepApproved
	case approval.StepRejected:
		return repository.ActionStepRejected
	default:
		return repository.ActionStepSkipped
	}
}

func pendingApprovers(wf *approval.Workflow) []string {
	var ids []string
	for _, st := range wf.Steps {
		if st.Status == approval.StepPending {
			ids = append(ids, st.ApproverID)
		}
	}
	return ids
}
