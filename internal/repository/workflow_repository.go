package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/database"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
)

// WorkflowRepository manages approval workflows and their steps.
// Workflow + step writes are always done together in a single transaction.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a workflow and all of its steps.
func (r *WorkflowRepository) Create(ctx context.Context, wf *approval.Workflow) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO proposal_approval_workflows
			    (id, proposal_id, status, created_at, completed_at)
			VALUES ($1, $2, $3, $4, $5)
		`

		_, err := tx.Exec(ctx, query, wf.ID, wf.ProposalID, string(wf.Status), wf.CreatedAt, wf.CompletedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval workflow")
		}

		stepQuery := `
			INSERT INTO proposal_approval_steps
			    (id, workflow_id, step_order, approver_id, approver_name, approver_email,
			     is_required, status, comments, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6,
			        $7, $8, $9, $10)
		`

		for _, s := range wf.Steps {
			_, err := tx.Exec(ctx, stepQuery,
				s.ID,
				wf.ID,
				s.Order,
				s.ApproverID,
				s.ApproverName,
				s.ApproverEmail,
				s.Required,
				string(s.Status),
				s.Comments,
				s.DecidedAt,
			)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval step")
			}
		}
		return nil
	})
}

// GetByID retrieves a workflow with its steps.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*approval.Workflow, error) {
	query := `
		SELECT id, proposal_id, status, created_at, completed_at
		FROM proposal_approval_workflows
		WHERE id = $1
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_workflow", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval workflow")
	}
	return r.withSteps(ctx, wf)
}

// GetLatestByProposalID returns the most recent workflow for a proposal, or
// nil when none exists.
func (r *WorkflowRepository) GetLatestByProposalID(ctx context.Context, proposalID string) (*approval.Workflow, error) {
	query := `
		SELECT id, proposal_id, status, created_at, completed_at
		FROM proposal_approval_workflows
		WHERE proposal_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, proposalID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval workflow")
	}
	return r.withSteps(ctx, wf)
}

// ListByProposalID returns every workflow for a proposal, oldest first.
func (r *WorkflowRepository) ListByProposalID(ctx context.Context, proposalID string) ([]*approval.Workflow, error) {
	query := `
		SELECT id, proposal_id, status, created_at, completed_at
		FROM proposal_approval_workflows
		WHERE proposal_id = $1
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, proposalID)
}

// ListPendingForApprover returns pending workflows waiting on approverID.
// The active step is derived after loading, so a step assigned to the
// approver further down the sequence does not count.
func (r *WorkflowRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]*approval.Workflow, error) {
	query := `
		SELECT DISTINCT w.id, w.proposal_id, w.status, w.created_at, w.completed_at
		FROM proposal_approval_workflows w
		JOIN proposal_approval_steps s ON s.workflow_id = w.id
		WHERE w.status = 'pending'
		  AND s.approver_id = $1
		  AND s.status = 'pending'
		ORDER BY w.created_at ASC
	`

	workflows, err := r.list(ctx, query, approverID)
	if err != nil {
		return nil, err
	}
	return filterActiveFor(workflows, approverID), nil
}

// Update writes the workflow status and every step's decision fields.
func (r *WorkflowRepository) Update(ctx context.Context, wf *approval.Workflow) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE proposal_approval_workflows
			SET status       = $2,
			    completed_at = $3
			WHERE id = $1
		`

		tag, err := tx.Exec(ctx, query, wf.ID, string(wf.Status), wf.CompletedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval workflow")
		}
		if tag.RowsAffected() == 0 {
			return errors.NotFound("approval_workflow", wf.ID)
		}

		stepQuery := `
			UPDATE proposal_approval_steps
			SET status     = $2,
			    comments   = $3,
			    decided_at = $4
			WHERE id = $1
		`
		for _, s := range wf.Steps {
			if _, err := tx.Exec(ctx, stepQuery, s.ID, string(s.Status), s.Comments, s.DecidedAt); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval step")
			}
		}
		return nil
	})
}

func (r *WorkflowRepository) list(ctx context.Context, query string, args ...any) ([]*approval.Workflow, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval workflows")
	}
	defer rows.Close()

	var workflows []*approval.Workflow
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval workflow")
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval workflows")
	}
	rows.Close()

	for i, wf := range workflows {
		if workflows[i], err = r.withSteps(ctx, wf); err != nil {
			return nil, err
		}
	}
	return workflows, nil
}

func (r *WorkflowRepository) withSteps(ctx context.Context, wf *approval.Workflow) (*approval.Workflow, error) {
	query := `
		SELECT id, step_order, approver_id, approver_name, approver_email,
		       is_required, status, comments, decided_at
		FROM proposal_approval_steps
		WHERE workflow_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.Query(ctx, query, wf.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval steps")
	}
	defer rows.Close()

	for rows.Next() {
		s, err := r.scanStep(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval step")
		}
		wf.Steps = append(wf.Steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read approval steps")
	}

	// Status is stored for querying but the steps are authoritative.
	wf.Reconcile(time.Now().UTC())
	return wf, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*approval.Workflow, error) {
	wf := &approval.Workflow{}
	var status string
	err := row.Scan(
		&wf.ID,
		&wf.ProposalID,
		&status,
		&wf.CreatedAt,
		&wf.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	wf.Status = approval.Status(status)
	return wf, nil
}

func (r *WorkflowRepository) scanStep(row rowScanner) (approval.Step, error) {
	var (
		s      approval.Step
		status string
	)
	err := row.Scan(
		&s.ID,
		&s.Order,
		&s.ApproverID,
		&s.ApproverName,
		&s.ApproverEmail,
		&s.Required,
		&status,
		&s.Comments,
		&s.DecidedAt,
	)
	s.Status = approval.StepStatus(status)
	return s, err
}

func filterActiveFor(workflows []*approval.Workflow, approverID string) []*approval.Workflow {
	out := make([]*approval.Workflow, 0, len(workflows))
	for _, wf := range workflows {
		if active, ok := wf.ActiveStep(); ok && active.ApproverID == approverID {
			out = append(out, wf)
		}
	}
	return out
}
