// Package approval implements the sequential proposal approval workflow.
//
// A workflow is an ordered, fixed list of steps. Exactly one step, the first
// one still pending, accepts a decision at a time. The workflow status is
// always derived from the steps, except for explicit cancellation.
package approval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StepStatus is the state of a single approval step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
)

// Status is the overall workflow state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further decisions are accepted.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Decision is what an approver does with the active step.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionSkip    Decision = "skip"
)

// IsValid reports whether d is a known decision.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionSkip:
		return true
	}
	return false
}

var (
	// ErrOrderViolation is returned when a decision targets a step that is
	// not the active step, including steps that were already decided.
	ErrOrderViolation  = errors.New("approval step is not the active step")
	ErrWorkflowClosed  = errors.New("approval workflow is closed")
	ErrStepNotFound    = errors.New("approval step not found")
	ErrRequiredStep    = errors.New("required approval step cannot be skipped")
	ErrInvalidDecision = errors.New("invalid approval decision")
	ErrNoApprovers     = errors.New("approval workflow needs at least one approver")
)

// Approver is an externally resolved identity assigned to one step.
type Approver struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Required bool   `json:"required"`
}

// Step is one approver's slot in the sequence.
type Step struct {
	ID            string     `json:"id"`
	Order         int        `json:"order"`
	ApproverID    string     `json:"approver_id"`
	ApproverName  string     `json:"approver_name"`
	ApproverEmail string     `json:"approver_email"`
	Required      bool       `json:"required"`
	Status        StepStatus `json:"status"`
	Comments      string     `json:"comments,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

// Workflow is the approval state for one proposal.
type Workflow struct {
	ID          string     `json:"id"`
	ProposalID  string     `json:"proposal_id"`
	Steps       []Step     `json:"steps"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewWorkflow creates a workflow with one pending step per approver, in the
// given order.
func NewWorkflow(proposalID string, approvers []Approver, now time.Time) (*Workflow, error) {
	if len(approvers) == 0 {
		return nil, ErrNoApprovers
	}

	steps := make([]Step, 0, len(approvers))
	for i, a := range approvers {
		if strings.TrimSpace(a.ID) == "" {
			return nil, fmt.Errorf("approver %d: id is required", i+1)
		}
		steps = append(steps, Step{
			ID:            uuid.NewString(),
			Order:         i + 1,
			ApproverID:    a.ID,
			ApproverName:  a.Name,
			ApproverEmail: a.Email,
			Required:      a.Required,
			Status:        StepPending,
		})
	}

	w := &Workflow{
		ID:         uuid.NewString(),
		ProposalID: proposalID,
		Steps:      steps,
		Status:     StatusPending,
		CreatedAt:  now,
	}
	// A workflow whose steps are all optional is approved on creation.
	w.refreshStatus(now)
	return w, nil
}

// DeriveStatus computes the workflow status from its steps:
// rejected if any step is rejected, approved if every required step is
// approved, pending otherwise.
func DeriveStatus(steps []Step) Status {
	allRequiredApproved := true
	for _, s := range steps {
		if s.Status == StepRejected {
			return StatusRejected
		}
		if s.Required && s.Status != StepApproved {
			allRequiredApproved = false
		}
	}
	if allRequiredApproved {
		return StatusApproved
	}
	return StatusPending
}

// ActiveStep returns the first pending step. There is none once the workflow
// is terminal.
func (w *Workflow) ActiveStep() (Step, bool) {
	if w.Status.IsTerminal() {
		return Step{}, false
	}
	for _, s := range w.Steps {
		if s.Status == StepPending {
			return s, true
		}
	}
	return Step{}, false
}

// Step returns the step with the given ID.
func (w *Workflow) Step(stepID string) (Step, bool) {
	if i := w.indexOf(stepID); i >= 0 {
		return w.Steps[i], true
	}
	return Step{}, false
}

// Decide applies a decision to the active step. It either succeeds completely
// or returns an error and leaves the workflow untouched.
func (w *Workflow) Decide(stepID string, decision Decision, comment string, at time.Time) error {
	if !decision.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
	if w.Status.IsTerminal() {
		return fmt.Errorf("%w: status is %s", ErrWorkflowClosed, w.Status)
	}

	idx := w.indexOf(stepID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	}
	step := w.Steps[idx]
	if step.Status != StepPending {
		return fmt.Errorf("%w: step %d already %s", ErrOrderViolation, step.Order, step.Status)
	}
	if active, ok := w.ActiveStep(); !ok || active.ID != stepID {
		return fmt.Errorf("%w: step %d is waiting on step %d", ErrOrderViolation, step.Order, active.Order)
	}
	if decision == DecisionSkip && step.Required {
		return fmt.Errorf("%w: step %d", ErrRequiredStep, step.Order)
	}

	next, err := transitionStep(step, decision)
	if err != nil {
		return err
	}

	decidedAt := at
	step.Status = next
	step.Comments = comment
	step.DecidedAt = &decidedAt
	w.Steps[idx] = step

	w.refreshStatus(at)
	return nil
}

// Cancel administratively closes a pending workflow.
func (w *Workflow) Cancel(at time.Time) error {
	if w.Status.IsTerminal() {
		return fmt.Errorf("%w: status is %s", ErrWorkflowClosed, w.Status)
	}
	w.Status = StatusCancelled
	if w.CompletedAt == nil {
		completed := at
		w.CompletedAt = &completed
	}
	return nil
}

// Reconcile re-derives the status after loading steps from storage.
func (w *Workflow) Reconcile(now time.Time) {
	w.refreshStatus(now)
}

// Clone returns a deep copy.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Steps = make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		if s.DecidedAt != nil {
			t := *s.DecidedAt
			s.DecidedAt = &t
		}
		c.Steps[i] = s
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (w *Workflow) refreshStatus(at time.Time) {
	if w.Status == StatusCancelled {
		return
	}
	w.Status = DeriveStatus(w.Steps)
	if w.Status != StatusPending && w.CompletedAt == nil {
		completed := at
		w.CompletedAt = &completed
	}
}

func (w *Workflow) indexOf(stepID string) int {
	for i, s := range w.Steps {
		if s.ID == stepID {
			return i
		}
	}
	return -1
}
