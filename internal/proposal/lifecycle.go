package proposal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
)

// Reason is a machine-readable explanation of why a gate is closed.
type Reason string

const (
	ReasonNoItems            Reason = "no_items"
	ReasonItemMissingName    Reason = "item_missing_name"
	ReasonNegativeUnitPrice  Reason = "negative_unit_price"
	ReasonApprovalNotGranted Reason = "approval_not_granted"
	ReasonZeroGrandTotal     Reason = "zero_grand_total"
)

// Gate is the outcome of a lifecycle check.
type Gate struct {
	OK      bool     `json:"ok"`
	Reasons []Reason `json:"reasons"`
}

func newGate(reasons []Reason) Gate {
	if reasons == nil {
		reasons = []Reason{}
	}
	return Gate{OK: len(reasons) == 0, Reasons: reasons}
}

// GateError is returned when a transition is attempted through a closed gate.
type GateError struct {
	Action  string
	Reasons []Reason
}

func (e *GateError) Error() string {
	parts := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		parts[i] = string(r)
	}
	return fmt.Sprintf("cannot %s proposal: %s", e.Action, strings.Join(parts, ", "))
}

// CanSend reports whether p has something sendable: at least one item, every
// item named and none priced below zero.
func CanSend(p *Proposal) Gate {
	var reasons []Reason
	if len(p.Items) == 0 {
		reasons = append(reasons, ReasonNoItems)
	}

	var missingName, negativePrice bool
	for _, it := range p.Items {
		if strings.TrimSpace(it.Name) == "" {
			missingName = true
		}
		if it.UnitPrice.IsNegative() {
			negativePrice = true
		}
	}
	if missingName {
		reasons = append(reasons, ReasonItemMissingName)
	}
	if negativePrice {
		reasons = append(reasons, ReasonNegativeUnitPrice)
	}
	return newGate(reasons)
}

// CanMarkAccepted reports whether p may be marked accepted. wf is the
// proposal's current approval workflow, or nil when approval was never
// requested, in which case the approval condition holds.
func CanMarkAccepted(p *Proposal, wf *approval.Workflow) Gate {
	var reasons []Reason
	if wf != nil && wf.Status != approval.StatusApproved {
		reasons = append(reasons, ReasonApprovalNotGranted)
	}
	if !p.Totals().GrandTotal.IsPositive() {
		reasons = append(reasons, ReasonZeroGrandTotal)
	}
	return newGate(reasons)
}

type trigger string

const (
	triggerSend    trigger = "send"
	triggerAccept  trigger = "accept"
	triggerDecline trigger = "decline"
)

// fire runs trigger t through the lifecycle machine. Send and accept are
// guarded by their gates; wf is the workflow CanMarkAccepted consults.
func (p *Proposal) fire(t trigger, wf *approval.Workflow) (Status, error) {
	var closed *GateError
	guard := func(action string, check func() Gate) func(context.Context, ...any) bool {
		return func(_ context.Context, _ ...any) bool {
			g := check()
			if !g.OK {
				closed = &GateError{Action: action, Reasons: g.Reasons}
			}
			return g.OK
		}
	}

	machine := stateless.NewStateMachine(p.Status)

	machine.Configure(StatusDraft).
		Permit(triggerSend, StatusSent, guard("send", func() Gate { return CanSend(p) }))

	machine.Configure(StatusSent).
		Permit(triggerAccept, StatusAccepted, guard("accept", func() Gate { return CanMarkAccepted(p, wf) })).
		Permit(triggerDecline, StatusDeclined)

	machine.Configure(StatusAccepted)
	machine.Configure(StatusDeclined)

	if err := machine.Fire(t); err != nil {
		if closed != nil {
			return p.Status, closed
		}
		return p.Status, fmt.Errorf("%w: cannot %s a %s proposal", ErrInvalidTransition, t, p.Status)
	}
	next, ok := machine.MustState().(Status)
	if !ok {
		return p.Status, fmt.Errorf("unexpected proposal state %v", machine.MustState())
	}
	return next, nil
}

// Send moves a draft to sent once CanSend passes.
func (p *Proposal) Send(now time.Time) error {
	next, err := p.fire(triggerSend, nil)
	if err != nil {
		return err
	}
	p.Status = next
	p.SentAt = &now
	p.UpdatedAt = now
	return nil
}

// MarkAccepted records the client's acceptance of a sent proposal.
func (p *Proposal) MarkAccepted(wf *approval.Workflow, now time.Time) error {
	next, err := p.fire(triggerAccept, wf)
	if err != nil {
		return err
	}
	p.Status = next
	p.AcceptedAt = &now
	p.UpdatedAt = now
	return nil
}

// Decline records the client's refusal of a sent proposal.
func (p *Proposal) Decline(reason string, now time.Time) error {
	next, err := p.fire(triggerDecline, nil)
	if err != nil {
		return err
	}
	p.Status = next
	p.DeclineReason = reason
	p.DeclinedAt = &now
	p.UpdatedAt = now
	return nil
}
