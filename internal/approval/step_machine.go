package approval

import (
	"fmt"

	"github.com/qmuntal/stateless"
)

// transitionStep runs a decision through the step state machine. Decided
// states are terminal, so any trigger fired from them is refused.
func transitionStep(step Step, decision Decision) (StepStatus, error) {
	machine := stateless.NewStateMachine(step.Status)

	machine.Configure(StepPending).
		Permit(DecisionApprove, StepApproved).
		Permit(DecisionReject, StepRejected).
		Permit(DecisionSkip, StepSkipped)

	machine.Configure(StepApproved)
	machine.Configure(StepRejected)
	machine.Configure(StepSkipped)

	if err := machine.Fire(decision); err != nil {
		return step.Status, fmt.Errorf("%w: step %d cannot %s from %s", ErrOrderViolation, step.Order, decision, step.Status)
	}

	next, ok := machine.MustState().(StepStatus)
	if !ok {
		return step.Status, fmt.Errorf("unexpected step state %v", machine.MustState())
	}
	return next, nil
}
