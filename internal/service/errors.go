package service

import (
	stderrors "errors"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
)

// domainError attaches an application code to an error returned by the
// proposal or approval packages. Errors that already carry a code pass through.
func domainError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	var gateErr *proposal.GateError
	switch {
	case stderrors.As(err, &gateErr):
		return errors.WithCode(err, errors.ErrCodeConflict)
	case stderrors.Is(err, proposal.ErrItemNotFound),
		stderrors.Is(err, approval.ErrStepNotFound):
		return errors.WithCode(err, errors.ErrCodeNotFound)
	case stderrors.Is(err, proposal.ErrNotEditable),
		stderrors.Is(err, proposal.ErrInvalidTransition),
		stderrors.Is(err, approval.ErrOrderViolation),
		stderrors.Is(err, approval.ErrWorkflowClosed),
		stderrors.Is(err, approval.ErrRequiredStep):
		return errors.WithCode(err, errors.ErrCodeConflict)
	default:
		return errors.WithCode(err, errors.ErrCodeInvalidInput)
	}
}
