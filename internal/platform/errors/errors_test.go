package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"not found", NotFound("proposal", "p-1"), ErrCodeNotFound},
		{"invalid input", InvalidInput("currency", "must be 3 letters"), ErrCodeInvalidInput},
		{"wrapped twice", fmt.Errorf("outer: %w", New(ErrCodeConflict, "busy")), ErrCodeConflict},
		{"plain error", stderrors.New("boom"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("workflow", "w")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidInput("f", "bad")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(New(ErrCodeConflict, "x")))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(New(ErrCodeUnauthorized, "x")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stderrors.New("x")))
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(cause, ErrCodeInternal, "failed to load proposal")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load proposal: connection reset", err.Error())
}

func TestErrorMessageIncludesField(t *testing.T) {
	err := InvalidInput("discount_mode", "must be percentage or amount")
	assert.Equal(t, "discount_mode: must be percentage or amount", err.Error())
}

func TestWithCodeKeepsMessage(t *testing.T) {
	cause := stderrors.New("approval step is not the active step")
	err := WithCode(cause, ErrCodeConflict)

	assert.Equal(t, cause.Error(), err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeConflict, CodeOf(err))
}
