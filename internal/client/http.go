package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/middleware"
)

// newRestClient builds a JSON client for a sibling service. The incoming
// request ID is forwarded so upstream logs can be correlated.
func newRestClient(baseURL string, timeout time.Duration) *resty.Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	c.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if id := middleware.GetRequestID(r.Context()); id != "" {
			r.SetHeader(middleware.RequestIDHeader, id)
		}
		return nil
	})
	return c
}

// upstreamError converts a non-2xx response into a coded error.
func upstreamError(service string, resp *resty.Response) error {
	msg := resp.Status()
	if e, ok := resp.Error().(*ErrorResponse); ok && e != nil {
		if e.Message != "" {
			msg = e.Message
		} else if e.Error != "" {
			msg = e.Error
		}
	}

	code := errors.ErrCodeInternal
	switch resp.StatusCode() {
	case http.StatusNotFound:
		code = errors.ErrCodeNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = errors.ErrCodeInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		code = errors.ErrCodeUnauthorized
	}
	return errors.New(code, fmt.Sprintf("%s: %s", service, msg))
}
