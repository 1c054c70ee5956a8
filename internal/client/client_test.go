package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/pricing"
)

func TestCatalogClient_GetProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products/get", r.URL.Path)
		assert.Equal(t, "ent-1", r.URL.Query().Get("entity_id"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("sku") {
		case "FW-200":
			_, _ = w.Write([]byte(`{"sku":"FW-200","name":"Firewall","type":"product","price":"1200.00","margin_percent":25,"vendor":"Fortinet","is_active":true}`))
		case "OLD-1":
			_, _ = w.Write([]byte(`{"sku":"OLD-1","name":"Retired","type":"product","price":10,"is_active":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found","message":"no such product"}`))
		}
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, 2*time.Second)

	entry, err := c.GetProduct(context.Background(), "ent-1", "FW-200")
	require.NoError(t, err)
	assert.Equal(t, "Firewall", entry.Name)
	assert.Equal(t, pricing.KindProduct, entry.Kind)
	assert.Equal(t, "1200", entry.UnitPrice.String())
	assert.Equal(t, "25", entry.MarginPercent.String())
	assert.Equal(t, "Fortinet", entry.Vendor)

	_, err = c.GetProduct(context.Background(), "ent-1", "OLD-1")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))

	_, err = c.GetProduct(context.Background(), "ent-1", "NOPE")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestDirectoryClient_ResolveApprovers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/users/batch", r.URL.Path)

		var req BatchUsersRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ent-1", req.EntityID)

		all := map[string]DirectoryUser{
			"u1": {ID: "u1", Name: "Dana Reyes", Email: "dana@example.com", IsActive: true},
			"u2": {ID: "u2", Name: "Sam Okafor", Email: "sam@example.com", IsActive: true},
			"u3": {ID: "u3", Name: "Former Employee", IsActive: false},
		}
		var resp BatchUsersResponse
		// Reverse order to prove the client restores the requested order.
		for i := len(req.IDs) - 1; i >= 0; i-- {
			if u, ok := all[req.IDs[i]]; ok {
				resp.Users = append(resp.Users, u)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewDirectoryClient(srv.URL, 2*time.Second)
	ctx := context.Background()

	approvers, err := c.ResolveApprovers(ctx, "ent-1", []ApproverRef{
		{UserID: "u1", Required: true},
		{UserID: "u2", Required: false},
	})
	require.NoError(t, err)
	require.Len(t, approvers, 2)
	assert.Equal(t, "u1", approvers[0].ID)
	assert.Equal(t, "Dana Reyes", approvers[0].Name)
	assert.True(t, approvers[0].Required)
	assert.Equal(t, "u2", approvers[1].ID)
	assert.False(t, approvers[1].Required)

	_, err = c.ResolveApprovers(ctx, "ent-1", []ApproverRef{{UserID: "u1"}, {UserID: "u3"}, {UserID: "ghost"}})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
	assert.Contains(t, err.Error(), "u3, ghost")

	_, err = c.ResolveApprovers(ctx, "ent-1", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
}

func TestDirectoryClient_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewDirectoryClient(srv.URL, time.Second).ResolveApprovers(context.Background(), "e", []ApproverRef{{UserID: "u1"}})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeUnauthorized))
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNotificationPublisher(t *testing.T) {
	conn := &fakeConn{}
	p := &NotificationPublisher{conn: conn, prefix: "notifications.proposals", log: zerolog.Nop()}

	p.PublishProposalEvent(context.Background(), EventApprovalRequired, "prop-1", "ent-1", "u0", []string{"u1"}, map[string]any{"step": 1})

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "notifications.proposals.approval_required", conn.subjects[0])

	var event NotificationEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &event))
	assert.Equal(t, "prop-1", event.ResourceID)
	assert.Equal(t, "proposal", event.ResourceType)
	assert.True(t, event.IsActionable)
	assert.Equal(t, []string{"u1"}, event.Recipients)

	p.PublishProposalEvent(context.Background(), EventProposalSent, "prop-1", "ent-1", "u0", nil, nil)
	assert.Len(t, conn.subjects, 1, "no recipients means nothing to publish")

	conn.err = errors.New("connection closed")
	assert.NotPanics(t, func() {
		p.PublishProposalEvent(context.Background(), EventProposalSent, "prop-1", "ent-1", "u0", []string{"u1"}, nil)
	})
}

func TestNotificationPublisher_NilConnection(t *testing.T) {
	p := NewNotificationPublisher(nil, "notifications.proposals", zerolog.Nop())
	assert.NotPanics(t, func() {
		p.PublishProposalEvent(context.Background(), EventProposalSent, "p", "e", "a", []string{"r"}, nil)
	})

	var nilPublisher *NotificationPublisher
	assert.NotPanics(t, func() {
		nilPublisher.PublishProposalEvent(context.Background(), EventProposalSent, "p", "e", "a", []string{"r"}, nil)
	})
}

func TestPassthroughDirectory(t *testing.T) {
	approvers, err := PassthroughDirectory{}.ResolveApprovers(context.Background(), "ent-1", []ApproverRef{
		{UserID: "u1", Required: true}, {UserID: "u2"},
	})
	require.NoError(t, err)
	require.Len(t, approvers, 2)
	assert.Equal(t, "u1", approvers[0].ID)
	assert.True(t, approvers[0].Required)
	assert.False(t, approvers[1].Required)

	_, err = PassthroughDirectory{}.ResolveApprovers(context.Background(), "ent-1", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
}
