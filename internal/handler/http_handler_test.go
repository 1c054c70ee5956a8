package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/client"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/logger"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
	"github.com/pesio-ai/be-sales-proposals/internal/repository"
	"github.com/pesio-ai/be-sales-proposals/internal/service"
)

type testServer struct {
	proposals *service.ProposalService
	approvals *service.ApprovalService
	mux       *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	locks := service.NewProposalLocks()
	log := logger.Nop()

	ts := &testServer{
		proposals: service.NewProposalService(store.Proposals(), store.Workflows(), store.Audit(), nil, nil, locks, log),
		approvals: service.NewApprovalService(store.Proposals(), store.Workflows(), store.Audit(), client.PassthroughDirectory{}, nil, locks, log),
		mux:       http.NewServeMux(),
	}
	NewHTTPHandler(ts.proposals, ts.approvals, log).RegisterRoutes(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (ts *testServer) createProposal(t *testing.T) proposalResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/proposals", map[string]any{
		"entity_id": "ent-1", "title": "Office fit-out", "currency": "gbp", "created_by": "owner",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[proposalResponse](t, rec)
}

func TestNumber_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`12`, "12"},
		{`12.5`, "12.5"},
		{`"7.25"`, "7.25"},
		{`" 3 "`, "3"},
		{`""`, "0"},
		{`"abc"`, "0"},
		{`null`, "0"},
		{`"-4"`, "-4"},
		{`"1e30000000"`, "0"},
		{`1e-30000000`, "0"},
		{`"1e15"`, "0"},
		{`"0.000000000000000000000000000001"`, "0.000000000000000000000000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var n Number
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &n))
			assert.Equal(t, tt.want, n.String())
		})
	}
}

func TestProposalLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProposal(t)
	assert.Equal(t, "GBP", p.Currency)
	assert.Equal(t, "draft", p.Status)
	assert.Equal(t, "0.00", p.Totals.GrandTotal)

	rec := ts.do(t, http.MethodPost, "/api/v1/proposals/send", map[string]any{"id": p.ID, "actor_id": "owner"})
	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "CONFLICT", errBody.Error)
	assert.Equal(t, []proposal.Reason{proposal.ReasonNoItems}, errBody.Reasons)

	rec = ts.do(t, http.MethodPost, "/api/v1/proposals/items/add", map[string]any{
		"proposal_id": p.ID,
		"item": map[string]any{
			"name": "Desk", "quantity": "4", "unit_price": 250, "discount": "10", "tax_percent": "20",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p = decodeBody[proposalResponse](t, rec)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "1080.00", p.Items[0].TotalPrice)
	assert.Equal(t, "1080.00", p.Totals.GrandTotal)
	assert.Equal(t, "100.00", p.Totals.TotalDiscount)

	rec = ts.do(t, http.MethodGet, "/api/v1/proposals/gates?id="+p.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	gates := decodeBody[service.Gates](t, rec)
	assert.True(t, gates.Send.OK)
	assert.True(t, gates.Accept.OK)

	rec = ts.do(t, http.MethodPost, "/api/v1/approvals/start", map[string]any{
		"proposal_id": p.ID, "requested_by": "owner",
		"approvers": []map[string]any{{"user_id": "mgr", "required": true}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wf := decodeBody[approval.Workflow](t, rec)
	assert.Equal(t, approval.StatusPending, wf.Status)

	rec = ts.do(t, http.MethodPost, "/api/v1/proposals/send", map[string]any{"id": p.ID, "actor_id": "owner"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/proposals/accept", map[string]any{"id": p.ID, "actor_id": "owner"})
	require.Equal(t, http.StatusConflict, rec.Code)
	errBody = decodeBody[errorResponse](t, rec)
	assert.Contains(t, errBody.Reasons, proposal.ReasonApprovalNotGranted)

	rec = ts.do(t, http.MethodPost, "/api/v1/approvals/decide", map[string]any{
		"workflow_id": wf.ID, "step_id": wf.Steps[0].ID, "decision": "approve", "actor_id": "intruder",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/approvals/decide", map[string]any{
		"workflow_id": wf.ID, "step_id": wf.Steps[0].ID, "decision": "approve", "actor_id": "mgr",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/proposals/accept", map[string]any{"id": p.ID, "actor_id": "owner"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p = decodeBody[proposalResponse](t, rec)
	assert.Equal(t, "accepted", p.Status)

	rec = ts.do(t, http.MethodGet, "/api/v1/approvals/history?proposal_id="+p.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[struct {
		Entries []repository.AuditEntry `json:"entries"`
	}](t, rec)
	assert.Len(t, history.Entries, 5)
}

func TestItemEditingOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProposal(t)

	for _, name := range []string{"A", "B", "C"} {
		rec := ts.do(t, http.MethodPost, "/api/v1/proposals/items/add", map[string]any{
			"proposal_id": p.ID,
			"item":        map[string]any{"name": name, "quantity": 1, "unit_price": "10"},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		p = decodeBody[proposalResponse](t, rec)
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/proposals/items/remove", map[string]any{
		"proposal_id": p.ID, "item_id": p.Items[0].ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	p = decodeBody[proposalResponse](t, rec)
	require.Len(t, p.Items, 2)
	assert.Equal(t, "B", p.Items[0].Name)
	assert.Equal(t, 1, p.Items[0].Order)
	assert.Equal(t, 2, p.Items[1].Order)

	rec = ts.do(t, http.MethodPost, "/api/v1/proposals/items/update", map[string]any{
		"proposal_id": p.ID, "item_id": p.Items[1].ID,
		"item": map[string]any{"name": "C", "quantity": "abc", "unit_price": "10"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	p = decodeBody[proposalResponse](t, rec)
	assert.Equal(t, "0.00", p.Items[1].TotalPrice, "garbage quantity counts as zero")
	assert.Equal(t, "10.00", p.Totals.GrandTotal)

	rec = ts.do(t, http.MethodPost, "/api/v1/proposals/discount-mode", map[string]any{"proposal_id": p.ID, "mode": "amount"})
	require.Equal(t, http.StatusOK, rec.Code)
	p = decodeBody[proposalResponse](t, rec)
	assert.Equal(t, "amount", p.DiscountMode)

	rec = ts.do(t, http.MethodGet, "/api/v1/proposals/totals?id="+p.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	totals := decodeBody[totalsResponse](t, rec)
	assert.Equal(t, "10.00", totals.GrandTotal)

	rec = ts.do(t, http.MethodPost, "/api/v1/proposals/items/update", map[string]any{
		"proposal_id": p.ID, "item_id": "missing", "item": map[string]any{"name": "x"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndDeleteOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	a := ts.createProposal(t)
	ts.createProposal(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/proposals?entity_id=ent-1&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Proposals []proposalResponse `json:"proposals"`
		Count     int                `json:"count"`
	}](t, rec)
	assert.Equal(t, 1, list.Count)

	rec = ts.do(t, http.MethodGet, "/api/v1/proposals", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/proposals/delete?id="+a.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/proposals/get?id="+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/pricing/preview", map[string]any{
		"discount_mode": "amount",
		"items": []map[string]any{
			{"kind": "subscription", "quantity": "12", "unit_price": "49.99", "discount": "9.88", "setup_fee": "100"},
			{"quantity": "", "unit_price": "oops"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	totals := decodeBody[totalsResponse](t, rec)
	assert.Equal(t, "599.88", totals.Subtotal)
	assert.Equal(t, "9.88", totals.TotalDiscount)
	assert.Equal(t, "100.00", totals.TotalSetupFees)
	assert.Equal(t, "690.00", totals.GrandTotal)
	assert.Equal(t, "690.00", totals.RecurringRevenue)
	require.Len(t, totals.Lines, 2)
	assert.Equal(t, "0.00", totals.Lines[1].TotalPrice)
}

func TestHTTPErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/proposals/send", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/proposals", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/proposals", map[string]any{"title": "no entity"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "INVALID_INPUT", body.Error)
	assert.Equal(t, "entity_id", body.Field)

	rec = ts.do(t, http.MethodGet, "/api/v1/approvals/get", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/approvals/get?proposal_id=none", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/approvals/pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
