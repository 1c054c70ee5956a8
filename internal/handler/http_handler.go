package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/logger"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
	"github.com/pesio-ai/be-sales-proposals/internal/repository"
	"github.com/pesio-ai/be-sales-proposals/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	proposals *service.ProposalService
	approvals *service.ApprovalService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(proposals *service.ProposalService, approvals *service.ApprovalService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		proposals: proposals,
		approvals: approvals,
		log:       log,
	}
}

// RegisterRoutes mounts every endpoint on mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/proposals", h.Proposals)
	mux.HandleFunc("/api/v1/proposals/get", h.GetProposal)
	mux.HandleFunc("/api/v1/proposals/items/add", h.AddItem)
	mux.HandleFunc("/api/v1/proposals/items/update", h.UpdateItem)
	mux.HandleFunc("/api/v1/proposals/items/remove", h.RemoveItem)
	mux.HandleFunc("/api/v1/proposals/discount-mode", h.SetDiscountMode)
	mux.HandleFunc("/api/v1/proposals/totals", h.GetTotals)
	mux.HandleFunc("/api/v1/proposals/gates", h.GetGates)
	mux.HandleFunc("/api/v1/proposals/send", h.SendProposal)
	mux.HandleFunc("/api/v1/proposals/accept", h.MarkAccepted)
	mux.HandleFunc("/api/v1/proposals/decline", h.DeclineProposal)
	mux.HandleFunc("/api/v1/proposals/delete", h.DeleteProposal)

	mux.HandleFunc("/api/v1/approvals/start", h.StartWorkflow)
	mux.HandleFunc("/api/v1/approvals/decide", h.Decide)
	mux.HandleFunc("/api/v1/approvals/cancel", h.CancelWorkflow)
	mux.HandleFunc("/api/v1/approvals/get", h.GetWorkflow)
	mux.HandleFunc("/api/v1/approvals/pending", h.GetPendingApprovals)
	mux.HandleFunc("/api/v1/approvals/history", h.GetApprovalHistory)

	mux.HandleFunc("/api/v1/pricing/preview", h.PreviewTotals)

	mux.HandleFunc("/health", h.Health)
}

// ── Proposals ─────────────────────────────────────────────────────────────────

// Proposals creates (POST) or lists (GET) proposals
func (h *HTTPHandler) Proposals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createProposal(w, r)
	case http.MethodGet:
		h.listProposals(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) createProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.proposals.CreateProposal(r.Context(), &service.CreateProposalRequest{
		EntityID:     req.EntityID,
		ClientID:     req.ClientID,
		Title:        req.Title,
		Currency:     req.Currency,
		DiscountMode: req.DiscountMode,
		Notes:        req.Notes,
		CreatedBy:    req.CreatedBy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, newProposalResponse(p))
}

func (h *HTTPHandler) listProposals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityID := q.Get("entity_id")
	if entityID == "" {
		http.Error(w, "Entity ID is required", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	list, err := h.proposals.ListProposals(r.Context(), repository.ProposalFilter{
		EntityID: entityID,
		ClientID: q.Get("client_id"),
		Status:   proposal.Status(q.Get("status")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]proposalResponse, len(list))
	for i, p := range list {
		out[i] = newProposalResponse(p)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"proposals": out,
		"count":     len(out),
		"limit":     limit,
		"offset":    offset,
	})
}

// GetProposal handles get proposal HTTP requests
func (h *HTTPHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id, ok := requireQuery(w, r, "id")
	if !ok {
		return
	}

	p, err := h.proposals.GetProposal(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newProposalResponse(p))
}

// AddItem appends a manual item, or a catalog item when sku is given
func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		p   *proposal.Proposal
		err error
	)
	if req.SKU != "" {
		p, err = h.proposals.AddCatalogItem(r.Context(), req.ProposalID, req.SKU, req.Item.Quantity.Decimal)
	} else {
		p, err = h.proposals.AddItem(r.Context(), req.ProposalID, req.Item.toLineItem())
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, newProposalResponse(p))
}

// UpdateItem handles update item HTTP requests
func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req updateItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.proposals.UpdateItem(r.Context(), req.ProposalID, req.ItemID, req.Item.toLineItem())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newProposalResponse(p))
}

// RemoveItem handles remove item HTTP requests
func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req removeItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.proposals.RemoveItem(r.Context(), req.ProposalID, req.ItemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newProposalResponse(p))
}

// SetDiscountMode handles discount mode switch HTTP requests
func (h *HTTPHandler) SetDiscountMode(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req discountModeRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.proposals.SetDiscountMode(r.Context(), req.ProposalID, req.Mode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newProposalResponse(p))
}

// GetTotals handles get totals HTTP requests
func (h *HTTPHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id, ok := requireQuery(w, r, "id")
	if !ok {
		return
	}

	totals, err := h.proposals.GetTotals(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTotalsResponse(totals))
}

// GetGates handles gate evaluation HTTP requests
func (h *HTTPHandler) GetGates(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id, ok := requireQuery(w, r, "id")
	if !ok {
		return
	}

	gates, err := h.proposals.GetGates(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gates)
}

// SendProposal handles send proposal HTTP requests
func (h *HTTPHandler) SendProposal(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.proposals.SendProposal(r.Context(), req.ID, req.ActorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newProposalResponse(p))
}

// MarkAccepted handles mark accepted HTTP requests
func (h *HTTPHandler) MarkAccepted(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.proposals.MarkAccepted(r.Context(), req.ID, req.ActorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newProposalResponse(p))
}

// DeclineProposal handles decline proposal HTTP requests
func (h *HTTPHandler) DeclineProposal(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.proposals.DeclineProposal(r.Context(), req.ID, req.ActorID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newProposalResponse(p))
}

// DeleteProposal handles delete proposal HTTP requests
func (h *HTTPHandler) DeleteProposal(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodDelete) {
		return
	}
	id, ok := requireQuery(w, r, "id")
	if !ok {
		return
	}

	if err := h.proposals.DeleteProposal(r.Context(), id, r.URL.Query().Get("actor_id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewTotals prices unsaved items for live editing. Bad numbers count as
// zero, so this only fails on a malformed body.
func (h *HTTPHandler) PreviewTotals(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req previewRequest
	if !h.decode(w, r, &req) {
		return
	}

	totals := h.proposals.PreviewTotals(req.DiscountMode, toLineItems(req.Items))
	h.writeJSON(w, http.StatusOK, newTotalsResponse(totals))
}

// ── Approvals ─────────────────────────────────────────────────────────────────

// StartWorkflow handles start approval HTTP requests
func (h *HTTPHandler) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req startWorkflowRequest
	if !h.decode(w, r, &req) {
		return
	}

	wf, err := h.approvals.StartWorkflow(r.Context(), &service.StartWorkflowRequest{
		ProposalID:  req.ProposalID,
		RequestedBy: req.RequestedBy,
		Approvers:   req.Approvers,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, wf)
}

// Decide handles approve/reject/skip HTTP requests
func (h *HTTPHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req decideRequest
	if !h.decode(w, r, &req) {
		return
	}

	wf, err := h.approvals.Decide(r.Context(), &service.DecideRequest{
		WorkflowID: req.WorkflowID,
		StepID:     req.StepID,
		Decision:   req.Decision,
		ActorID:    req.ActorID,
		Comment:    req.Comment,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, wf)
}

// CancelWorkflow handles cancel approval HTTP requests
func (h *HTTPHandler) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req cancelWorkflowRequest
	if !h.decode(w, r, &req) {
		return
	}

	wf, err := h.approvals.CancelWorkflow(r.Context(), req.WorkflowID, req.ActorID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, wf)
}

// GetWorkflow returns a workflow by id, or the latest one of proposal_id
func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	id, proposalID := q.Get("id"), q.Get("proposal_id")

	var (
		wf  *approval.Workflow
		err error
	)
	switch {
	case id != "":
		wf, err = h.approvals.GetWorkflow(r.Context(), id)
	case proposalID != "":
		wf, err = h.approvals.GetProposalWorkflow(r.Context(), proposalID)
	default:
		http.Error(w, "Workflow ID or Proposal ID is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, wf)
}

// GetPendingApprovals lists workflows waiting on approver_id
func (h *HTTPHandler) GetPendingApprovals(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	approverID, ok := requireQuery(w, r, "approver_id")
	if !ok {
		return
	}

	list, err := h.approvals.GetPendingApprovals(r.Context(), approverID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"workflows": list, "count": len(list)})
}

// GetApprovalHistory returns the audit trail of a proposal
func (h *HTTPHandler) GetApprovalHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	proposalID, ok := requireQuery(w, r, "proposal_id")
	if !ok {
		return
	}

	entries, err := h.approvals.GetApprovalHistory(r.Context(), proposalID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// Health handles health check requests
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Field   string            `json:"field,omitempty"`
	Reasons []proposal.Reason `json:"reasons,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	body := errorResponse{
		Error:   string(errors.CodeOf(err)),
		Message: err.Error(),
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body.Field = appErr.Field
	}
	var gateErr *proposal.GateError
	if stderrors.As(err, &gateErr) {
		body.Reasons = gateErr.Reasons
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		body.Message = "internal server error"
	}
	h.writeJSON(w, status, body)
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func requireQuery(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		http.Error(w, key+" is required", http.StatusBadRequest)
		return "", false
	}
	return v, true
}
