package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/service"
)

// PricingServiceServer is the server API for proposals.v1.PricingService.
type PricingServiceServer interface {
	PreviewTotals(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ApprovalServiceServer is the server API for proposals.v1.ApprovalService.
type ApprovalServiceServer interface {
	GetWorkflow(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Messages are google.protobuf.Struct so clients need no generated stubs;
// the field names match the HTTP JSON API.
var (
	PricingServiceDesc = grpc.ServiceDesc{
		ServiceName: "proposals.v1.PricingService",
		HandlerType: (*PricingServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "PreviewTotals", Handler: pricingPreviewTotalsHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "proposals/v1/pricing.proto",
	}

	ApprovalServiceDesc = grpc.ServiceDesc{
		ServiceName: "proposals.v1.ApprovalService",
		HandlerType: (*ApprovalServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetWorkflow", Handler: approvalGetWorkflowHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "proposals/v1/approval.proto",
	}
)

// GRPCHandler implements PricingServiceServer and ApprovalServiceServer
type GRPCHandler struct {
	proposals *service.ProposalService
	approvals *service.ApprovalService
	logger    zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(proposals *service.ProposalService, approvals *service.ApprovalService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		proposals: proposals,
		approvals: approvals,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

// Register adds both services to s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&PricingServiceDesc, h)
	s.RegisterService(&ApprovalServiceDesc, h)
}

// PreviewTotals prices unsaved items.
// Request: {"discount_mode": "...", "items": [{"quantity": ..., ...}]}
func (h *GRPCHandler) PreviewTotals(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in previewRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	h.logger.Debug().
		Int("items", len(in.Items)).
		Str("discount_mode", in.DiscountMode).
		Msg("gRPC PreviewTotals called")

	totals := h.proposals.PreviewTotals(in.DiscountMode, toLineItems(in.Items))
	return toStruct(newTotalsResponse(totals))
}

// GetWorkflow returns a workflow by "id", or the latest one of "proposal_id".
func (h *GRPCHandler) GetWorkflow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	id := fields["id"].GetStringValue()
	proposalID := fields["proposal_id"].GetStringValue()

	h.logger.Info().
		Str("workflow_id", id).
		Str("proposal_id", proposalID).
		Msg("gRPC GetWorkflow called")

	var (
		wf  *approval.Workflow
		err error
	)
	switch {
	case id != "":
		wf, err = h.approvals.GetWorkflow(ctx, id)
	case proposalID != "":
		wf, err = h.approvals.GetProposalWorkflow(ctx, proposalID)
	default:
		return nil, status.Error(codes.InvalidArgument, "id or proposal_id is required")
	}
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(wf)
}

func pricingPreviewTotalsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PricingServiceServer).PreviewTotals(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/proposals.v1.PricingService/PreviewTotals",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PricingServiceServer).PreviewTotals(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func approvalGetWorkflowHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ApprovalServiceServer).GetWorkflow(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/proposals.v1.ApprovalService/GetWorkflow",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ApprovalServiceServer).GetWorkflow(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	raw, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// toStruct encodes v as a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// mapErrorToGRPC maps application error codes to gRPC status codes
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
