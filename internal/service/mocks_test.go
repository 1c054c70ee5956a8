package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/client"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetProduct(ctx context.Context, entityID, sku string) (*proposal.CatalogEntry, error) {
	args := m.Called(ctx, entityID, sku)
	entry, _ := args.Get(0).(*proposal.CatalogEntry)
	return entry, args.Error(1)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ResolveApprovers(ctx context.Context, entityID string, refs []client.ApproverRef) ([]approval.Approver, error) {
	args := m.Called(ctx, entityID, refs)
	approvers, _ := args.Get(0).([]approval.Approver)
	return approvers, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishProposalEvent(ctx context.Context, eventType, proposalID, entityID, actorID string, recipients []string, payload map[string]any) {
	m.Called(ctx, eventType, proposalID, entityID, actorID, recipients, payload)
}

// eventTypes lists the event types published so far, in order.
func (m *mockPublisher) eventTypes() []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method == "PublishProposalEvent" {
			out = append(out, c.Arguments.String(1))
		}
	}
	return out
}
