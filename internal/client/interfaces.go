package client

import (
	"context"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
)

// CatalogClientInterface defines the interface for the product catalog client
type CatalogClientInterface interface {
	GetProduct(ctx context.Context, entityID, sku string) (*proposal.CatalogEntry, error)
}

// DirectoryClientInterface defines the interface for the user directory client
type DirectoryClientInterface interface {
	ResolveApprovers(ctx context.Context, entityID string, refs []ApproverRef) ([]approval.Approver, error)
}

// EventPublisherInterface defines the interface for proposal event publishing.
// Implementations must never fail the caller.
type EventPublisherInterface interface {
	PublishProposalEvent(ctx context.Context, eventType, proposalID, entityID, actorID string, recipients []string, payload map[string]any)
}
