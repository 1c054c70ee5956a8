package client

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
)

// DirectoryClient resolves approver identities against the user directory.
type DirectoryClient struct {
	client *resty.Client
}

// NewDirectoryClient creates a new directory service client
func NewDirectoryClient(baseURL string, timeout time.Duration) *DirectoryClient {
	return &DirectoryClient{client: newRestClient(baseURL, timeout)}
}

// ResolveApprovers looks up every referenced user in one call and returns
// approvers in the order given. Unknown or inactive users are rejected.
func (c *DirectoryClient) ResolveApprovers(ctx context.Context, entityID string, refs []ApproverRef) ([]approval.Approver, error) {
	if len(refs) == 0 {
		return nil, errors.InvalidInput("approvers", "at least one approver is required")
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.UserID
	}

	var out BatchUsersResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(BatchUsersRequest{EntityID: entityID, IDs: ids}).
		SetResult(&out).
		SetError(&ErrorResponse{}).
		Post("/api/v1/users/batch")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve approvers")
	}
	if resp.IsError() {
		return nil, upstreamError("directory", resp)
	}

	users := make(map[string]DirectoryUser, len(out.Users))
	for _, u := range out.Users {
		users[u.ID] = u
	}

	approvers := make([]approval.Approver, 0, len(refs))
	var missing []string
	for _, ref := range refs {
		u, ok := users[ref.UserID]
		if !ok || !u.IsActive {
			missing = append(missing, ref.UserID)
			continue
		}
		approvers = append(approvers, approval.Approver{
			ID:       u.ID,
			Name:     u.Name,
			Email:    u.Email,
			Required: ref.Required,
		})
	}
	if len(missing) > 0 {
		return nil, errors.InvalidInput("approvers", "unknown or inactive users: "+strings.Join(missing, ", "))
	}
	return approvers, nil
}

// PassthroughDirectory accepts approver refs as-is without a directory
// lookup. It backs local runs where no directory service is configured.
type PassthroughDirectory struct{}

// ResolveApprovers returns one approver per ref, carrying only its ID.
func (PassthroughDirectory) ResolveApprovers(_ context.Context, _ string, refs []ApproverRef) ([]approval.Approver, error) {
	if len(refs) == 0 {
		return nil, errors.InvalidInput("approvers", "at least one approver is required")
	}
	out := make([]approval.Approver, len(refs))
	for i, ref := range refs {
		out[i] = approval.Approver{ID: ref.UserID, Name: ref.UserID, Required: ref.Required}
	}
	return out, nil
}
