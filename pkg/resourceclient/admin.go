package resourceclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"unibro/pkg/apierr"
	"unibro/pkg/domain"
)

type flatResponse struct {
	Success bool        `json:"success"`
	Data    listPayload `json:"data"`
}

// ListPending returns the moderation queue.
func (c *Client) ListPending(ctx context.Context) ([]domain.Resource, error) {
	token, err := c.token(ctx, adminRequired)
	if err != nil {
		return nil, err
	}
	var resp flatResponse
	if err := c.api.DoJSON(ctx, http.MethodGet, "/api/resources/pending", token, nil, &resp, "Failed to load pending resources"); err != nil {
		return nil, err
	}
	return resp.Data.resources(), nil
}

// Approve moves a pending resource to approved.
func (c *Client) Approve(ctx context.Context, id domain.ID) (domain.Resource, error) {
	token, err := c.token(ctx, adminRequired)
	if err != nil {
		return domain.Resource{}, err
	}
	var resp resourceResponse
	if err := c.api.DoJSON(ctx, http.MethodPut, resourcePath(id, "approve"), token, nil, &resp, "Failed to approve resource"); err != nil {
		return domain.Resource{}, err
	}
	r, ok := resp.resource()
	if !ok {
		r = domain.Resource{ID: id}
	}
	r.Status = domain.StatusApproved
	return r, nil
}

type rejectInput struct {
	Reason string `json:"reason"`
}

// Reject moves a pending resource to rejected. The reason is mandatory and is
// always present on the returned resource.
func (c *Client) Reject(ctx context.Context, id domain.ID, reason string) (domain.Resource, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Resource{}, apierr.Validation("Please provide a reason for rejection")
	}
	token, err := c.token(ctx, adminRequired)
	if err != nil {
		return domain.Resource{}, err
	}
	var resp resourceResponse
	if err := c.api.DoJSON(ctx, http.MethodPut, resourcePath(id, "reject"), token, rejectInput{Reason: reason}, &resp, "Failed to reject resource"); err != nil {
		return domain.Resource{}, err
	}
	r, ok := resp.resource()
	if !ok {
		r = domain.Resource{ID: id}
	}
	r.Status = domain.StatusRejected
	if strings.TrimSpace(r.RejectionReason) == "" {
		r.RejectionReason = reason
	}
	return r, nil
}

// Dashboard is the admin overview: stat-card counts and the filtered list.
type Dashboard struct {
	Stats     domain.ModerationStats
	Resources []domain.Resource
}

// ListAll returns every resource, optionally narrowed to one status, with
// aggregate counts. Counts are derived from the list when the backend omits them.
func (c *Client) ListAll(ctx context.Context, status domain.Status) (Dashboard, error) {
	token, err := c.token(ctx, adminRequired)
	if err != nil {
		return Dashboard{}, err
	}
	path := "/api/resources/admin/all"
	if status != "" {
		path += "?" + url.Values{"status": {string(status)}}.Encode()
	}
	var resp struct {
		Success bool                    `json:"success"`
		Data    listPayload             `json:"data"`
		Stats   *domain.ModerationStats `json:"stats"`
	}
	if err := c.api.DoJSON(ctx, http.MethodGet, path, token, nil, &resp, "Failed to load resources"); err != nil {
		return Dashboard{}, err
	}
	items := resp.Data.resources()
	if resp.Stats != nil {
		return Dashboard{Stats: *resp.Stats, Resources: items}, nil
	}
	g := domain.GroupByStatus(items)
	return Dashboard{
		Stats: domain.ModerationStats{
			Total:    len(items),
			Pending:  len(g.Pending),
			Approved: len(g.Approved),
			Rejected: len(g.Rejected),
		},
		Resources: items,
	}, nil
}
