// Package resourceclient calls /api/resources: uploads, listings, counters and
// the admin moderation queue.
package resourceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/go-querystring/query"
	"unibro/pkg/apierr"
	"unibro/pkg/domain"
	"unibro/pkg/httpapi"
)

const (
	loginRequired = "Please login to manage your resources"
	uploadLogin   = "Please login to upload resources"
	adminRequired = "Admin authentication required"
)

// TokenSource yields the current bearer token, or "" when logged out.
type TokenSource interface {
	StoredToken(ctx context.Context) string
}

// Client is the resource API client.
type Client struct {
	api    *httpapi.Client
	tokens TokenSource
	logger *slog.Logger
}

func NewClient(api *httpapi.Client, tokens TokenSource) *Client {
	return &Client{api: api, tokens: tokens, logger: api.Logger()}
}

func (c *Client) token(ctx context.Context, msg string) (string, error) {
	token := c.tokens.StoredToken(ctx)
	if token == "" {
		return "", apierr.AuthRequired(msg)
	}
	return token, nil
}

func resourcePath(id domain.ID, action string) string {
	p := "/api/resources/" + url.PathEscape(id.String())
	if action != "" {
		p += "/" + action
	}
	return p
}

// CreateInput is the metadata of an uploaded file, posted after the blob is stored.
type CreateInput struct {
	Title        string              `json:"title"`
	CourseName   string              `json:"courseName"`
	Description  string              `json:"description,omitempty"`
	ResourceType domain.ResourceType `json:"resourceType"`
	Department   string              `json:"department"`
	Semester     string              `json:"semester"`
	Section      string              `json:"section,omitempty"`
	Batch        string              `json:"batch,omitempty"`
	Year         string              `json:"year"`
	FileURL      string              `json:"fileUrl"`
	FileName     string              `json:"fileName"`
	FileSize     string              `json:"fileSize"`
	FileType     string              `json:"fileType"`
	ThumbnailURL string              `json:"thumbnailUrl,omitempty"`
	Pages        int                 `json:"pages,omitempty"`
	StoragePath  string              `json:"storagePath,omitempty"`
}

type resourceResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Data     *domain.Resource `json:"data"`
	Resource *domain.Resource `json:"resource"`
}

func (r resourceResponse) resource() (domain.Resource, bool) {
	switch {
	case r.Data != nil:
		return *r.Data, true
	case r.Resource != nil:
		return *r.Resource, true
	}
	return domain.Resource{}, false
}

// Upload creates a resource record. The backend files it as pending.
func (c *Client) Upload(ctx context.Context, in CreateInput) (domain.Resource, error) {
	token, err := c.token(ctx, uploadLogin)
	if err != nil {
		return domain.Resource{}, err
	}
	var resp resourceResponse
	if err := c.api.DoJSON(ctx, http.MethodPost, "/api/resources/upload", token, in, &resp, "Failed to upload resource"); err != nil {
		return domain.Resource{}, err
	}
	r, ok := resp.resource()
	if !ok {
		return domain.Resource{}, apierr.Remote(http.StatusOK, resp.Message, "", "Failed to upload resource")
	}
	if r.Status == "" {
		r.Status = domain.StatusPending
	}
	return r, nil
}

// Get loads one resource.
func (c *Client) Get(ctx context.Context, id domain.ID) (domain.Resource, error) {
	if id == "" {
		return domain.Resource{}, apierr.Validation("Resource id is required")
	}
	var resp resourceResponse
	if err := c.api.DoJSON(ctx, http.MethodGet, resourcePath(id, ""), c.tokens.StoredToken(ctx), nil, &resp, "Failed to load resource"); err != nil {
		return domain.Resource{}, err
	}
	r, ok := resp.resource()
	if !ok {
		return domain.Resource{}, apierr.Remote(http.StatusNotFound, resp.Message, "", "Resource not found")
	}
	return r, nil
}

// Filters narrows the public listing. Empty fields are omitted.
type Filters struct {
	ResourceType domain.ResourceType `url:"resourceType,omitempty"`
	Department   string              `url:"department,omitempty"`
	Search       string              `url:"search,omitempty"`
	Year         string              `url:"year,omitempty"`
}

// listPayload accepts either a flat list or a year-keyed map.
type listPayload struct {
	flat    []domain.Resource
	grouped map[string][]domain.Resource
}

func (p *listPayload) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil
	case trimmed[0] == '[':
		return json.Unmarshal(data, &p.flat)
	default:
		return json.Unmarshal(data, &p.grouped)
	}
}

// resources flattens the payload. Year-keyed groups come out newest year
// first so the order does not depend on map iteration.
func (p listPayload) resources() []domain.Resource {
	out := append([]domain.Resource(nil), p.flat...)
	years := make([]string, 0, len(p.grouped))
	for year := range p.grouped {
		years = append(years, year)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(years)))
	for _, year := range years {
		out = append(out, p.grouped[year]...)
	}
	return out
}

type listResponse struct {
	Success bool        `json:"success"`
	Data    listPayload `json:"data"`
}

// List returns approved resources grouped by year, newest first.
func (c *Client) List(ctx context.Context, f Filters) ([]domain.YearGroup, error) {
	v, err := query.Values(f)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}
	path := "/api/resources"
	if q := v.Encode(); q != "" {
		path += "?" + q
	}
	var resp listResponse
	if err := c.api.DoJSON(ctx, http.MethodGet, path, "", nil, &resp, "Failed to load resources"); err != nil {
		return nil, err
	}
	approved := make([]domain.Resource, 0)
	for _, r := range resp.Data.resources() {
		if r.Status == "" || r.Status == domain.StatusApproved {
			approved = append(approved, r)
		}
	}
	return domain.GroupByYear(approved), nil
}

// minePayload accepts either a flat list or a status-keyed object.
type minePayload struct {
	groups domain.StatusGroups
}

func (p *minePayload) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil
	case trimmed[0] == '[':
		var flat []domain.Resource
		if err := json.Unmarshal(data, &flat); err != nil {
			return err
		}
		p.groups = domain.GroupByStatus(flat)
		return nil
	default:
		return json.Unmarshal(data, &p.groups)
	}
}

// ListMine returns the caller's uploads grouped by status.
func (c *Client) ListMine(ctx context.Context) (domain.StatusGroups, error) {
	token, err := c.token(ctx, loginRequired)
	if err != nil {
		return domain.StatusGroups{}, err
	}
	var resp struct {
		Success bool        `json:"success"`
		Data    minePayload `json:"data"`
	}
	if err := c.api.DoJSON(ctx, http.MethodGet, "/api/resources/my-posts", token, nil, &resp, "Failed to load your resources"); err != nil {
		return domain.StatusGroups{}, err
	}
	return resp.Data.groups, nil
}

// Delete removes a resource. Confirmation is the caller's job.
func (c *Client) Delete(ctx context.Context, id domain.ID) error {
	token, err := c.token(ctx, loginRequired)
	if err != nil {
		return err
	}
	return c.api.DoJSON(ctx, http.MethodDelete, resourcePath(id, ""), token, nil, nil, "Failed to delete resource")
}

// Counts are the advisory counters after a bump.
type Counts struct {
	DownloadCount int `json:"downloadCount"`
	ViewCount     int `json:"viewCount"`
}

// IncrementDownload bumps the download counter. Failures are logged and
// reported in the result only.
func (c *Client) IncrementDownload(ctx context.Context, id domain.ID) apierr.Result[Counts] {
	return c.bump(ctx, id, "download")
}

// IncrementView bumps the view counter. Failures are logged and reported in
// the result only.
func (c *Client) IncrementView(ctx context.Context, id domain.ID) apierr.Result[Counts] {
	return c.bump(ctx, id, "view")
}

func (c *Client) bump(ctx context.Context, id domain.ID, counter string) apierr.Result[Counts] {
	var resp struct {
		Success bool    `json:"success"`
		Data    *Counts `json:"data"`
		Counts
	}
	err := c.api.DoJSON(ctx, http.MethodPut, resourcePath(id, counter), "", nil, &resp, "Failed to update "+counter+" count")
	if err != nil {
		c.logger.Warn("counter bump failed", "counter", counter, "resource_id", id.String(), "err", err)
		return apierr.Fail[Counts](err)
	}
	if resp.Data != nil {
		return apierr.Ok(*resp.Data)
	}
	return apierr.Ok(resp.Counts)
}
