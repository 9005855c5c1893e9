// Package staffclient calls the faculty directory at /api/staff.
package staffclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"
	"unibro/pkg/apierr"
	"unibro/pkg/domain"
	"unibro/pkg/httpapi"
	"unibro/pkg/validate"
)

const adminRequired = "Admin authentication required"

// TokenSource yields the current bearer token, or "" when logged out.
type TokenSource interface {
	StoredToken(ctx context.Context) string
}

type Client struct {
	api    *httpapi.Client
	tokens TokenSource
}

func NewClient(api *httpapi.Client, tokens TokenSource) *Client {
	return &Client{api: api, tokens: tokens}
}

type listQuery struct {
	Department string `url:"department,omitempty"`
}

type listResponse struct {
	Success bool           `json:"success"`
	Data    []domain.Staff `json:"data"`
	Staff   []domain.Staff `json:"staff"`
}

type staffResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *domain.Staff `json:"data"`
	Staff   *domain.Staff `json:"staff"`
}

func (r staffResponse) member() (domain.Staff, bool) {
	switch {
	case r.Data != nil:
		return *r.Data, true
	case r.Staff != nil:
		return *r.Staff, true
	}
	return domain.Staff{}, false
}

func staffPath(id domain.ID) string {
	return "/api/staff/" + url.PathEscape(id.String())
}

// List returns the directory, optionally for one department.
func (c *Client) List(ctx context.Context, department string) ([]domain.Staff, error) {
	v, err := query.Values(listQuery{Department: strings.TrimSpace(department)})
	if err != nil {
		return nil, fmt.Errorf("encode staff query: %w", err)
	}
	path := "/api/staff"
	if q := v.Encode(); q != "" {
		path += "?" + q
	}
	var resp listResponse
	if err := c.api.DoJSON(ctx, http.MethodGet, path, "", nil, &resp, "Failed to load staff directory"); err != nil {
		return nil, err
	}
	if resp.Data != nil {
		return resp.Data, nil
	}
	return resp.Staff, nil
}

// Get loads one staff member.
func (c *Client) Get(ctx context.Context, id domain.ID) (domain.Staff, error) {
	if id == "" {
		return domain.Staff{}, apierr.Validation("Staff id is required")
	}
	var resp staffResponse
	if err := c.api.DoJSON(ctx, http.MethodGet, staffPath(id), "", nil, &resp, "Failed to load staff member"); err != nil {
		return domain.Staff{}, err
	}
	s, ok := resp.member()
	if !ok {
		return domain.Staff{}, apierr.Remote(http.StatusNotFound, resp.Message, "", "Staff member not found")
	}
	return s, nil
}

// Input is the editable staff record.
type Input struct {
	Name         string `json:"name" label:"Name" validate:"required"`
	Designation  string `json:"designation" label:"Designation" validate:"required"`
	Department   string `json:"department" label:"Department" validate:"required"`
	Email        string `json:"email" label:"Email" validate:"required,email"`
	Phone        string `json:"phone,omitempty"`
	Office       string `json:"office,omitempty"`
	ProfileImage string `json:"profileImage,omitempty" label:"Profile image" validate:"omitempty,url"`
	Bio          string `json:"bio,omitempty"`
}

// Create adds a staff member. Admin only.
func (c *Client) Create(ctx context.Context, in Input) (domain.Staff, error) {
	return c.save(ctx, http.MethodPost, "/api/staff", in, "Failed to add staff member")
}

// Update replaces a staff member's record. Admin only.
func (c *Client) Update(ctx context.Context, id domain.ID, in Input) (domain.Staff, error) {
	if id == "" {
		return domain.Staff{}, apierr.Validation("Staff id is required")
	}
	s, err := c.save(ctx, http.MethodPut, staffPath(id), in, "Failed to update staff member")
	if err == nil && s.ID == "" {
		s.ID = id
	}
	return s, err
}

func (c *Client) save(ctx context.Context, method, path string, in Input, fallback string) (domain.Staff, error) {
	token := c.tokens.StoredToken(ctx)
	if token == "" {
		return domain.Staff{}, apierr.AuthRequired(adminRequired)
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(in); err != nil {
		return domain.Staff{}, err
	}
	var resp staffResponse
	if err := c.api.DoJSON(ctx, method, path, token, in, &resp, fallback); err != nil {
		return domain.Staff{}, err
	}
	if s, ok := resp.member(); ok {
		return s, nil
	}
	return domain.Staff{
		Name:         in.Name,
		Designation:  in.Designation,
		Department:   in.Department,
		Email:        in.Email,
		Phone:        in.Phone,
		Office:       in.Office,
		ProfileImage: in.ProfileImage,
		Bio:          in.Bio,
	}, nil
}

// Delete removes a staff member. Admin only.
func (c *Client) Delete(ctx context.Context, id domain.ID) error {
	token := c.tokens.StoredToken(ctx)
	if token == "" {
		return apierr.AuthRequired(adminRequired)
	}
	return c.api.DoJSON(ctx, http.MethodDelete, staffPath(id), token, nil, nil, "Failed to delete staff member")
}
