// Package httpapi is the JSON transport shared by the Unibro API clients.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"unibro/pkg/apierr"
)

const (
	RequestIDHeader = "X-Request-Id"

	maxBodyBytes = 16 << 20
)

// Client calls the Unibro REST backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient returns an http.Client with a cookie jar for the backend's
// session cookies. A zero timeout means requests are bounded only by ctx.
func NewHTTPClient(timeout time.Duration) *http.Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{Timeout: timeout, Jar: jar}
}

// New constructs a client for baseURL. A nil httpClient gets NewHTTPClient(0).
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// WithLogger returns a copy of c that logs through logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	cp := *c
	if logger != nil {
		cp.logger = logger
	}
	return &cp
}

// BaseURL returns the backend root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// HTTPClient exposes the underlying client for non-JSON transfers.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// envelope is the part of every backend response the transport inspects.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// DoJSON sends payload as JSON and decodes the response into out. Failures are
// always *apierr.Error; fallback is the message used when the backend gave none.
func (c *Client) DoJSON(ctx context.Context, method, path, token string, payload, out any, fallback string) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return apierr.Validation(fmt.Sprintf("encode request: %v", err))
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apierr.Validation(fmt.Sprintf("build request: %v", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	AddAuthHeader(req, token)
	return c.Do(req, out, fallback)
}

// Do sends a prepared request and decodes the JSON response into out.
func (c *Client) Do(req *http.Request, out any, fallback string) error {
	req.Header.Set("Accept", "application/json")
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &apierr.Error{Kind: apierr.KindNetworkFailure, Message: "Request cancelled", Err: err}
		}
		c.logger.Debug("request failed", "method", req.Method, "path", req.URL.Path, "err", err)
		return apierr.Network(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return apierr.Network(err)
	}
	var env envelope
	envErr := json.Unmarshal(raw, &env)
	failed := resp.StatusCode >= 400 || (envErr == nil && env.Success != nil && !*env.Success)
	if failed {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		c.logger.Debug("request rejected",
			"method", req.Method,
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"request_id", req.Header.Get(RequestIDHeader),
		)
		return apierr.Remote(resp.StatusCode, msg, env.Code, fallback)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		e := apierr.Remote(resp.StatusCode, "", "", fallback)
		e.Err = fmt.Errorf("decode response: %w", err)
		return e
	}
	return nil
}

// AddAuthHeader sets a bearer token when one is present.
func AddAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}
