// Package authclient is the session API client: it talks to /api/auth and
// keeps the session store in step with the backend.
package authclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"
	"unibro/pkg/apierr"
	"unibro/pkg/domain"
	"unibro/pkg/httpapi"
	"unibro/pkg/session"
	"unibro/pkg/validate"
)

// Client calls the auth endpoints and writes results into the session store.
type Client struct {
	api     *httpapi.Client
	session *session.Store
	logger  *slog.Logger

	refresh singleflight.Group
}

// NewClient constructs an auth client over api.
func NewClient(api *httpapi.Client, sess *session.Store) *Client {
	return &Client{api: api, session: sess, logger: api.Logger()}
}

type authResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	FullName string `json:"fullName" label:"Full name" validate:"required"`
	Email    string `json:"email" label:"Email" validate:"required,email"`
	Password string `json:"password" label:"Password" validate:"required,password"`
}

// Register creates an account and stores the returned session.
func (c *Client) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(in); err != nil {
		return domain.User{}, err
	}
	return c.authenticate(ctx, "/api/auth/register", in, "Registration failed")
}

// LoginInput is the login form.
type LoginInput struct {
	Email      string `json:"email" label:"Email" validate:"required,email"`
	Password   string `json:"password" label:"Password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

// Login authenticates and stores the returned session.
func (c *Client) Login(ctx context.Context, in LoginInput) (domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(in); err != nil {
		return domain.User{}, err
	}
	return c.authenticate(ctx, "/api/auth/login", in, "Login failed")
}

func (c *Client) authenticate(ctx context.Context, path string, payload any, fallback string) (domain.User, error) {
	var resp authResponse
	if err := c.api.DoJSON(ctx, http.MethodPost, path, "", payload, &resp, fallback); err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(resp.Token) == "" && strings.TrimSpace(resp.User.Token) == "" {
		return domain.User{}, apierr.Remote(http.StatusOK, resp.Message, "", fallback)
	}
	return c.session.StoreAuthData(ctx, session.LoginResponse(resp.Token, resp.User))
}

// Logout tells the backend best-effort and always clears the local session.
// It never fails because of the network; calling it twice is harmless.
func (c *Client) Logout(ctx context.Context) error {
	if token := c.session.StoredToken(ctx); token != "" {
		if err := c.api.DoJSON(ctx, http.MethodPost, "/api/auth/logout", token, nil, nil, "Logout failed"); err != nil {
			c.logger.Warn("remote logout failed, clearing local session anyway", "err", err)
		}
	}
	if err := c.session.ClearAuthData(ctx); err != nil {
		c.logger.Warn("clear local session failed", "err", err)
	}
	return nil
}

type forgotInput struct {
	Email string `json:"email" label:"Email" validate:"required,email"`
}

// ForgotPassword asks the backend to e-mail a reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	in := forgotInput{Email: strings.TrimSpace(email)}
	if err := validate.Struct(in); err != nil {
		return "", err
	}
	var resp messageResponse
	if err := c.api.DoJSON(ctx, http.MethodPost, "/api/auth/forgot-password", "", in, &resp, "Failed to send reset email"); err != nil {
		return "", err
	}
	return resp.Message, nil
}

type resetInput struct {
	NewPassword string `json:"newPassword" label:"Password" validate:"required,password"`
}

// ResetPassword sets a new password using the token from the reset link.
func (c *Client) ResetPassword(ctx context.Context, resetToken, newPassword string) (string, error) {
	resetToken = strings.TrimSpace(resetToken)
	if resetToken == "" {
		return "", apierr.Validation("Reset token is missing")
	}
	in := resetInput{NewPassword: newPassword}
	if err := validate.Struct(in); err != nil {
		return "", err
	}
	var resp messageResponse
	path := "/api/auth/reset-password/" + url.PathEscape(resetToken)
	if err := c.api.DoJSON(ctx, http.MethodPut, path, "", in, &resp, "Password reset failed"); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ResendVerificationEmail requests a new verification link for the logged-in user.
func (c *Client) ResendVerificationEmail(ctx context.Context) (string, error) {
	token := c.session.StoredToken(ctx)
	if token == "" {
		return "", apierr.AuthRequired("Please login to resend the verification email")
	}
	var resp messageResponse
	if err := c.api.DoJSON(ctx, http.MethodPost, "/api/auth/resend-verification", token, nil, &resp, "Failed to resend verification email"); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// VerifyEmail confirms an address from the link token. When a session is
// stored it is marked verified. Expired links satisfy apierr.IsExpired.
func (c *Client) VerifyEmail(ctx context.Context, verifyToken string) (string, error) {
	verifyToken = strings.TrimSpace(verifyToken)
	if verifyToken == "" {
		return "", apierr.Validation("Verification token is missing")
	}
	var resp messageResponse
	path := "/api/auth/verify-email/" + url.PathEscape(verifyToken)
	if err := c.api.DoJSON(ctx, http.MethodGet, path, "", nil, &resp, "Email verification failed"); err != nil {
		return "", err
	}
	verified := true
	if _, err := c.session.UpdateStoredUser(ctx, session.UserPatch{IsVerified: &verified}); err != nil {
		c.logger.Warn("mark stored user verified failed", "err", err)
	}
	return resp.Message, nil
}

type meResponse struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user"`
	Data    *domain.User `json:"data"`
}

func (r meResponse) profile() (domain.User, bool) {
	switch {
	case r.User != nil:
		return *r.User, true
	case r.Data != nil:
		return *r.Data, true
	}
	return domain.User{}, false
}

func (c *Client) me(ctx context.Context, token string) (domain.User, error) {
	var resp meResponse
	if err := c.api.DoJSON(ctx, http.MethodGet, "/api/auth/me", token, nil, &resp, "Failed to load profile"); err != nil {
		return domain.User{}, err
	}
	u, ok := resp.profile()
	if !ok {
		return domain.User{}, apierr.Remote(http.StatusOK, "", "", "Failed to load profile")
	}
	return u, nil
}

// Me fetches the current user's profile.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	token := c.session.StoredToken(ctx)
	if token == "" {
		return domain.User{}, apierr.AuthRequired("Please login to view your profile")
	}
	return c.me(ctx, token)
}

// CompleteOAuthCallback finishes a Google sign-in: it loads the profile with
// the token from the callback URL and stores the session.
func (c *Client) CompleteOAuthCallback(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, apierr.Validation("Authentication failed: no token received")
	}
	u, err := c.me(ctx, token)
	if err != nil {
		return domain.User{}, err
	}
	return c.session.StoreAuthData(ctx, session.LoginResponse(token, u))
}

// GoogleAuthURL is where the browser starts the Google OAuth redirect.
func (c *Client) GoogleAuthURL() string {
	return c.api.BaseURL() + "/api/auth/google"
}

// RefreshProfile re-reads the profile and merges it into the stored user.
// Failures are logged and reported in the result only. Concurrent calls
// share one request.
func (c *Client) RefreshProfile(ctx context.Context) apierr.Result[*domain.User] {
	v, err, _ := c.refresh.Do("me", func() (any, error) {
		u, err := c.Me(ctx)
		if err != nil {
			return nil, err
		}
		return c.session.UpdateStoredUser(ctx, session.UserPatch{
			FullName:   &u.FullName,
			Email:      &u.Email,
			Role:       &u.Role,
			IsVerified: &u.IsVerified,
		})
	})
	if err != nil {
		c.logger.Warn("profile refresh failed", "err", err)
		return apierr.Fail[*domain.User](err)
	}
	u, _ := v.(*domain.User)
	return apierr.Ok(u)
}

// ProfileInput is the editable part of a profile.
type ProfileInput struct {
	FullName string `json:"fullName" label:"Full name" validate:"required"`
}

// UpdateProfile saves profile changes and merges them into the stored user.
func (c *Client) UpdateProfile(ctx context.Context, in ProfileInput) (domain.User, error) {
	token := c.session.StoredToken(ctx)
	if token == "" {
		return domain.User{}, apierr.AuthRequired("Please login to update your profile")
	}
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validate.Struct(in); err != nil {
		return domain.User{}, err
	}
	var resp meResponse
	if err := c.api.DoJSON(ctx, http.MethodPut, "/api/auth/profile", token, in, &resp, "Failed to update profile"); err != nil {
		return domain.User{}, err
	}
	patch := session.UserPatch{FullName: &in.FullName}
	if u, ok := resp.profile(); ok {
		patch = session.UserPatch{FullName: &u.FullName, Email: &u.Email, IsVerified: &u.IsVerified}
	}
	merged, err := c.session.UpdateStoredUser(ctx, patch)
	if err != nil {
		return domain.User{}, err
	}
	if merged == nil {
		return domain.User{}, apierr.AuthRequired("Please login to update your profile")
	}
	return *merged, nil
}

type changePasswordInput struct {
	CurrentPassword string `json:"currentPassword" label:"Current password" validate:"required"`
	NewPassword     string `json:"newPassword" label:"New password" validate:"required,password"`
}

// ChangePassword updates the password. A token returned by the backend
// replaces the stored one.
func (c *Client) ChangePassword(ctx context.Context, current, next string) (string, error) {
	token := c.session.StoredToken(ctx)
	if token == "" {
		return "", apierr.AuthRequired("Please login to change your password")
	}
	in := changePasswordInput{CurrentPassword: current, NewPassword: next}
	if err := validate.Struct(in); err != nil {
		return "", err
	}
	if current == next {
		return "", apierr.Validation("New password must differ from the current password")
	}
	var resp struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	if err := c.api.DoJSON(ctx, http.MethodPut, "/api/auth/change-password", token, in, &resp, "Failed to change password"); err != nil {
		return "", err
	}
	if t := strings.TrimSpace(resp.Token); t != "" {
		if _, err := c.session.UpdateStoredUser(ctx, session.UserPatch{Token: &t}); err != nil {
			c.logger.Warn("store rotated token failed", "err", err)
		}
	}
	return resp.Message, nil
}
