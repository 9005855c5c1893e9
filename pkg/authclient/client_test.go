package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"unibro/pkg/apierr"
	"unibro/pkg/domain"
	"unibro/pkg/httpapi"
	"unibro/pkg/kv"
	"unibro/pkg/notify"
	"unibro/pkg/session"
)

type backend struct {
	mu    sync.Mutex
	calls map[string]int
	srv   *httptest.Server
}

func newBackend(t *testing.T, handler http.HandlerFunc) *backend {
	t.Helper()
	b := &backend{calls: make(map[string]int)}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[r.Method+" "+r.URL.Path]++
		b.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

func (b *backend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newClient(baseURL string) (*Client, *session.Store, *notify.Notifier) {
	n := notify.New(notify.Config{})
	sess := session.New(session.Config{KV: kv.NewMemoryStore(), Publisher: n})
	n.Subscribe(sess.Handle)
	return NewClient(httpapi.New(baseURL, nil), sess), sess, n
}

func TestRegisterStoresSession(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var in RegisterInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.FullName != "Ada" || in.Email != "ada@x.com" || in.Password != "Aa1!aaaa" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "bad payload"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"token":   "t1",
			"user":    map[string]any{"id": 1, "fullName": "Ada", "email": "ada@x.com", "role": "student"},
		})
	})
	c, sess, n := newClient(b.srv.URL)
	var events []notify.Event
	n.Subscribe(func(ev notify.Event) { events = append(events, ev) })

	ctx := context.Background()
	user, err := c.Register(ctx, RegisterInput{FullName: "Ada", Email: "ada@x.com", Password: "Aa1!aaaa"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID != "1" {
		t.Fatalf("unexpected user: %+v", user)
	}
	stored := sess.StoredUser(ctx)
	if stored == nil || stored.Token != "t1" {
		t.Fatalf("expected stored token t1, got %+v", stored)
	}
	if !sess.IsAuthenticated(ctx) {
		t.Fatalf("expected authenticated session")
	}
	if len(events) != 1 || events[0].Kind != notify.KindLogin || events[0].User.Email != "ada@x.com" {
		t.Fatalf("expected one login event with payload, got %+v", events)
	}
}

func TestRegisterValidatesLocally(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	c, _, _ := newClient(b.srv.URL)
	_, err := c.Register(context.Background(), RegisterInput{FullName: "Ada", Email: "ada@x.com", Password: "weak"})
	if !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if b.total() != 0 {
		t.Fatalf("validation failures must not reach the network")
	}
}

func TestLoginRejectionPropagatesMessage(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid email or password"})
	})
	c, sess, _ := newClient(b.srv.URL)
	ctx := context.Background()
	_, err := c.Login(ctx, LoginInput{Email: "ada@x.com", Password: "wrong"})
	if !errors.Is(err, apierr.ErrRemoteRejection) || err.Error() != "Invalid email or password" {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.IsAuthenticated(ctx) {
		t.Fatalf("failed login must not store a session")
	}
}

func TestLoginFallbackMessage(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c, _, _ := newClient(b.srv.URL)
	_, err := c.Login(context.Background(), LoginInput{Email: "ada@x.com", Password: "x"})
	if err == nil || err.Error() != "Login failed" {
		t.Fatalf("expected generic fallback, got %v", err)
	}
}

func TestLogoutIsIdempotentWhenNetworkFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := srv.URL
	srv.Close()

	c, sess, _ := newClient(deadURL)
	ctx := context.Background()
	if _, err := sess.StoreAuthData(ctx, session.LoginResponse("t1", domain.User{ID: "1"})); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Logout(ctx); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
		if sess.StoredUser(ctx) != nil || sess.StoredToken(ctx) != "" {
			t.Fatalf("logout %d left session behind", i)
		}
	}
}

func TestLogoutSendsBearerToken(t *testing.T) {
	var auth atomic.Value
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	c, sess, _ := newClient(b.srv.URL)
	ctx := context.Background()
	_, _ = sess.StoreAuthData(ctx, session.LoginResponse("t1", domain.User{ID: "1"}))
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if got, _ := auth.Load().(string); got != "Bearer t1" {
		t.Fatalf("expected bearer header, got %q", got)
	}
	if b.count("POST /api/auth/logout") != 1 {
		t.Fatalf("expected one logout call")
	}
}

func TestResendVerificationRequiresToken(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "sent"})
	})
	c, sess, _ := newClient(b.srv.URL)
	ctx := context.Background()
	if _, err := c.ResendVerificationEmail(ctx); !errors.Is(err, apierr.ErrAuthRequired) {
		t.Fatalf("expected auth required, got %v", err)
	}
	if b.total() != 0 {
		t.Fatalf("expected no network call without a token")
	}
	_, _ = sess.StoreAuthData(ctx, session.LoginResponse("t1", domain.User{ID: "1"}))
	msg, err := c.ResendVerificationEmail(ctx)
	if err != nil || msg != "sent" {
		t.Fatalf("resend: %q %v", msg, err)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/auth/forgot-password":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Reset link sent"})
		case r.Method == http.MethodPut && r.URL.Path == "/api/auth/reset-password/abc":
			if r.Header.Get("Authorization") != "" {
				t.Errorf("reset must not send a bearer token")
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated"})
		default:
			http.NotFound(w, r)
		}
	})
	c, _, _ := newClient(b.srv.URL)
	ctx := context.Background()
	if msg, err := c.ForgotPassword(ctx, "ada@x.com"); err != nil || msg != "Reset link sent" {
		t.Fatalf("forgot: %q %v", msg, err)
	}
	if msg, err := c.ResetPassword(ctx, "abc", "Bb2@bbbb"); err != nil || msg != "Password updated" {
		t.Fatalf("reset: %q %v", msg, err)
	}
	if _, err := c.ResetPassword(ctx, "abc", "short"); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
}

func TestCompleteOAuthCallback(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/me" || r.Header.Get("Authorization") != "Bearer g1" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authorized"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"user":    map[string]any{"id": "abc", "fullName": "Grace", "email": "grace@x.com", "role": "admin", "isVerified": true},
		})
	})
	c, sess, _ := newClient(b.srv.URL)
	ctx := context.Background()

	if _, err := c.CompleteOAuthCallback(ctx, ""); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error for missing token, got %v", err)
	}
	user, err := c.CompleteOAuthCallback(ctx, "g1")
	if err != nil {
		t.Fatalf("oauth callback: %v", err)
	}
	if user.Token != "g1" || !user.IsAdmin() {
		t.Fatalf("unexpected user: %+v", user)
	}
	if sess.StoredToken(ctx) != "g1" {
		t.Fatalf("expected stored token g1")
	}
	if _, err := c.CompleteOAuthCallback(ctx, "bad"); !errors.Is(err, apierr.ErrRemoteRejection) {
		t.Fatalf("expected rejection for bad token, got %v", err)
	}
}

func TestCallbackHandler(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": map[string]any{"id": 7, "email": "g@x.com"}})
	})
	c, sess, _ := newClient(b.srv.URL)
	var got domain.User
	h := c.CallbackHandler(func(u domain.User, err error) {
		if err != nil {
			t.Errorf("callback error: %v", err)
		}
		got = u
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?token="+url.QueryEscape("tok"), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.ID != "7" || !sess.IsAuthenticated(context.Background()) {
		t.Fatalf("expected stored session, got %+v", got)
	}
}

func TestWaitForCallbackHonoursContext(t *testing.T) {
	c, _, _ := newClient("http://127.0.0.1:1")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.WaitForCallback(ctx, "127.0.0.1:0", ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestVerifyEmail(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/verify-email/old" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Verification link has expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Email verified"})
	})
	c, sess, _ := newClient(b.srv.URL)
	ctx := context.Background()
	_, _ = sess.StoreAuthData(ctx, session.LoginResponse("t1", domain.User{ID: "1"}))

	if _, err := c.VerifyEmail(ctx, "old"); !apierr.IsExpired(err) {
		t.Fatalf("expected expired error, got %v", err)
	}
	if sess.StoredUser(ctx).IsVerified {
		t.Fatalf("failed verification must not mark the user verified")
	}
	if _, err := c.VerifyEmail(ctx, "fresh"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !sess.StoredUser(ctx).IsVerified {
		t.Fatalf("expected stored user to be verified")
	}
}

func TestRefreshProfileSwallowsFailure(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c, sess, _ := newClient(b.srv.URL)
	ctx := context.Background()
	_, _ = sess.StoreAuthData(ctx, session.LoginResponse("t1", domain.User{ID: "1", FullName: "Ada"}))

	res := c.RefreshProfile(ctx)
	if res.OK() {
		t.Fatalf("expected failed result")
	}
	if sess.StoredUser(ctx).FullName != "Ada" {
		t.Fatalf("failed refresh must keep the stored user")
	}
}

func TestRefreshProfileMergesProfile(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": map[string]any{"id": 1, "fullName": "Ada L.", "email": "ada@x.com", "role": "student", "isVerified": true}})
	})
	c, sess, _ := newClient(b.srv.URL)
	ctx := context.Background()
	_, _ = sess.StoreAuthData(ctx, session.LoginResponse("t1", domain.User{ID: "1", FullName: "Ada"}))

	res := c.RefreshProfile(ctx)
	if !res.OK() || res.Value.FullName != "Ada L." || !res.Value.IsVerified || res.Value.Token != "t1" {
		t.Fatalf("unexpected refresh result: %+v %v", res.Value, res.Err)
	}
}

func TestUpdateProfileAndChangePassword(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/profile":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": map[string]any{"id": 1, "fullName": "Ada King", "email": "ada@x.com"}})
		case "/api/auth/change-password":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password changed", "token": "t2"})
		default:
			http.NotFound(w, r)
		}
	})
	c, sess, _ := newClient(b.srv.URL)
	ctx := context.Background()
	if _, err := c.UpdateProfile(ctx, ProfileInput{FullName: "x"}); !errors.Is(err, apierr.ErrAuthRequired) {
		t.Fatalf("expected auth required, got %v", err)
	}
	_, _ = sess.StoreAuthData(ctx, session.LoginResponse("t1", domain.User{ID: "1", FullName: "Ada"}))

	u, err := c.UpdateProfile(ctx, ProfileInput{FullName: "Ada King"})
	if err != nil || u.FullName != "Ada King" {
		t.Fatalf("update profile: %+v %v", u, err)
	}
	if _, err := c.ChangePassword(ctx, "Aa1!aaaa", "Aa1!aaaa"); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error for unchanged password, got %v", err)
	}
	if msg, err := c.ChangePassword(ctx, "Aa1!aaaa", "Bb2@bbbb"); err != nil || msg != "Password changed" {
		t.Fatalf("change password: %q %v", msg, err)
	}
	if sess.StoredToken(ctx) != "t2" {
		t.Fatalf("expected rotated token, got %q", sess.StoredToken(ctx))
	}
}

func TestGoogleAuthURL(t *testing.T) {
	c, _, _ := newClient("https://api.unibro.test/")
	if got := c.GoogleAuthURL(); got != "https://api.unibro.test/api/auth/google" {
		t.Fatalf("unexpected url: %q", got)
	}
}
