package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"unibro/pkg/apierr"
	"unibro/pkg/domain"
	"unibro/pkg/kv"
	"unibro/pkg/notify"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, error) { return "", errors.New("disk gone") }
func (failingKV) Set(context.Context, string, string) error   { return errors.New("disk gone") }
func (failingKV) Delete(context.Context, ...string) error     { return errors.New("disk gone") }

func newTestStore() (*Store, *kv.MemoryStore, *fakeClock, *recorder) {
	backend := kv.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	s := New(Config{KV: backend, Publisher: rec, Now: clock.Now})
	return s, backend, clock, rec
}

func TestStoreThenReadIsCoherent(t *testing.T) {
	s, _, _, _ := newTestStore()
	ctx := context.Background()
	user := domain.User{ID: "1", FullName: "Ada", Email: "ada@x.com", Role: domain.RoleStudent}

	stored, err := s.StoreAuthData(ctx, LoginResponse("t1", user))
	if err != nil {
		t.Fatalf("store auth data: %v", err)
	}
	got := s.StoredUser(ctx)
	if got == nil || *got != stored {
		t.Fatalf("expected %+v, got %+v", stored, got)
	}
	if got.Token != "t1" {
		t.Fatalf("expected embedded token t1, got %q", got.Token)
	}

	// A second write within the freshness window must not serve the old user.
	user.FullName = "Ada Lovelace"
	if _, err := s.StoreAuthData(ctx, LoginResponse("t2", user)); err != nil {
		t.Fatalf("second store: %v", err)
	}
	if got := s.StoredUser(ctx); got.FullName != "Ada Lovelace" || got.Token != "t2" {
		t.Fatalf("stale read after write: %+v", got)
	}
}

func TestIsAuthenticatedNeedsUserAndToken(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name      string
		user      string
		token     bool
		wantAuthn bool
	}{
		{"neither", "", false, false},
		{"user only", `{"id":1,"email":"ada@x.com"}`, false, false},
		{"user with embedded token only", `{"id":1,"email":"ada@x.com","token":"t2"}`, false, false},
		{"token only", "", true, false},
		{"both", `{"id":1,"email":"ada@x.com"}`, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := kv.NewMemoryStore()
			if tc.user != "" {
				_ = backend.Set(ctx, UserKey, tc.user)
			}
			if tc.token {
				_ = backend.Set(ctx, TokenKey, "t1")
			}
			s := New(Config{KV: backend})
			if got := s.IsAuthenticated(ctx); got != tc.wantAuthn {
				t.Fatalf("expected %v, got %v", tc.wantAuthn, got)
			}
		})
	}
}

func TestClearAuthData(t *testing.T) {
	s, backend, _, rec := newTestStore()
	ctx := context.Background()
	if _, err := s.StoreAuthData(ctx, LoginResponse("t1", domain.User{ID: "1"})); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.ClearAuthData(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if u := s.StoredUser(ctx); u != nil {
		t.Fatalf("expected nil user after clear, got %+v", u)
	}
	if tok := s.StoredToken(ctx); tok != "" {
		t.Fatalf("expected empty token after clear, got %q", tok)
	}
	if _, err := backend.Get(ctx, TokenKey); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("token key should be removed")
	}
	kinds := rec.kinds()
	if len(kinds) != 2 || kinds[0] != notify.KindLogin || kinds[1] != notify.KindLogout {
		t.Fatalf("unexpected events: %v", kinds)
	}
}

func TestStoredTokenFallsBackToEmbeddedToken(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	_ = backend.Set(ctx, UserKey, `{"id":2,"token":"t2"}`)
	s := New(Config{KV: backend})
	if got := s.StoredToken(ctx); got != "t2" {
		t.Fatalf("expected t2, got %q", got)
	}
	_ = backend.Set(ctx, TokenKey, "dedicated")
	if got := s.StoredToken(ctx); got != "dedicated" {
		t.Fatalf("dedicated key should win, got %q", got)
	}
}

func TestCorruptUserReadsAsLoggedOut(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	_ = backend.Set(ctx, UserKey, "{broken")
	_ = backend.Set(ctx, TokenKey, "t1")
	s := New(Config{KV: backend})
	if u := s.StoredUser(ctx); u != nil {
		t.Fatalf("expected nil for corrupt user, got %+v", u)
	}
	if s.IsAuthenticated(ctx) {
		t.Fatalf("corrupt user must not authenticate")
	}
}

func TestBackendFailureReadsAsLoggedOut(t *testing.T) {
	s := New(Config{KV: failingKV{}})
	ctx := context.Background()
	if s.StoredUser(ctx) != nil || s.StoredToken(ctx) != "" || s.IsAuthenticated(ctx) {
		t.Fatalf("backend failure should read as logged out")
	}
	if _, err := s.StoreAuthData(ctx, LoginResponse("t1", domain.User{ID: "1"})); err == nil {
		t.Fatalf("expected write error to surface")
	}
}

func TestCacheServesWithinFreshnessWindow(t *testing.T) {
	s, backend, clock, _ := newTestStore()
	ctx := context.Background()
	if _, err := s.StoreAuthData(ctx, LoginResponse("t1", domain.User{ID: "1", FullName: "Ada"})); err != nil {
		t.Fatalf("store: %v", err)
	}
	// Another process rewrites storage directly.
	_ = backend.Set(ctx, UserKey, `{"id":1,"fullName":"Grace","token":"t1"}`)

	clock.Advance(500 * time.Millisecond)
	if got := s.StoredUser(ctx); got.FullName != "Ada" {
		t.Fatalf("expected cached user inside the window, got %q", got.FullName)
	}
	clock.Advance(600 * time.Millisecond)
	if got := s.StoredUser(ctx); got.FullName != "Grace" {
		t.Fatalf("expected re-read after the window, got %q", got.FullName)
	}
}

func TestRemoteEventInvalidatesCache(t *testing.T) {
	s, backend, _, _ := newTestStore()
	ctx := context.Background()
	if _, err := s.StoreAuthData(ctx, LoginResponse("t1", domain.User{ID: "1", FullName: "Ada"})); err != nil {
		t.Fatalf("store: %v", err)
	}
	_ = backend.Delete(ctx, UserKey, TokenKey)

	s.Handle(notify.Event{Kind: notify.KindUserUpdated})
	if s.StoredUser(ctx) == nil {
		t.Fatalf("local events must not drop the cache")
	}
	s.Handle(notify.Event{Kind: notify.KindStorageChanged, Remote: true})
	if u := s.StoredUser(ctx); u != nil {
		t.Fatalf("expected remote logout to be observed, got %+v", u)
	}
}

func TestUpdateStoredUserMerges(t *testing.T) {
	s, _, _, rec := newTestStore()
	ctx := context.Background()
	if _, err := s.StoreAuthData(ctx, LoginResponse("t1", domain.User{ID: "1", FullName: "Ada", Email: "ada@x.com"})); err != nil {
		t.Fatalf("store: %v", err)
	}
	verified := true
	name := "Ada L."
	merged, err := s.UpdateStoredUser(ctx, UserPatch{FullName: &name, IsVerified: &verified})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if merged.FullName != "Ada L." || !merged.IsVerified || merged.Email != "ada@x.com" || merged.Token != "t1" {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
	if got := s.StoredUser(ctx); *got != *merged {
		t.Fatalf("stored user differs from merge result: %+v", got)
	}
	kinds := rec.kinds()
	if kinds[len(kinds)-1] != notify.KindUserUpdated {
		t.Fatalf("expected user_updated event, got %v", kinds)
	}
}

func TestUpdateStoredUserWithoutSessionIsNoop(t *testing.T) {
	s, _, _, rec := newTestStore()
	name := "nobody"
	merged, err := s.UpdateStoredUser(context.Background(), UserPatch{FullName: &name})
	if err != nil || merged != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", merged, err)
	}
	if len(rec.kinds()) != 0 {
		t.Fatalf("no event expected for noop update")
	}
}

func TestStoredUserReturnsCopy(t *testing.T) {
	s, _, _, _ := newTestStore()
	ctx := context.Background()
	if _, err := s.StoreAuthData(ctx, LoginResponse("t1", domain.User{ID: "1", FullName: "Ada"})); err != nil {
		t.Fatalf("store: %v", err)
	}
	u := s.StoredUser(ctx)
	u.FullName = "mutated"
	if s.StoredUser(ctx).FullName != "Ada" {
		t.Fatalf("caller mutation leaked into the cache")
	}
}

func TestNormalizePayloads(t *testing.T) {
	u, err := Normalize(RawUser(domain.User{ID: "1", Token: "embedded"}))
	if err != nil || u.Token != "embedded" {
		t.Fatalf("raw user: %+v %v", u, err)
	}
	u, err = Normalize(LoginResponse("outer", domain.User{ID: "1", Token: "inner"}))
	if err != nil || u.Token != "outer" {
		t.Fatalf("login response should prefer the outer token: %+v %v", u, err)
	}
	if _, err := Normalize(RawUser(domain.User{ID: "1"})); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error for tokenless user, got %v", err)
	}
	if _, err := Normalize(AuthPayload{}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error for untagged payload, got %v", err)
	}
}

func TestTokenClaims(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   "42",
		"role": "admin",
		"exp":  exp.Unix(),
	}).SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c, err := TokenClaims(signed)
	if err != nil {
		t.Fatalf("claims: %v", err)
	}
	if c.Subject != "42" || c.Role != "admin" || !c.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected claims: %+v", c)
	}
	if c.Expired(exp.Add(-time.Minute)) || !c.Expired(exp) {
		t.Fatalf("unexpected expiry evaluation")
	}
	if _, err := TokenClaims("opaque-token"); err == nil {
		t.Fatalf("expected error for non-jwt token")
	}
}
