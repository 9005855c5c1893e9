// Package session owns the persisted login: the bearer token and the user
// profile, with a short-lived read cache in front of the key-value backend.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"unibro/pkg/domain"
	"unibro/pkg/kv"
	"unibro/pkg/notify"
)

const (
	TokenKey = "token"
	UserKey  = "user"

	// DefaultFreshness bounds how long a cached user is served without
	// re-reading the backend.
	DefaultFreshness = time.Second
)

// Publisher receives session change events.
type Publisher interface {
	Publish(ctx context.Context, ev notify.Event)
}

// Config wires a Store.
type Config struct {
	KV        kv.Store
	Publisher Publisher
	Freshness time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// Store is the single owner of the persisted session. Reads never fail:
// backend and parse errors are logged and reported as "no user".
type Store struct {
	kv        kv.Store
	publisher Publisher
	freshness time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	cached   *domain.User
	cachedAt time.Time
}

// New builds a Store. A nil KV falls back to an in-memory backend.
func New(cfg Config) *Store {
	store := cfg.KV
	if store == nil {
		store = kv.NewMemoryStore()
	}
	freshness := cfg.Freshness
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:        store,
		publisher: cfg.Publisher,
		freshness: freshness,
		now:       now,
		logger:    logger,
	}
}

// StoredUser returns the persisted user or nil.
func (s *Store) StoredUser(ctx context.Context) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUser(s.userLocked(ctx))
}

func (s *Store) userLocked(ctx context.Context) *domain.User {
	if s.cached != nil && s.now().Sub(s.cachedAt) < s.freshness {
		return s.cached
	}
	raw, err := s.kv.Get(ctx, UserKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("read stored user failed", "err", err)
		}
		s.cached = nil
		return nil
	}
	if strings.TrimSpace(raw) == "" {
		s.cached = nil
		return nil
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Warn("stored user is not valid json", "err", err)
		s.cached = nil
		return nil
	}
	s.cached = &user
	s.cachedAt = s.now()
	return s.cached
}

// StoredToken returns the bearer token from the dedicated key, falling back
// to the token embedded in the stored user. It returns "" when neither exists.
func (s *Store) StoredToken(ctx context.Context) string {
	token, err := s.kv.Get(ctx, TokenKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.logger.Warn("read stored token failed", "err", err)
	}
	if token = strings.TrimSpace(token); token != "" {
		return token
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.userLocked(ctx); u != nil {
		return strings.TrimSpace(u.Token)
	}
	return ""
}

// IsAuthenticated reports whether both the user key and the token key are
// stored. A token embedded in the user alone does not count.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	if s.StoredUser(ctx) == nil {
		return false
	}
	token, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("read stored token failed", "err", err)
		}
		return false
	}
	return strings.TrimSpace(token) != ""
}

// StoreAuthData normalizes p, writes both keys and refreshes the cache so the
// next read observes the new user immediately.
func (s *Store) StoreAuthData(ctx context.Context, p AuthPayload) (domain.User, error) {
	user, err := Normalize(p)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.write(ctx, user); err != nil {
		return domain.User{}, err
	}
	s.publish(ctx, notify.KindLogin, &user)
	return user, nil
}

// UserPatch lists the fields UpdateStoredUser may overwrite. Nil fields are kept.
type UserPatch struct {
	FullName   *string
	Email      *string
	Role       *domain.UserRole
	IsVerified *bool
	Token      *string
}

func (p UserPatch) apply(u *domain.User) {
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.IsVerified != nil {
		u.IsVerified = *p.IsVerified
	}
	if p.Token != nil {
		u.Token = *p.Token
	}
}

// UpdateStoredUser merges patch into the stored user. It returns nil without
// error when nobody is logged in.
func (s *Store) UpdateStoredUser(ctx context.Context, patch UserPatch) (*domain.User, error) {
	s.mu.Lock()
	current := cloneUser(s.userLocked(ctx))
	s.mu.Unlock()
	if current == nil {
		return nil, nil
	}
	patch.apply(current)
	if err := s.write(ctx, *current); err != nil {
		return nil, err
	}
	s.publish(ctx, notify.KindUserUpdated, current)
	return cloneUser(current), nil
}

// ClearAuthData removes both keys and drops the cache.
func (s *Store) ClearAuthData(ctx context.Context) error {
	err := s.kv.Delete(ctx, TokenKey, UserKey)
	s.Invalidate()
	if err != nil {
		s.logger.Warn("clear stored session failed", "err", err)
	}
	s.publish(ctx, notify.KindLogout, nil)
	return err
}

// Invalidate drops the cache so the next read goes to the backend.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.cachedAt = time.Time{}
}

// Handle is a notify.Handler that invalidates the cache on remote changes.
// Subscribe it before any consumer that re-reads the store.
func (s *Store) Handle(ev notify.Event) {
	if ev.Remote {
		s.Invalidate()
	}
}

func (s *Store) write(ctx context.Context, user domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.Token != "" {
		if err := s.kv.Set(ctx, TokenKey, user.Token); err != nil {
			return err
		}
	}
	if err := s.kv.Set(ctx, UserKey, string(data)); err != nil {
		return err
	}
	u := user
	s.cached = &u
	s.cachedAt = s.now()
	return nil
}

func (s *Store) publish(ctx context.Context, kind notify.Kind, user *domain.User) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, notify.Event{Kind: kind, User: cloneUser(user)})
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
