// Package notify propagates session changes to every interested component.
//
// Same-process subscribers receive typed events with the updated user. Other
// processes only learn that auth storage changed, through a Broadcaster, and
// are expected to re-read the session store.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"unibro/pkg/domain"
)

type Kind string

const (
	KindLogin          Kind = "login"
	KindLogout         Kind = "logout"
	KindUserUpdated    Kind = "user_updated"
	KindStorageChanged Kind = "storage_changed"
)

// Event describes one session change. User is nil for logout and for remote
// storage changes.
type Event struct {
	Kind   Kind
	User   *domain.User
	Remote bool
	At     time.Time
}

// Handler receives events. Handlers must tolerate duplicates.
type Handler func(Event)

// Broadcaster carries "auth storage changed" signals between processes.
type Broadcaster interface {
	// Broadcast announces a change made by origin.
	Broadcast(ctx context.Context, origin string) error
	// Listen subscribes and returns once the subscription is live. fn runs on
	// the listener goroutine until ctx is done.
	Listen(ctx context.Context, fn func(origin string)) error
	Close() error
}

// Config configures a Notifier.
type Config struct {
	Broadcaster Broadcaster
	Logger      *slog.Logger
	Now         func() time.Time
}

type subscription struct {
	id int
	h  Handler
}

// Notifier is a publish/subscribe hub with optional cross-process fan-out.
type Notifier struct {
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
	origin      string

	mu     sync.RWMutex
	subs   []subscription
	nextID int
}

// New builds a notifier. Without a broadcaster events stay in-process.
func New(cfg Config) *Notifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	origin, err := gonanoid.New()
	if err != nil {
		origin = now().Format(time.RFC3339Nano)
	}
	return &Notifier{
		broadcaster: cfg.Broadcaster,
		logger:      logger,
		now:         now,
		origin:      origin,
	}
}

// Origin identifies this process in broadcast signals.
func (n *Notifier) Origin() string { return n.origin }

// Subscribe registers h. Handlers run in subscription order. The returned
// func removes the subscription and is safe to call more than once.
func (n *Notifier) Subscribe(h Handler) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs = append(n.subs, subscription{id: id, h: h})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, s := range n.subs {
				if s.id == id {
					n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev locally and broadcasts a storage-changed signal.
// Broadcast failures are logged; local delivery always happens.
func (n *Notifier) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = n.now()
	}
	n.deliver(ev)
	if n.broadcaster == nil {
		return
	}
	if err := n.broadcaster.Broadcast(ctx, n.origin); err != nil {
		n.logger.Warn("broadcast session change failed", "kind", string(ev.Kind), "err", err)
	}
}

// Start begins listening for signals from other processes. It returns once
// the listener is live; the listener stops when ctx is done.
func (n *Notifier) Start(ctx context.Context) error {
	if n.broadcaster == nil {
		return nil
	}
	return n.broadcaster.Listen(ctx, func(origin string) {
		if origin != "" && origin == n.origin {
			return
		}
		n.deliver(Event{Kind: KindStorageChanged, Remote: true, At: n.now()})
	})
}

// Close releases the broadcaster.
func (n *Notifier) Close() error {
	if n.broadcaster == nil {
		return nil
	}
	return n.broadcaster.Close()
}

// SubscriberCount reports the number of live subscriptions.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

func (n *Notifier) deliver(ev Event) {
	n.mu.RLock()
	subs := make([]subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()
	for _, s := range subs {
		s.h(ev)
	}
}
