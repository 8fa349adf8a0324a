// Package session resolves the session handle of an inbound request from its
// cookie. Sessions live in memory or in Redis.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Store.Get for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Session is a session handle.
type Session struct {
	ID        string
	CreatedAt time.Time
}

// Store keeps sessions alive for a TTL since their last access.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Create(ctx context.Context) (*Session, error)
	Ping(ctx context.Context) error
}

type ctxKey struct{}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by Middleware, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// ID returns the session id in ctx, or "".
func ID(ctx context.Context) string {
	if s, ok := FromContext(ctx); ok {
		return s.ID
	}
	return ""
}

// Middleware resolves the session named by cookie, creating one when the
// cookie is missing or stale. Store failures are logged and the request
// continues without a session.
func Middleware(store Store, cookie string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var s *Session
			if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
				s, err = store.Get(ctx, c.Value)
				if err != nil && !errors.Is(err, ErrNotFound) {
					logger.Warn("session lookup failed", "err", err)
					next.ServeHTTP(w, r)
					return
				}
			}
			if s == nil {
				created, err := store.Create(ctx)
				if err != nil {
					logger.Warn("session create failed", "err", err)
					next.ServeHTTP(w, r)
					return
				}
				s = created
				http.SetCookie(w, &http.Cookie{
					Name:     cookie,
					Value:    s.ID,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(NewContext(ctx, s)))
		})
	}
}

// MemoryStore is a Store in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// NewMemoryStore returns a MemoryStore with the given idle TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, sessions: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	now := m.now()
	if !ok || now.After(e.expiresAt) {
		delete(m.sessions, id)
		return nil, ErrNotFound
	}
	e.expiresAt = now.Add(m.ttl)
	m.sessions[id] = e
	s := e.session
	return &s, nil
}

func (m *MemoryStore) Create(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s := Session{ID: uuid.NewString(), CreatedAt: now}
	m.sessions[s.ID] = memoryEntry{session: s, expiresAt: now.Add(m.ttl)}
	return &s, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
