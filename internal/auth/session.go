// Package auth manages console sessions: the per-user state that outlives a
// single request, most importantly the ERP client carrying the user's login.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/erpconsole/internal/backend"
)

// Session holds one logged-in user's console state.
type Session struct {
	ID        string
	Backend   *backend.Client
	CreatedAt time.Time

	mu           sync.Mutex
	userID       string
	fullName     string
	lastActiveAt time.Time
	views        map[string]any
}

// NewSession creates a session bound to an authenticated client.
func NewSession(client *backend.Client, userID, fullName string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		Backend:      client,
		CreatedAt:    now,
		userID:       userID,
		fullName:     fullName,
		lastActiveAt: now,
		views:        make(map[string]any),
	}
}

// UserID returns the ERP login of the session's user.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// FullName returns the display name of the session's user.
func (s *Session) FullName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullName
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActiveAt = time.Now()
	s.mu.Unlock()
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActiveAt) > timeout
}

// View returns the open view stored under key.
func (s *Session) View(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[key]
	return v, ok
}

// SetView stores an open view, replacing any previous one under key.
func (s *Session) SetView(key string, v any) {
	s.mu.Lock()
	s.views[key] = v
	s.mu.Unlock()
}

// DropView forgets the view stored under key.
func (s *Session) DropView(key string) {
	s.mu.Lock()
	delete(s.views, key)
	s.mu.Unlock()
}

// DropViews forgets every view whose key starts with prefix.
func (s *Session) DropViews(prefix string) {
	s.mu.Lock()
	for k := range s.views {
		if strings.HasPrefix(k, prefix) {
			delete(s.views, k)
		}
	}
	s.mu.Unlock()
}

// Manager handles session creation, lookup, and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
}

// NewManager creates a session manager with the given timeouts.
func NewManager(maxAge, idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
	}
}

// Create registers a new session for an authenticated client.
func (m *Manager) Create(client *backend.Client, userID, fullName string) *Session {
	s := NewSession(client, userID, fullName)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get retrieves a live session by ID and marks it active. Returns nil if not
// found or expired.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if m.dead(s) {
		m.Remove(id)
		return nil
	}
	s.Touch()
	return s
}

// Remove deletes a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of stored sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes all expired and idle sessions and returns how many it
// removed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if m.dead(s) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run calls Cleanup every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Cleanup()
		}
	}
}

func (m *Manager) dead(s *Session) bool {
	return s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout)
}
