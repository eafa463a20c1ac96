// Package auth provides cookie-session identity resolution for dashboard
// owners. The interactive login flows (OAuth redirects, callbacks) are owned
// by the platform's account service; this package holds the session store
// those flows populate and the validity checks the live dashboard depends on.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/stratify/live-metrics/internal/config"
)

// ErrSessionExpired means the caller's session lapsed while it was in use.
// Consumers must stop issuing authenticated calls and prompt for re-login
// rather than silently retrying with the stale credential.
var ErrSessionExpired = errors.New("session expired")

// Session represents an authenticated owner session.
type Session struct {
	OwnerID   string    `json:"owner_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session has lapsed.
func (s *Session) Expired() bool { return time.Now().After(s.ExpiresAt) }

// Manager holds active sessions and resolves request identity.
type Manager struct {
	cfg          *config.AuthConfig
	oauth2Config *oauth2.Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg *config.AuthConfig, baseURL string) *Manager {
	return &Manager{
		cfg: cfg,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  baseURL + "/auth/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		sessions: make(map[string]*Session),
	}
}

// OAuthConfig exposes the configured OAuth client for the login flows owned
// by the account service.
func (m *Manager) OAuthConfig() *oauth2.Config { return m.oauth2Config }

// CreateSession registers a session for an owner and returns its ID.
func (m *Manager) CreateSession(ownerID, email, name string) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", err
	}
	now := time.Now()
	m.mu.Lock()
	m.sessions[id] = &Session{
		OwnerID:   ownerID,
		Email:     email,
		Name:      name,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(m.cfg.CookieMaxAge) * time.Second),
	}
	m.mu.Unlock()
	return id, nil
}

// GetSession returns the session for the request's cookie, or nil.
// Expired sessions are evicted on access.
func (m *Manager) GetSession(r *http.Request) *Session {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return nil
	}
	return m.lookup(cookie.Value)
}

func (m *Manager) lookup(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if s.Expired() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil
	}
	return s
}

// IsAuthenticated reports whether the request carries a live session.
func (m *Manager) IsAuthenticated(r *http.Request) bool {
	return m.GetSession(r) != nil
}

// Validate implements the live-sync session check: it succeeds only while
// ownerID still holds a live session, and returns ErrSessionExpired once it
// lapses.
func (m *Manager) Validate(_ context.Context, ownerID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.OwnerID == ownerID && !s.Expired() {
			return nil
		}
	}
	return ErrSessionExpired
}

// Revoke removes the session with the given ID.
func (m *Manager) Revoke(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// CleanupExpiredSessions removes lapsed sessions. Call it periodically.
func (m *Manager) CleanupExpiredSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.Expired() {
			delete(m.sessions, id)
		}
	}
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
