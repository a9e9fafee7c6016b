// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Package auth handles login, logout, and the Spotify account link.
//
// Identity comes from a standard authorization-code flow against a
// configurable provider; the session cookie then binds every later HTTP
// and websocket request to that identity. The Spotify flow is a second,
// separate consent that only attaches a listening credential to an
// already-signed-in user.
package auth

import (
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/config"
)

// Session value keys.
const (
	identityKey     = "user_id"
	stateKey        = "oauth_state"
	spotifyStateKey = "spotify_oauth_state"
)

// Manager wraps a gorilla/sessions cookie store for this server's needs.
type Manager struct {
	store *sessions.CookieStore
	name  string
}

// NewManager creates a session manager from security configuration.
func NewManager(cfg config.SecurityConfig) *Manager {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{store: store, name: cfg.CookieName}
}

// session returns the request's session, or a fresh one when the cookie
// is missing or fails authentication.
func (m *Manager) session(r *http.Request) *sessions.Session {
	s, err := m.store.Get(r, m.name)
	if err != nil {
		s, _ = m.store.New(r, m.name)
	}
	return s
}

// Identity returns the authenticated user bound to the request's session.
func (m *Manager) Identity(r *http.Request) (string, bool) {
	id, ok := m.session(r).Values[identityKey].(string)
	return id, ok && id != ""
}

// SetIdentity binds an authenticated user to the session.
func (m *Manager) SetIdentity(r *http.Request, w http.ResponseWriter, userID string) error {
	s := m.session(r)
	s.Values[identityKey] = userID
	return s.Save(r, w)
}

// SetState stores a one-shot OAuth state value under the given key.
func (m *Manager) SetState(r *http.Request, w http.ResponseWriter, key, state string) error {
	s := m.session(r)
	s.Values[key] = state
	return s.Save(r, w)
}

// TakeState returns and clears the stored OAuth state for the given key.
func (m *Manager) TakeState(r *http.Request, w http.ResponseWriter, key string) (string, bool) {
	s := m.session(r)
	state, ok := s.Values[key].(string)
	if !ok || state == "" {
		return "", false
	}
	delete(s.Values, key)
	_ = s.Save(r, w)
	return state, true
}

// Clear deletes the session (logout).
func (m *Manager) Clear(r *http.Request, w http.ResponseWriter) error {
	s := m.session(r)
	s.Options.MaxAge = -1
	return s.Save(r, w)
}
