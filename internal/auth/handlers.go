// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/config"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/geo"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/presence"
)

// RosterBroadcaster pushes the active-user roster to connected clients.
// Implemented by the websocket hub.
type RosterBroadcaster interface {
	BroadcastRoster()
}

// Handlers implements the login, logout, and Spotify-link endpoints.
type Handlers struct {
	sessions  *Manager
	presence  *presence.Registry
	positions *geo.Store
	roster    RosterBroadcaster

	identity    *oauth2.Config
	spotify     *oauth2.Config
	userInfoURL string
	logoutURL   string

	httpClient *http.Client
	clock      func() time.Time
}

// NewHandlers wires the auth endpoints.
func NewHandlers(
	authCfg config.AuthConfig,
	spotifyCfg config.SpotifyConfig,
	sessions *Manager,
	registry *presence.Registry,
	positions *geo.Store,
	roster RosterBroadcaster,
) *Handlers {
	return &Handlers{
		sessions:  sessions,
		presence:  registry,
		positions: positions,
		roster:    roster,
		identity: &oauth2.Config{
			ClientID:     authCfg.ClientID,
			ClientSecret: authCfg.ClientSecret,
			RedirectURL:  authCfg.RedirectURL,
			Scopes:       authCfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authCfg.AuthURL,
				TokenURL: authCfg.TokenURL,
			},
		},
		spotify: &oauth2.Config{
			ClientID:     spotifyCfg.ClientID,
			ClientSecret: spotifyCfg.ClientSecret,
			RedirectURL:  spotifyCfg.RedirectURL,
			Scopes:       spotifyCfg.Scopes,
			Endpoint:     spotify.Endpoint,
		},
		userInfoURL: authCfg.UserInfoURL,
		logoutURL:   authCfg.LogoutURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		clock:       time.Now,
	}
}

// userInfo is the subset of the provider's userinfo payload we consume.
type userInfo struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Login starts the identity provider authorization-code flow.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	if err := h.sessions.SetState(r, w, stateKey, state); err != nil {
		logging.Err(err).Msg("failed to persist login state")
		http.Error(w, "login unavailable", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.identity.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the login flow: state check, code exchange, profile
// fetch, then session bind and presence registration.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	expected, ok := h.sessions.TakeState(r, w, stateKey)
	if !ok || r.URL.Query().Get("state") != expected {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := h.identity.Exchange(r.Context(), code)
	if err != nil {
		logging.Err(err).Msg("identity code exchange failed")
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}

	info, err := h.fetchUserInfo(r.Context(), token)
	if err != nil {
		logging.Err(err).Msg("userinfo fetch failed")
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}
	if info.Sub == "" {
		http.Error(w, "provider returned no subject", http.StatusBadGateway)
		return
	}

	if err := h.sessions.SetIdentity(r, w, info.Sub); err != nil {
		logging.Err(err).Msg("failed to persist session identity")
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	// The Spotify credential arrives in its own flow; until then the user
	// is active with no listening credential.
	h.presence.MarkActive(info.Sub, presence.Profile{
		DisplayName: info.Name,
		Email:       info.Email,
		ImageURL:    info.Picture,
	}, nil, h.clock())
	h.roster.BroadcastRoster()

	logging.Info().Str("user_id", info.Sub).Msg("user logged in")
	http.Redirect(w, r, "/", http.StatusFound)
}

// fetchUserInfo retrieves the profile from the provider's userinfo endpoint.
func (h *Handlers) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*userInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	token.SetAuthHeader(req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SpotifyLogin starts the Spotify consent flow for an already-signed-in
// user.
func (h *Handlers) SpotifyLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.Identity(r); !ok {
		http.Error(w, "sign in first", http.StatusUnauthorized)
		return
	}

	state := uuid.NewString()
	if err := h.sessions.SetState(r, w, spotifyStateKey, state); err != nil {
		logging.Err(err).Msg("failed to persist spotify state")
		http.Error(w, "spotify link unavailable", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.spotify.AuthCodeURL(state), http.StatusFound)
}

// SpotifyCallback completes the Spotify link, storing the credential on
// the user's presence entry.
func (h *Handlers) SpotifyCallback(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessions.Identity(r)
	if !ok {
		http.Error(w, "sign in first", http.StatusUnauthorized)
		return
	}

	expected, ok := h.sessions.TakeState(r, w, spotifyStateKey)
	if !ok || r.URL.Query().Get("state") != expected {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := h.spotify.Exchange(r.Context(), code)
	if err != nil {
		logging.Err(err).Msg("spotify code exchange failed")
		http.Error(w, "spotify link failed", http.StatusBadGateway)
		return
	}

	if !h.presence.SetCredential(userID, token) {
		// Login and Spotify consent raced with a logout; re-activate with
		// the fresh credential rather than dropping it.
		h.presence.MarkActive(userID, presence.Profile{}, token, h.clock())
	}
	h.roster.BroadcastRoster()

	logging.Info().Str("user_id", userID).Msg("spotify account linked")
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout clears the session and removes the user from the presence
// registry and the position table. Everyone else sees the departure via
// the roster broadcast.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessions.Identity(r)

	if err := h.sessions.Clear(r, w); err != nil {
		logging.Err(err).Msg("failed to clear session")
	}

	if ok {
		h.presence.Remove(userID)
		h.positions.Remove(userID)
		h.roster.BroadcastRoster()
		logging.Info().Str("user_id", userID).Msg("user logged out")
	}

	target := h.logoutURL
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}
