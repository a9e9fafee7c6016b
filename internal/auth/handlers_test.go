// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/config"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/geo"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/presence"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
	os.Exit(m.Run())
}

type fakeRoster struct {
	broadcasts int
}

func (f *fakeRoster) BroadcastRoster() { f.broadcasts++ }

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		SessionSecret: "0123456789abcdef0123456789abcdef",
		CookieName:    "sonic_session",
		CookieSecure:  false,
		SessionMaxAge: time.Hour,
	}
}

// testProvider serves both the token and userinfo endpoints of a fake
// identity provider.
func testProvider(t *testing.T, sub string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"bearer"}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); !strings.Contains(got, "provider-token") {
			t.Errorf("userinfo Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"` + sub + `","name":"Test User","email":"test@example.com","picture":"https://img.example/p.jpg"}`))
	})
	return httptest.NewServer(mux)
}

type authFixture struct {
	handlers  *Handlers
	sessions  *Manager
	presence  *presence.Registry
	positions *geo.Store
	roster    *fakeRoster
}

func setupHandlers(t *testing.T, provider *httptest.Server) *authFixture {
	t.Helper()
	f := &authFixture{
		sessions:  NewManager(testSecurityConfig()),
		presence:  presence.NewRegistry(),
		positions: geo.NewStore(),
		roster:    &fakeRoster{},
	}

	authCfg := config.AuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/auth/callback",
		Scopes:       []string{"openid", "profile"},
	}
	if provider != nil {
		authCfg.AuthURL = provider.URL + "/authorize"
		authCfg.TokenURL = provider.URL + "/token"
		authCfg.UserInfoURL = provider.URL + "/userinfo"
	}

	f.handlers = NewHandlers(authCfg, config.SpotifyConfig{ClientID: "sp"}, f.sessions, f.presence, f.positions, f.roster)
	return f
}

// carryCookies moves Set-Cookie headers from a response onto a request.
func carryCookies(rec *httptest.ResponseRecorder, req *http.Request) {
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
}

func TestLogin_RedirectsWithState(t *testing.T) {
	f := setupHandlers(t, nil)
	f.handlers.identity.Endpoint.AuthURL = "https://idp.example/authorize"

	rec := httptest.NewRecorder()
	f.handlers.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(loc.String(), "https://idp.example/authorize") {
		t.Errorf("redirect target = %s", loc)
	}
	if loc.Query().Get("state") == "" {
		t.Error("redirect carries no state parameter")
	}
}

func TestCallback_CompletesLogin(t *testing.T) {
	provider := testProvider(t, "user-42")
	defer provider.Close()
	f := setupHandlers(t, provider)

	// Start the flow to obtain the state cookie.
	loginRec := httptest.NewRecorder()
	f.handlers.Login(loginRec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	loc, _ := url.Parse(loginRec.Header().Get("Location"))
	state := loc.Query().Get("state")

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)
	carryCookies(loginRec, req)
	rec := httptest.NewRecorder()
	f.handlers.Callback(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302, body %s", rec.Code, rec.Body.String())
	}

	if !f.presence.Active("user-42") {
		t.Error("user not marked active after login")
	}
	list := f.presence.List()
	if len(list) != 1 || list[0].DisplayName != "Test User" {
		t.Errorf("roster = %+v", list)
	}
	if f.roster.broadcasts != 1 {
		t.Errorf("roster broadcasts = %d, want 1", f.roster.broadcasts)
	}

	// The new session must carry the identity.
	next := httptest.NewRequest(http.MethodGet, "/", nil)
	carryCookies(rec, next)
	if id, ok := f.sessions.Identity(next); !ok || id != "user-42" {
		t.Errorf("session identity = %q, %v", id, ok)
	}
}

func TestCallback_RejectsStateMismatch(t *testing.T) {
	provider := testProvider(t, "user-42")
	defer provider.Close()
	f := setupHandlers(t, provider)

	loginRec := httptest.NewRecorder()
	f.handlers.Login(loginRec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=forged", nil)
	carryCookies(loginRec, req)
	rec := httptest.NewRecorder()
	f.handlers.Callback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if f.presence.Count() != 0 {
		t.Error("forged callback registered a user")
	}
}

func TestSpotifyLogin_RequiresSession(t *testing.T) {
	f := setupHandlers(t, nil)

	rec := httptest.NewRecorder()
	f.handlers.SpotifyLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/spotify", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLogout_RemovesUserEverywhere(t *testing.T) {
	f := setupHandlers(t, nil)
	now := time.Now()
	f.presence.MarkActive("user-42", presence.Profile{DisplayName: "Test"}, nil, now)
	if err := f.positions.Upsert("user-42", 1, 2, "t"); err != nil {
		t.Fatal(err)
	}

	// Bind the identity to a session first.
	bindRec := httptest.NewRecorder()
	bindReq := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := f.sessions.SetIdentity(bindReq, bindRec, "user-42"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	carryCookies(bindRec, req)
	rec := httptest.NewRecorder()
	f.handlers.Logout(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if f.presence.Active("user-42") {
		t.Error("user still active after logout")
	}
	if f.positions.Count() != 0 {
		t.Error("position retained after logout")
	}
	if f.roster.broadcasts != 1 {
		t.Errorf("roster broadcasts = %d, want 1", f.roster.broadcasts)
	}
}

func TestLogout_WithoutSessionStillRedirects(t *testing.T) {
	f := setupHandlers(t, nil)

	rec := httptest.NewRecorder()
	f.handlers.Logout(rec, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))

	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want 302", rec.Code)
	}
	if f.roster.broadcasts != 0 {
		t.Error("roster broadcast without a signed-in user")
	}
}

func TestManager_IdentityRoundTrip(t *testing.T) {
	m := NewManager(testSecurityConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := m.Identity(req); ok {
		t.Error("fresh request reports an identity")
	}

	if err := m.SetIdentity(req, rec, "u1"); err != nil {
		t.Fatal(err)
	}

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	carryCookies(rec, next)
	if id, ok := m.Identity(next); !ok || id != "u1" {
		t.Errorf("identity = %q, %v", id, ok)
	}
}

func TestManager_TakeStateIsOneShot(t *testing.T) {
	m := NewManager(testSecurityConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := m.SetState(req, rec, stateKey, "s123"); err != nil {
		t.Fatal(err)
	}

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	carryCookies(rec, next)
	nextRec := httptest.NewRecorder()

	state, ok := m.TakeState(next, nextRec, stateKey)
	if !ok || state != "s123" {
		t.Fatalf("TakeState = %q, %v", state, ok)
	}

	// The cleared cookie from the first take must invalidate a second one.
	again := httptest.NewRequest(http.MethodGet, "/", nil)
	carryCookies(nextRec, again)
	if _, ok := m.TakeState(again, httptest.NewRecorder(), stateKey); ok {
		t.Error("state was consumable twice")
	}
}

func TestManager_Require(t *testing.T) {
	m := NewManager(testSecurityConfig())

	var gotIdentity string
	handler := m.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	bindRec := httptest.NewRecorder()
	bindReq := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := m.SetIdentity(bindReq, bindRec, "u7"); err != nil {
		t.Fatal(err)
	}

	authed := httptest.NewRequest(http.MethodGet, "/", nil)
	carryCookies(bindRec, authed)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed)
	if rec.Code != http.StatusOK {
		t.Errorf("authed status = %d, want 200", rec.Code)
	}
	if gotIdentity != "u7" {
		t.Errorf("context identity = %q, want u7", gotIdentity)
	}
}
