// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package tracks

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/spotify"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
	os.Exit(m.Run())
}

type stubCredentials map[string]*oauth2.Token

func (s stubCredentials) Credential(userID string) (*oauth2.Token, bool) {
	tok, ok := s[userID]
	return tok, ok
}

type stubAdmitter struct {
	allow bool
	keys  []string
}

func (s *stubAdmitter) Admit(key string, _ time.Time) bool {
	s.keys = append(s.keys, key)
	return s.allow
}

type stubClient struct {
	track *spotify.Track
	err   error
	calls int
	token *oauth2.Token
}

func (s *stubClient) CurrentlyPlaying(_ context.Context, token *oauth2.Token) (*spotify.Track, error) {
	s.calls++
	s.token = token
	return s.track, s.err
}

func TestProxy_LookupSuccess(t *testing.T) {
	client := &stubClient{track: &spotify.Track{
		SongName:   "Weird Fishes",
		ArtistName: "Radiohead",
		AlbumImage: "https://img.example/rainbows.jpg",
	}}
	creds := stubCredentials{"u1": {AccessToken: "tok"}}
	limiter := &stubAdmitter{allow: true}

	got, err := NewProxy(creds, limiter, client).Lookup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	want := &NowPlaying{
		UserID:     "u1",
		SongName:   "Weird Fishes",
		ArtistName: "Radiohead",
		AlbumImage: "https://img.example/rainbows.jpg",
		Playing:    true,
	}
	if *got != *want {
		t.Errorf("Lookup = %+v, want %+v", got, want)
	}
	if client.token == nil || client.token.AccessToken != "tok" {
		t.Error("stored credential was not passed upstream")
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "u1" {
		t.Errorf("rate key = %v, want the looked-up user ID", limiter.keys)
	}
}

func TestProxy_LookupNoTrack(t *testing.T) {
	creds := stubCredentials{"u1": {AccessToken: "tok"}}
	proxy := NewProxy(creds, &stubAdmitter{allow: true}, &stubClient{})

	got, err := proxy.Lookup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.Playing || got.SongName != "" || got.UserID != "u1" {
		t.Errorf("no-track result = %+v, want playing=false with empty track fields", got)
	}
}

func TestProxy_LookupUserNotActive(t *testing.T) {
	limiter := &stubAdmitter{allow: true}
	client := &stubClient{}
	proxy := NewProxy(stubCredentials{}, limiter, client)

	if _, err := proxy.Lookup(context.Background(), "ghost"); !errors.Is(err, ErrUserNotActive) {
		t.Errorf("err = %v, want ErrUserNotActive", err)
	}
	if len(limiter.keys) != 0 {
		t.Error("inactive user was charged against the rate budget")
	}
	if client.calls != 0 {
		t.Error("inactive user reached the upstream client")
	}
}

func TestProxy_LookupRateLimited(t *testing.T) {
	creds := stubCredentials{"u1": {AccessToken: "tok"}}
	client := &stubClient{}
	proxy := NewProxy(creds, &stubAdmitter{allow: false}, client)

	if _, err := proxy.Lookup(context.Background(), "u1"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
	if client.calls != 0 {
		t.Error("rate-limited lookup reached the upstream client")
	}
}

func TestProxy_LookupUpstreamError(t *testing.T) {
	creds := stubCredentials{"u1": {AccessToken: "tok"}}
	client := &stubClient{err: spotify.ErrUpstream}
	proxy := NewProxy(creds, &stubAdmitter{allow: true}, client)

	if _, err := proxy.Lookup(context.Background(), "u1"); !errors.Is(err, spotify.ErrUpstream) {
		t.Errorf("err = %v, want upstream error passed through", err)
	}
}
