// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Package tracks mediates now-playing lookups: it resolves the stored
// credential for an active user, enforces the per-user lookup budget,
// and normalizes the upstream answer.
package tracks

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/metrics"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/spotify"
)

var (
	// ErrUserNotActive indicates a lookup for a user with no stored credential.
	ErrUserNotActive = errors.New("user is not active")

	// ErrRateLimited indicates the user exhausted their lookup budget.
	ErrRateLimited = errors.New("track lookup rate limit exceeded")
)

// NowPlaying is the lookup result delivered to clients. Playing is false
// for an active user with nothing playing; the track fields are then empty.
type NowPlaying struct {
	UserID     string `json:"user_id"`
	SongName   string `json:"song_name,omitempty"`
	ArtistName string `json:"artist_name,omitempty"`
	AlbumImage string `json:"album_image,omitempty"`
	Playing    bool   `json:"playing"`
}

// CredentialSource resolves the upstream credential of an active user.
type CredentialSource interface {
	Credential(userID string) (*oauth2.Token, bool)
}

// Admitter decides whether a keyed request fits its rate budget.
type Admitter interface {
	Admit(key string, now time.Time) bool
}

// Proxy performs credentialed, rate-limited now-playing lookups.
type Proxy struct {
	credentials CredentialSource
	limiter     Admitter
	client      spotify.NowPlayingClient
	clock       func() time.Time
}

// NewProxy creates a lookup proxy.
func NewProxy(credentials CredentialSource, limiter Admitter, client spotify.NowPlayingClient) *Proxy {
	return &Proxy{
		credentials: credentials,
		limiter:     limiter,
		client:      client,
		clock:       time.Now,
	}
}

// Lookup fetches what userID is currently playing.
//
// The checks run in a fixed order: activity first, then the rate budget,
// then the upstream call. An inactive user is never charged against their
// lookup budget.
func (p *Proxy) Lookup(ctx context.Context, userID string) (*NowPlaying, error) {
	token, ok := p.credentials.Credential(userID)
	if !ok || token == nil {
		metrics.TrackLookups.WithLabelValues("not_active").Inc()
		return nil, ErrUserNotActive
	}

	if !p.limiter.Admit(userID, p.clock()) {
		metrics.TrackLookups.WithLabelValues("rate_limited").Inc()
		metrics.RateLimitRejections.Inc()
		logging.Debug().Str("user_id", userID).Msg("Track lookup rate limited")
		return nil, ErrRateLimited
	}

	track, err := p.client.CurrentlyPlaying(ctx, token)
	if err != nil {
		metrics.TrackLookups.WithLabelValues("upstream_error").Inc()
		logging.Err(err).Str("user_id", userID).Msg("Track lookup failed upstream")
		return nil, err
	}

	if track == nil {
		metrics.TrackLookups.WithLabelValues("no_track").Inc()
		return &NowPlaying{UserID: userID, Playing: false}, nil
	}

	metrics.TrackLookups.WithLabelValues("ok").Inc()
	return &NowPlaying{
		UserID:     userID,
		SongName:   track.SongName,
		ArtistName: track.ArtistName,
		AlbumImage: track.AlbumImage,
		Playing:    true,
	}, nil
}
