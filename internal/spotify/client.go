// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Package spotify talks to the Spotify Web API on behalf of active users.
//
// Only the currently-playing endpoint is used. Responses are normalized
// into the Track type; absence of a playing track is not an error.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/config"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/metrics"
)

// ErrUpstream indicates the Spotify API returned a non-success status or
// could not be reached at all.
var ErrUpstream = errors.New("spotify request failed")

// Track is the normalized currently-playing payload. Multiple artists
// are joined into a single comma-separated name.
type Track struct {
	SongName   string `json:"song_name"`
	ArtistName string `json:"artist_name"`
	AlbumImage string `json:"album_image,omitempty"`
}

// NowPlayingClient fetches the track a user is currently listening to.
// A (nil, nil) return means the user has nothing playing.
type NowPlayingClient interface {
	CurrentlyPlaying(ctx context.Context, token *oauth2.Token) (*Track, error)
}

// Client is the direct HTTP implementation of NowPlayingClient.
//
// A client-side token bucket smooths bursts toward the upstream API;
// it is independent of the per-user lookup limiter, which protects us,
// not Spotify.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Spotify client from configuration.
func NewClient(cfg config.SpotifyConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
	}
}

// currentlyPlayingResponse mirrors the subset of the Spotify payload we
// consume.
type currentlyPlayingResponse struct {
	IsPlaying bool `json:"is_playing"`
	Item      *struct {
		Name    string `json:"name"`
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
		Album struct {
			Images []struct {
				URL string `json:"url"`
			} `json:"images"`
		} `json:"album"`
	} `json:"item"`
}

// CurrentlyPlaying fetches the user's currently playing track. Returns
// (nil, nil) when nothing is playing (204, or 200 with a null item) and
// ErrUpstream for any non-success status.
func (c *Client) CurrentlyPlaying(ctx context.Context, token *oauth2.Token) (*Track, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/me/player/currently-playing", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	token.SetAuthHeader(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		logging.Warn().
			Int("status", resp.StatusCode).
			Msg("Spotify currently-playing request failed")
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var payload currentlyPlayingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}
	if payload.Item == nil {
		return nil, nil
	}

	names := make([]string, 0, len(payload.Item.Artists))
	for _, a := range payload.Item.Artists {
		names = append(names, a.Name)
	}

	track := &Track{
		SongName:   payload.Item.Name,
		ArtistName: strings.Join(names, ", "),
	}
	if len(payload.Item.Album.Images) > 0 {
		track.AlbumImage = payload.Item.Album.Images[0].URL
	}
	return track, nil
}
