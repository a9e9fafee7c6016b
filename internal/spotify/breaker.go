// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package spotify

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/metrics"
)

const breakerName = "spotify"

// BreakerClient wraps a NowPlayingClient with a circuit breaker so a
// failing Spotify API cannot tie up every track lookup in timeouts.
//
// A (nil, nil) no-track result counts as success: the upstream answered,
// the user just has nothing playing.
type BreakerClient struct {
	inner NowPlayingClient
	cb    *gobreaker.CircuitBreaker[*Track]
}

// NewBreakerClient wraps inner with circuit breaking.
func NewBreakerClient(inner NowPlayingClient) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(breakerStateValue(gobreaker.StateClosed))

	return &BreakerClient{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[*Track](settings),
	}
}

// CurrentlyPlaying delegates through the breaker. When the breaker is
// open the call fails fast with ErrUpstream.
func (b *BreakerClient) CurrentlyPlaying(ctx context.Context, token *oauth2.Token) (*Track, error) {
	track, err := b.cb.Execute(func() (*Track, error) {
		return b.inner.CurrentlyPlaying(ctx, token)
	})
	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: circuit open", ErrUpstream)
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	return track, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
