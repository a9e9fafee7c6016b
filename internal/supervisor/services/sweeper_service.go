// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package services

import (
	"context"
	"time"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
)

// IdleSweeper matches the presence registry's sweep method.
type IdleSweeper interface {
	SweepIdle(now time.Time, maxIdle time.Duration) []string
}

// PositionRemover matches the position store's removal method.
type PositionRemover interface {
	Remove(userID string)
}

// RosterBroadcaster pushes the roster to websocket clients after a sweep
// changes it.
type RosterBroadcaster interface {
	BroadcastRoster()
}

// SweeperService periodically removes users whose last activity is older
// than the configured idle limit. It is opt-in: the default behavior
// keeps users active until they log out or disconnect.
type SweeperService struct {
	registry  IdleSweeper
	positions PositionRemover
	roster    RosterBroadcaster
	interval  time.Duration
	maxIdle   time.Duration
	name      string
}

// NewSweeperService creates the sweeper service wrapper.
func NewSweeperService(registry IdleSweeper, positions PositionRemover, roster RosterBroadcaster, interval, maxIdle time.Duration) *SweeperService {
	return &SweeperService{
		registry:  registry,
		positions: positions,
		roster:    roster,
		interval:  interval,
		maxIdle:   maxIdle,
		name:      "presence-sweeper",
	}
}

// Serve implements suture.Service: tick, sweep, broadcast on change.
func (s *SweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			removed := s.registry.SweepIdle(now, s.maxIdle)
			if len(removed) == 0 {
				continue
			}
			for _, userID := range removed {
				s.positions.Remove(userID)
			}
			s.roster.BroadcastRoster()
			logging.Info().
				Strs("user_ids", removed).
				Dur("max_idle", s.maxIdle).
				Msg("swept idle users")
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *SweeperService) String() string {
	return s.name
}
