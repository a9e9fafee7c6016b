// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Package presence tracks which authenticated users are currently active
// and holds their upstream credentials.
//
// Credentials never leave this package through the public roster: List
// returns profiles only, and callers that need a token must ask for it
// explicitly by user ID.
package presence

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/metrics"
)

// Profile is the public identity of an active user. It is what the
// roster broadcast and the REST roster endpoint expose.
type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type entry struct {
	profile    Profile
	credential *oauth2.Token
	lastActive time.Time
}

// Registry is a mutex-guarded table of active users.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// MarkActive records a user as active with the given profile and upstream
// credential. Re-marking an already-active user replaces the stored
// profile and credential without error.
func (r *Registry) MarkActive(userID string, profile Profile, credential *oauth2.Token, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile.UserID = userID
	r.entries[userID] = &entry{
		profile:    profile,
		credential: credential,
		lastActive: now,
	}
	metrics.ActiveUsers.Set(float64(len(r.entries)))
}

// SetCredential replaces the stored upstream credential for an active
// user. Reports false when the user is not active.
func (r *Registry) SetCredential(userID string, credential *oauth2.Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		return false
	}
	e.credential = credential
	return true
}

// Remove marks a user inactive, dropping profile and credential. Reports
// whether the user was active; removing an absent user is a no-op.
func (r *Registry) Remove(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[userID]; !ok {
		return false
	}
	delete(r.entries, userID)
	metrics.ActiveUsers.Set(float64(len(r.entries)))
	return true
}

// Active reports whether a user is currently marked active.
func (r *Registry) Active(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[userID]
	return ok
}

// List returns the profiles of all active users sorted by user ID.
// Credentials are never part of the result.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]Profile, 0, len(r.entries))
	for _, e := range r.entries {
		profiles = append(profiles, e.profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].UserID < profiles[j].UserID
	})
	return profiles
}

// Credential returns the stored upstream credential for a user. The
// second return value reports whether the user is active.
func (r *Registry) Credential(userID string) (*oauth2.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.credential, true
}

// Touch refreshes the last-activity time of a user. No-op if absent.
func (r *Registry) Touch(userID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		e.lastActive = now
	}
}

// SweepIdle removes users whose last activity is older than maxIdle and
// returns their IDs, sorted. Used by the optional idle sweeper; manual
// logout remains the primary exit path.
func (r *Registry) SweepIdle(now time.Time, maxIdle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-maxIdle)
	var removed []string
	for id, e := range r.entries {
		if e.lastActive.Before(cutoff) {
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		metrics.ActiveUsers.Set(float64(len(r.entries)))
		sort.Strings(removed)
	}
	return removed
}

// Count returns the number of active users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
