// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Package geo owns the most-recent-position table and the pairwise
// distance computation between tracked users.
//
// One sample is kept per user: a new sample replaces the previous one,
// no history is retained, and nothing survives a process restart.
package geo

import (
	"errors"
	"sync"
)

var (
	// ErrIncompleteSample indicates a sample with a missing user ID or timestamp.
	ErrIncompleteSample = errors.New("incomplete position sample")

	// ErrInvalidCoordinate indicates a latitude or longitude outside its valid range.
	ErrInvalidCoordinate = errors.New("coordinate out of range")

	// ErrUnknownUser indicates a distance query for a user with no stored sample.
	ErrUnknownUser = errors.New("no position sample for user")
)

// Sample is the latest known position of a single user.
type Sample struct {
	UserID    string  `json:"user_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

// Store is a mutex-guarded table of the latest position per user.
//
// Handlers for different clients run concurrently, so every access goes
// through the lock. Cost of the all-pairs distance computation is O(n)
// per update, which is fine at the intended scale (a co-located group,
// not a fleet).
type Store struct {
	mu      sync.RWMutex
	samples map[string]Sample
}

// NewStore creates an empty position store.
func NewStore() *Store {
	return &Store{samples: make(map[string]Sample)}
}

// Upsert records the latest sample for a user, replacing any prior one.
// Samples with a missing user ID or timestamp are rejected with
// ErrIncompleteSample; out-of-range coordinates with ErrInvalidCoordinate.
func (s *Store) Upsert(userID string, lat, lon float64, timestamp string) error {
	if userID == "" || timestamp == "" {
		return ErrIncompleteSample
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[userID] = Sample{
		UserID:    userID,
		Latitude:  lat,
		Longitude: lon,
		Timestamp: timestamp,
	}
	return nil
}

// Remove drops the stored sample for a user. No-op if absent.
func (s *Store) Remove(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.samples, userID)
}

// All returns a copy of the full position table keyed by user ID.
func (s *Store) All() map[string]Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Sample, len(s.samples))
	for id, sample := range s.samples {
		out[id] = sample
	}
	return out
}

// Count returns the number of tracked users.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// DistancesFrom computes the great-circle distance in meters from the
// given user's latest sample to every other stored sample. The result
// never contains the user itself. Returns ErrUnknownUser if the user has
// no stored sample.
func (s *Store) DistancesFrom(userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	origin, ok := s.samples[userID]
	if !ok {
		return nil, ErrUnknownUser
	}

	distances := make(map[string]float64, len(s.samples)-1)
	for id, sample := range s.samples {
		if id == userID {
			continue
		}
		distances[id] = Haversine(origin.Latitude, origin.Longitude, sample.Latitude, sample.Longitude)
	}
	return distances, nil
}
