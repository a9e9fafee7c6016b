// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Package ratelimit implements per-key sliding-window admission control.
//
// Each key keeps an ordered window of admitted request timestamps.
// Admission discards expired entries, rejects when the window is full,
// and records the new timestamp otherwise. Rejection is a boolean, not
// an error: callers decide how to surface it.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits or rejects requests per key within a trailing window.
//
// A single mutex guards all windows. The read-then-append step on a key's
// window must be atomic across concurrent callers, and at this server's
// scale one lock is cheaper than a lock per key.
type Limiter struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	windows   map[string][]time.Time
	stopClean chan struct{}
	stopOnce  sync.Once
}

// NewLimiter creates a limiter admitting at most max requests per key
// within the trailing window.
func NewLimiter(max int, window time.Duration) *Limiter {
	l := &Limiter{
		max:       max,
		window:    window,
		windows:   make(map[string][]time.Time),
		stopClean: make(chan struct{}),
	}
	go l.startCleanup(window)
	return l
}

// Admit reports whether a request for key at time now is admitted.
// Timestamps at or before now-window are evicted first; the request is
// recorded only when admitted.
func (l *Limiter) Admit(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	window := l.windows[key]

	// Expired entries sit at the front; find the first still-live one.
	keep := 0
	for keep < len(window) && !window[keep].After(cutoff) {
		keep++
	}
	window = window[keep:]

	if len(window) >= l.max {
		l.windows[key] = window
		return false
	}

	l.windows[key] = append(window, now)
	return true
}

// Pending returns the number of live entries for a key at time now.
// Intended for tests and introspection; does not mutate the window.
func (l *Limiter) Pending(key string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	count := 0
	for _, ts := range l.windows[key] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

// startCleanup periodically drops keys whose windows have fully expired,
// so identities that stop issuing requests do not leak memory.
func (l *Limiter) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopClean:
			return
		}
	}
}

// cleanup removes keys with no live entries at time now.
func (l *Limiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	for key, window := range l.windows {
		if len(window) == 0 || !window[len(window)-1].After(cutoff) {
			delete(l.windows, key)
		}
	}
}

// Stop terminates the background cleanup goroutine. Safe to call more
// than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopClean)
	})
}
