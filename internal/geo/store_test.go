// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package geo

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func TestHaversine_SelfDistanceIsZero(t *testing.T) {
	points := [][2]float64{
		{0, 0},
		{51.5074, -0.1278},
		{-33.8688, 151.2093},
		{89.9, 179.9},
		{-89.9, -179.9},
	}

	for _, p := range points {
		if d := Haversine(p[0], p[1], p[0], p[1]); d != 0 {
			t.Errorf("Haversine(%v, %v) to itself = %f, want 0", p[0], p[1], d)
		}
	}
}

func TestHaversine_Symmetry(t *testing.T) {
	pairs := [][4]float64{
		{0, 0, 0, 1},
		{51.5074, -0.1278, 48.8566, 2.3522},
		{-33.8688, 151.2093, 35.6762, 139.6503},
	}

	for _, p := range pairs {
		ab := Haversine(p[0], p[1], p[2], p[3])
		ba := Haversine(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-6 {
			t.Errorf("Haversine not symmetric: %f vs %f", ab, ba)
		}
	}
}

func TestHaversine_OneDegreeAtEquator(t *testing.T) {
	// One degree of longitude at the equator is about 111195 meters.
	d := Haversine(0, 0, 0, 1)
	if math.Abs(d-111195) > 1 {
		t.Errorf("one degree at equator = %f m, want ~111195 m", d)
	}
}

func TestStore_UpsertReplaces(t *testing.T) {
	store := NewStore()

	if err := store.Upsert("u1", 10, 20, "t1"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert("u1", 30, 40, "t2"); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	all := store.All()
	if len(all) != 1 {
		t.Fatalf("expected exactly 1 sample, got %d", len(all))
	}

	sample := all["u1"]
	if sample.Latitude != 30 || sample.Longitude != 40 || sample.Timestamp != "t2" {
		t.Errorf("expected latest sample to win, got %+v", sample)
	}
}

func TestStore_UpsertRejectsIncomplete(t *testing.T) {
	store := NewStore()

	cases := []struct {
		name    string
		userID  string
		lat     float64
		lon     float64
		ts      string
		wantErr error
	}{
		{"missing user", "", 0, 0, "t1", ErrIncompleteSample},
		{"missing timestamp", "u1", 0, 0, "", ErrIncompleteSample},
		{"latitude too high", "u1", 91, 0, "t1", ErrInvalidCoordinate},
		{"latitude too low", "u1", -91, 0, "t1", ErrInvalidCoordinate},
		{"longitude too high", "u1", 0, 181, "t1", ErrInvalidCoordinate},
		{"longitude too low", "u1", 0, -181, "t1", ErrInvalidCoordinate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := store.Upsert(tc.userID, tc.lat, tc.lon, tc.ts); !errors.Is(err, tc.wantErr) {
				t.Errorf("Upsert = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if store.Count() != 0 {
		t.Errorf("rejected samples must not be stored, got %d entries", store.Count())
	}
}

func TestStore_DistancesFrom(t *testing.T) {
	store := NewStore()
	if err := store.Upsert("a", 0, 0, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert("b", 0, 1, "t2"); err != nil {
		t.Fatal(err)
	}

	distances, err := store.DistancesFrom("a")
	if err != nil {
		t.Fatalf("DistancesFrom failed: %v", err)
	}

	if _, ok := distances["a"]; ok {
		t.Error("distances must never include the origin user itself")
	}

	d, ok := distances["b"]
	if !ok {
		t.Fatal("expected distance to b")
	}
	if math.Abs(d-111195) > 1 {
		t.Errorf("distance a-b = %f m, want ~111195 m", d)
	}
}

func TestStore_DistancesFromUnknownUser(t *testing.T) {
	store := NewStore()
	if _, err := store.DistancesFrom("ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("DistancesFrom unknown = %v, want ErrUnknownUser", err)
	}
}

func TestStore_Remove(t *testing.T) {
	store := NewStore()
	if err := store.Upsert("u1", 1, 2, "t1"); err != nil {
		t.Fatal(err)
	}

	store.Remove("u1")
	store.Remove("absent") // no-op

	if store.Count() != 0 {
		t.Errorf("expected empty store after Remove, got %d", store.Count())
	}
}

func TestStore_ConcurrentUpserts(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Upsert("u1", float64(n%90), float64(n%180), "t")
			_, _ = store.DistancesFrom("u1")
			_ = store.All()
		}(i)
	}
	wg.Wait()

	if store.Count() != 1 {
		t.Errorf("expected a single sample after concurrent upserts, got %d", store.Count())
	}
}
