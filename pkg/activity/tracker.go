// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package activity tracks the last sign of life of every hebi session and
// persists that state across launcher restarts. The tracker is the shared
// ground truth between the heartbeat broadcaster, which refreshes entries,
// and the reaper, which reads them to decide what to destroy.
package activity

import (
	"maps"
	"sync"
	"time"

	"github.com/diamondlightsource/hebi-launcher/pkg/telemetry"
)

// Tracker is the process-wide mapping of FedID to last-seen timestamp.
// Every access goes through the single mutex, so any two touches are
// totally ordered and a reaper read always observes the latest touch.
type Tracker struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Touch records that the user's session was just seen alive.
func (t *Tracker) Touch(fedid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[fedid] = t.now()
	telemetry.TrackedSessions.Set(float64(len(t.lastSeen)))
}

// Get returns the last-seen timestamp for a user. The second return is
// false when the user has produced no signal yet; absence is not the same
// as inactivity.
func (t *Tracker) Get(fedid string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.lastSeen[fedid]
	return ts, ok
}

// Remove deletes a user's entry. Removing an absent entry is a no-op.
func (t *Tracker) Remove(fedid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSeen, fedid)
	telemetry.TrackedSessions.Set(float64(len(t.lastSeen)))
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastSeen)
}

// Snapshot returns a shallow copy of the map for persistence.
func (t *Tracker) Snapshot() map[string]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.lastSeen)
}

// Merge folds a persisted snapshot into the tracker. Persisted values win
// on collision: this runs at start-up, when the in-memory map holds nothing
// worth keeping.
func (t *Tracker) Merge(persisted map[string]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	maps.Copy(t.lastSeen, persisted)
	telemetry.TrackedSessions.Set(float64(len(t.lastSeen)))
}
