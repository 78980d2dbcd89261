// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"time"

	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
	"github.com/diamondlightsource/hebi-launcher/pkg/telemetry"
)

// Reaper tears down sessions whose last recorded activity is older than
// the inactivity period.
type Reaper struct {
	manager  *Manager
	interval time.Duration
	maxIdle  time.Duration
	now      func() time.Time
}

// NewReaper creates a reaper sweeping at the given interval.
func NewReaper(manager *Manager, interval, maxIdle time.Duration) *Reaper {
	return &Reaper{
		manager:  manager,
		interval: interval,
		maxIdle:  maxIdle,
		now:      time.Now,
	}
}

// Run sweeps until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep inspects every running session once and destroys the stale ones.
// A session pod with no activity entry is skipped; the entry appears when
// the session is launched or the next heartbeat response arrives.
func (r *Reaper) Sweep(ctx context.Context) {
	users, err := r.manager.RunningUsers(ctx)
	if err != nil {
		logger.Errorf("reaper failed to list sessions: %v", err)
		return
	}

	for _, fedid := range users {
		lastSeen, ok := r.manager.tracker.Get(fedid)
		if !ok {
			logger.Infof("no activity recorded yet for %s, skipping", fedid)
			continue
		}
		idle := r.now().Sub(lastSeen)
		if idle < r.maxIdle {
			continue
		}
		logger.Infof("session for %s idle for %s, destroying", fedid, idle)
		report := r.manager.Destroy(ctx, fedid)
		if report.WasSessionStopped {
			telemetry.SessionsReaped.Inc()
		}
	}
}
