// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes the launcher's operational metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsLaunched counts successfully launched sessions.
	SessionsLaunched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hebi_sessions_launched_total",
			Help: "Total number of hebi sessions launched",
		},
	)

	// SessionsStopped counts sessions stopped by user request.
	SessionsStopped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hebi_sessions_stopped_total",
			Help: "Total number of hebi sessions stopped on request",
		},
	)

	// SessionsReaped counts sessions destroyed for inactivity.
	SessionsReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hebi_sessions_reaped_total",
			Help: "Total number of hebi sessions reaped for inactivity",
		},
	)

	// LaunchFailures counts sessions that failed to launch.
	LaunchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hebi_session_launch_failures_total",
			Help: "Total number of hebi session launches that failed",
		},
	)

	// TrackedSessions is the number of sessions in the activity map.
	TrackedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hebi_tracked_sessions",
			Help: "Number of sessions with a recorded activity timestamp",
		},
	)

	// ConnectedClients is the number of open event channel connections.
	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hebi_connected_clients",
			Help: "Number of browser clients connected to the event channel",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsLaunched,
		SessionsStopped,
		SessionsReaped,
		LaunchFailures,
		TrackedSessions,
		ConnectedClients,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
