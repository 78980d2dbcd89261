// SPDX-FileCopyrightText: Copyright 2026 Diamond Light Source Ltd.
// SPDX-License-Identifier: Apache-2.0

// Package heartbeat runs the websocket channel between the launcher and
// the session browser clients. The launcher periodically asks every
// connected client whether it is still active; each response refreshes the
// owning user's entry in the activity map, which is what keeps the reaper
// away from their session.
package heartbeat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/diamondlightsource/hebi-launcher/pkg/activity"
	"github.com/diamondlightsource/hebi-launcher/pkg/labels"
	"github.com/diamondlightsource/hebi-launcher/pkg/logger"
	"github.com/diamondlightsource/hebi-launcher/pkg/telemetry"
)

const (
	// EventHeartbeatRequest is broadcast to every connected client.
	EventHeartbeatRequest = "heartbeat-request"

	// EventHeartbeatResponse is a client's answer to a heartbeat request.
	EventHeartbeatResponse = "heartbeat-response"

	// EventSessionConnect is sent by a client when its page first loads.
	EventSessionConnect = "session-connect"

	// heartbeatPrompt is the payload of every heartbeat request.
	heartbeatPrompt = "Are you active?"

	writeTimeout = 10 * time.Second
)

// Message is the envelope exchanged over the event channel. Outbound
// messages carry Data; inbound ones carry Client, the session URL the
// browser is connected to.
type Message struct {
	Event  string `json:"event"`
	Data   string `json:"data,omitempty"`
	Client string `json:"client,omitempty"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// Hub tracks connected clients and fans heartbeat requests out to them.
type Hub struct {
	tracker  *activity.Tracker
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a hub refreshing the given tracker. Sessions run on a
// different origin than the launcher, so cross-origin upgrades are
// accepted.
func NewHub(tracker *activity.Tracker, interval time.Duration) *Hub {
	return &Hub{
		tracker:  tracker,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the HTTP handler upgrading connections onto the event
// channel.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Errorf("websocket upgrade failed: %v", err)
			return
		}
		c := &client{conn: conn}
		h.add(c)
		defer h.remove(c)

		h.readLoop(c)
	}
}

// Run broadcasts a heartbeat request every interval until the context is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.Broadcast()
		}
	}
}

// Broadcast sends a heartbeat request to every connected client. Clients
// that cannot be written to are dropped; a live client will reconnect.
func (h *Hub) Broadcast() {
	msg := &Message{Event: EventHeartbeatRequest, Data: heartbeatPrompt}
	for _, c := range h.snapshot() {
		if err := c.write(msg); err != nil {
			logger.Infof("dropping unresponsive websocket client: %v", err)
			c.conn.Close()
			h.remove(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) readLoop(c *client) {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Infof("websocket client read failed: %v", err)
			}
			return
		}
		h.handle(&msg)
	}
}

// handle refreshes the activity entry named by an inbound event. Events
// with an unparseable client URL are dropped; there is no user to
// attribute them to.
func (h *Hub) handle(msg *Message) {
	switch msg.Event {
	case EventSessionConnect, EventHeartbeatResponse:
		fedid, err := labels.UserFromSessionURL(msg.Client)
		if err != nil {
			logger.Warnf("discarding %s event: %v", msg.Event, err)
			return
		}
		logger.Infof("activity from %s (%s)", fedid, msg.Event)
		h.tracker.Touch(fedid)
	default:
		logger.Warnf("unknown websocket event %q", msg.Event)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	telemetry.ConnectedClients.Set(float64(len(h.clients)))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	telemetry.ConnectedClients.Set(float64(len(h.clients)))
}

func (h *Hub) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) closeAll() {
	for _, c := range h.snapshot() {
		c.conn.Close()
	}
}
