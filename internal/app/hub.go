// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/blockpath/internal/navigation"
)

const wsWriteTimeout = 5 * time.Second

// wsClient serializes writes to one connection. Snapshot pushes go through
// pending, which holds at most the newest undelivered snapshot.
type wsClient struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	pending chan snapshotMessage
	done    chan struct{}
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:    conn,
		pending: make(chan snapshotMessage, 1),
		done:    make(chan struct{}),
	}
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

// offer queues msg without blocking, replacing an older queued snapshot.
// Callers must serialize offers.
func (c *wsClient) offer(msg snapshotMessage) {
	select {
	case c.pending <- msg:
		return
	default:
	}
	select {
	case <-c.pending:
	default:
	}
	select {
	case c.pending <- msg:
	default:
	}
}

// snapshotMessage is the server push sent to websocket clients.
type snapshotMessage struct {
	Type string `json:"type"`
	navigation.Snapshot
}

// errorMessage reports a failed client request on its own connection.
type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Hub stores all active WebSocket connections keyed by connection ID.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	logger  *slog.Logger

	// broadcastMu orders snapshot pushes; lastSeq drops stale ones
	broadcastMu sync.Mutex
	lastSeq     uint64
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*wsClient),
		logger:  logger,
	}
}

// Add registers a new connection and returns its generated ID.
func (h *Hub) Add(conn *websocket.Conn) string {
	id := uuid.NewString()
	c := newWSClient(conn)
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	go h.writeLoop(id, c)
	h.logger.Info("ws_registered", "id", id, "remote", conn.RemoteAddr().String())
	return id
}

// writeLoop delivers queued snapshots until the connection is removed.
func (h *Hub) writeLoop(id string, c *wsClient) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.pending:
			if err := c.writeJSON(msg); err != nil {
				h.logger.Warn("ws_send_failed", "id", id, "error", err)
				h.Remove(id)
				return
			}
		}
	}
}

// Remove deletes and closes a connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		close(c.done)
		_ = c.conn.Close()
		delete(h.clients, id)
		h.logger.Info("ws_removed", "id", id)
	}
}

// Send transmits a JSON message to one connection.
func (h *Hub) Send(id string, msg any) error {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return nil // client already gone
	}
	return c.writeJSON(msg)
}

// BroadcastSnapshot queues snap for every connection unless a newer snapshot
// was already broadcast. It never waits on a connection: a slow client only
// receives the newest snapshot once its previous write completes.
func (h *Hub) BroadcastSnapshot(snap navigation.Snapshot) {
	h.broadcastMu.Lock()
	defer h.broadcastMu.Unlock()

	if snap.Seq <= h.lastSeq {
		return
	}
	h.lastSeq = snap.Seq

	msg := snapshotMessage{Type: "snapshot", Snapshot: snap}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.offer(msg)
	}
}

// ListConnected returns all connected IDs.
func (h *Hub) ListConnected() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.clients))
	for k := range h.clients {
		keys = append(keys, k)
	}
	return keys
}

// CloseAll closes every connection.
func (h *Hub) CloseAll() {
	for _, id := range h.ListConnected() {
		h.Remove(id)
	}
}
