// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package websocket is a reference implementation of the "embedder
// re-broadcasts task events" contract: it fans validated,
// host-stamped events.TaskEvent values out to every connected websocket
// client. It takes no part in deciding what is valid -- pkg/hostabi's
// host_emit_event has already run events.Validate and
// events.WithHostAuthority before the executor forwards an event to
// Broadcast -- so this package only has to move bytes.
//
// Adapted from the project's websocket transport server: same
// upgrader/connection-set/write-deadline shape, but one-way (host to
// client only, no MessageHandler round trip) since a task event bridge
// has no inbound request to answer.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/agenthost/internal/logger"
	"github.com/sage-x-project/agenthost/pkg/events"
)

// Config tunes the bridge's connection handling.
type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// DefaultConfig matches the transport's write timeout and adds a
// ping interval keeping idle connections from being reaped by proxies.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		PingInterval: 25 * time.Second,
	}
}

// Bridge fans events.TaskEvent values out to every connected websocket
// client. Safe for concurrent use; Broadcast is typically called from
// the executor's onEvent callback.
type Bridge struct {
	cfg      Config
	log      logger.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// New builds a Bridge. log is required at construction time, matching
// this codebase's logging convention throughout.
func New(cfg Config, log logger.Logger) *Bridge {
	if cfg.WriteTimeout == 0 {
		cfg = DefaultConfig()
	}
	return &Bridge{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Handler upgrades incoming requests to websocket connections and holds
// them open for fan-out until the client disconnects. It never reads
// application messages from the client; the only inbound traffic it
// expects is pong frames and the close handshake.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn("bridge: upgrade failed", logger.Error(err))
			return
		}
		b.add(conn)
		defer b.remove(conn)
		defer func() { _ = conn.Close() }()

		b.pumpPings(r.Context(), conn)
	})
}

// pumpPings keeps the connection alive until the client disconnects or
// the request context is cancelled, sending periodic pings so the
// connection is detected as dead promptly rather than lingering.
func (b *Bridge) pumpPings(ctx context.Context, conn *websocket.Conn) {
	conn.SetPongHandler(func(string) error { return nil })

	ticker := time.NewTicker(b.cfg.PingInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast sends event to every connected client. A slow or dead
// connection is dropped (closed and removed) rather than allowed to
// block delivery to the rest; the bridge makes no delivery guarantee
// beyond best-effort fan-out -- the embedder relay sits outside the
// sandboxed ABI's concern.
func (b *Bridge) Broadcast(event events.TaskEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Error("bridge: marshal event", logger.Error(err))
		return
	}

	b.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(b.conns))
	for conn := range b.conns {
		targets = append(targets, conn)
	}
	b.mu.RUnlock()

	for _, conn := range targets {
		_ = conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.log.Warn("bridge: dropping dead connection", logger.Error(err))
			_ = conn.Close()
			b.remove(conn)
		}
	}
}

// ConnectionCount returns the number of currently connected clients.
func (b *Bridge) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Close closes every active connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
	b.conns = make(map[*websocket.Conn]struct{})
	return nil
}

func (b *Bridge) add(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[conn] = struct{}{}
}

func (b *Bridge) remove(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, conn)
}
