// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wall

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/rampart/services/wall/audit"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// Security events are small JSON lines; 4KB buffers are plenty.
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// streamBuffer is how many events a slow client may fall behind before
// the feed starts dropping for it. Feed handlers run on the audit
// path's goroutine, so they must never block.
const streamBuffer = 64

const pingInterval = 30 * time.Second

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleEventStream upgrades the request and pushes security events to
// the client: first the recent-event replay buffer, then the live feed.
// Replay and live delivery can overlap by a message; subscribers should
// dedupe on audit_id if that matters to them.
func HandleEventStream(w *Wall) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		events := make(chan audit.SecurityEvent, streamBuffer)
		subID := w.Feed().Subscribe(func(ev audit.SecurityEvent) {
			select {
			case events <- ev:
			default:
				// Client is behind; drop rather than stall the trail.
			}
		})
		defer w.Feed().Unsubscribe(subID)
		slog.Info("Event stream client connected", "subscription", subID)

		for _, ev := range w.Feed().Recent() {
			if err := sendJSON(ws, ev); err != nil {
				return
			}
		}

		// Read pump: the client sends nothing we care about, but reading
		// is how gorilla surfaces close frames and dead peers.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()
		for {
			select {
			case ev := <-events:
				if err := sendJSON(ws, ev); err != nil {
					return
				}
			case <-ping.C:
				deadline := time.Now().Add(10 * time.Second)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					slog.Info("Event stream client disconnected", "subscription", subID)
					return
				}
			case <-done:
				slog.Info("Event stream client disconnected", "subscription", subID)
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}