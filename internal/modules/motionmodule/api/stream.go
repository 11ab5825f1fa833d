package api

import (
	"io"
	"net/http"
	"time"

	"github.com/geneseez/geneseez/internal/api"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	messageTypeSnapshot = "snapshot"
	messageTypeClosed   = "closed"
)

// WebSocketMessage represents a message sent via WebSocket
type WebSocketMessage struct {
	Type      string          `json:"type"`
	Data      *types.Snapshot `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Error     string          `json:"error,omitempty"`
}

// HandleWebSocket handles GET /api/v1/motion/sessions/:id/ws
//
// Pushes a snapshot message after every state change, starting with the
// current state. The connection closes when the session is torn down.
func (h *APIHandler) HandleWebSocket(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the handshake error
		h.logger.Warn("websocket upgrade failed", "session_id", ctrl.ID(), "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe, err := ctrl.Subscribe(c.Request.Context())
	if err != nil {
		_ = h.writeMessage(conn, WebSocketMessage{Type: messageTypeClosed, Error: err.Error(), Timestamp: time.Now().Unix()})
		return
	}
	defer unsubscribe()

	h.logger.Debug("websocket client connected", "session_id", ctrl.ID())

	// Reader goroutine: we don't expect messages, only detect disconnects
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			h.logger.Debug("websocket client disconnected", "session_id", ctrl.ID())
			return
		case <-ping.C:
			// A watching page counts as activity for the idle timeout
			if _, err := h.sessions.Get(ctrl.ID()); err != nil {
				h.logger.Debug("websocket session gone", "session_id", ctrl.ID(), "error", err)
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case snap, ok := <-updates:
			if !ok {
				_ = h.writeMessage(conn, WebSocketMessage{Type: messageTypeClosed, Timestamp: time.Now().Unix()})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := h.writeMessage(conn, WebSocketMessage{
				Type:      messageTypeSnapshot,
				Data:      &snap,
				Timestamp: time.Now().Unix(),
			}); err != nil {
				return
			}
		}
	}
}

// writeMessage sends a message to a WebSocket client
func (h *APIHandler) writeMessage(conn *websocket.Conn, message WebSocketMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(message)
}

// HandleEvents handles GET /api/v1/motion/sessions/:id/events
//
// Server-sent events variant of the websocket stream. Each event is named
// "snapshot" and carries the snapshot JSON.
func (h *APIHandler) HandleEvents(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	updates, unsubscribe, err := ctrl.Subscribe(c.Request.Context())
	if err != nil {
		api.RespondWithError(c, err)
		return
	}
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case snap, ok := <-updates:
			if !ok {
				c.SSEvent(messageTypeClosed, gin.H{"sessionId": ctrl.ID()})
				return false
			}
			c.SSEvent(messageTypeSnapshot, snap)
			return true
		}
	})
}
