package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/supportflow-io/supportflow/internal/auth"
	"github.com/supportflow-io/supportflow/pkg/protocol"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
	feedBuffer     = 32
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Access is gated by the bearer token, not by origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleFeed streams the caller's ticket events as JSON text frames until
// either side closes the connection. Events that cannot be written fast
// enough are dropped; clients pair the feed with polling.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if !isWebSocketUpgrade(r) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "websocket upgrade required"})
		return
	}
	userID := auth.UserID(r.Context())

	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("feed upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	out := make(chan protocol.Event, feedBuffer)
	sub, err := s.svc.Subscribe(userID, func(ev protocol.Event) {
		select {
		case out <- ev:
		default:
			s.logger.Warn("feed client too slow, event dropped", "owner", userID, "ticket", ev.Ticket.ID)
		}
	})
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	defer sub.Close()
	s.logger.Debug("feed client connected", "owner", userID)

	// Reader: only control frames are expected; it ends on close or error.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(feedPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			s.logger.Debug("feed client disconnected", "owner", userID)
			return
		case <-s.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(feedWriteWait))
			return
		case ev := <-out:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
		}
	}
}
