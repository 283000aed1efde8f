package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/roach88/rollcall/internal/attendance"
)

const maxClientMessage = 512

// handleEvents streams change events for one sheet over a WebSocket.
//
// The subscription is opened before the upgrade so filter errors still get
// a plain HTTP status. When the subscription ends the server sends a close
// frame; when the peer goes away the subscription is closed.
func (s *Server) handleEvents(c *gin.Context) {
	sheet, err := sheetFromPath(c)
	if err != nil {
		writeError(c, err, false)
		return
	}

	sub, err := s.svc.Subscribe(c.Request.Context(), attendance.FilterFor(sheet))
	if err != nil {
		writeError(c, err, false)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	slog.Debug("event stream opened", "sheet", sheet.String(), "remote", c.ClientIP())

	gone := make(chan struct{})
	go s.readPump(conn, gone)
	s.writePump(conn, sub, gone)

	slog.Debug("event stream closed", "sheet", sheet.String(), "remote", c.ClientIP())
}

// readPump discards client frames and reports when the peer is gone. Pongs
// extend the read deadline.
func (s *Server) readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	wait := 2 * s.pingInterval
	conn.SetReadLimit(maxClientMessage)
	conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// writePump forwards events as JSON text frames and pings while idle.
func (s *Server) writePump(conn *websocket.Conn, sub attendance.Subscription, gone <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	events := sub.Events()
	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription ended")
				conn.WriteMessage(websocket.CloseMessage, msg)
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("event write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
