package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nyashahama/climate-risk-backend/internal/pipeline"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// ─── GET /api/state/stream ────────────────────────────────────────────────────

// handleStateStream upgrades to a websocket and pushes a state snapshot on
// every pipeline change, starting with the current one. Incoming messages are
// read only to detect the close.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("stream: upgrade failed", "error", err, logField(r))
		return
	}

	updates, cancel := s.pipeline.Subscribe()
	closed := make(chan struct{})

	go s.readPump(conn, closed)
	s.writePump(conn, updates, closed)

	cancel()
	_ = conn.Close()
	s.logger.Debug("stream: client disconnected", logField(r))
}

// readPump discards client messages and closes done when the peer goes away
// or stops answering pings.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("stream: read error", "error", err)
			}
			return
		}
	}
}

// writePump forwards snapshots and keeps the connection alive with pings. It
// returns when the client disconnects or a write fails.
func (s *Server) writePump(conn *websocket.Conn, updates <-chan pipeline.State, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case st, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(newStateResponse(st)); err != nil {
				s.logger.Debug("stream: write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
