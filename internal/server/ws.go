package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds every outbound frame write on the event stream.
const writeWait = 10 * time.Second

// defaultPingInterval keeps idle streams alive when no interval is
// configured.
const defaultPingInterval = 15 * time.Second

// handleEvents upgrades the request and streams feed events as JSON frames
// until the client disconnects or the feed shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, cancelSub := s.feed.Subscribe(s.cfg.Events.SubscriberBuffer)
	defer cancelSub()

	if s.metrics != nil {
		s.metrics.ClientConnected()
		defer s.metrics.ClientDisconnected()
	}

	s.logger.Debug("stream client connected", "remote", conn.RemoteAddr().String())

	// The stream is write-only; the read loop only notices disconnects and
	// services control frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingInterval := s.cfg.Server.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.logger.Debug("stream client disconnected", "remote", conn.RemoteAddr().String())
			return
		case ev, ok := <-sub:
			if !ok {
				// Feed shut down, start the close handshake.
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second),
				)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				return
			}
		}
	}
}
