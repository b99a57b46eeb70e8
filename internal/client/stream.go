package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tidemarket/escrow/internal/event"
)

// StreamConfig configures the event stream subscriber.
type StreamConfig struct {
	// URL is the ws:// or wss:// endpoint of the event stream.
	URL string

	// ReconnectBaseWait is the initial delay before redialing a lost
	// connection. The delay doubles per failed attempt up to
	// ReconnectMaxWait.
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration

	// Buffer is the capacity of the delivery channel.
	Buffer int
}

// DefaultStreamConfig returns stream defaults for the given endpoint.
func DefaultStreamConfig(wsURL string) StreamConfig {
	return StreamConfig{
		URL:               wsURL,
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  30 * time.Second,
		Buffer:            64,
	}
}

// StreamURL converts an API base URL into the event stream endpoint.
func StreamURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = "/v1/events"
	return u.String(), nil
}

// Stream subscribes to the marketplace event stream over WebSocket and
// redials automatically when the connection drops.
type Stream struct {
	cfg    StreamConfig
	logger *slog.Logger

	out chan event.Event

	connMu sync.Mutex
	conn   *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStream creates a stream subscriber. It does not connect until Start.
func NewStream(cfg StreamConfig, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}

	return &Stream{
		cfg:    cfg,
		logger: logger,
		out:    make(chan event.Event, cfg.Buffer),
	}
}

// Events returns the delivery channel. It is closed after Stop.
func (s *Stream) Events() <-chan event.Event {
	return s.out
}

// Start dials the stream and begins delivering events.
func (s *Stream) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.cfg.URL, nil)
	if err != nil {
		s.cancel()
		return fmt.Errorf("dial event stream: %w", err)
	}
	s.setConn(conn)

	s.wg.Add(1)
	go s.run(conn)

	s.logger.Info("event stream connected", "url", s.cfg.URL)
	return nil
}

// Stop closes the connection and waits for delivery to finish.
func (s *Stream) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeConn()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("event stream closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) setConn(conn *websocket.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

// closeConn starts the close handshake and tears down the socket, which
// also unblocks a pending read.
func (s *Stream) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return
	}

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = s.conn.Close()
	s.conn = nil
}

// run delivers events from the current connection and redials with
// exponential backoff when it drops.
func (s *Stream) run(conn *websocket.Conn) {
	defer s.wg.Done()
	defer close(s.out)

	for {
		err := s.readLoop(conn)
		s.closeConn()

		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("event stream disconnected", "error", err)

		conn = s.redial()
		if conn == nil {
			return
		}
	}
}

// readLoop forwards decoded events until the connection fails.
func (s *Stream) readLoop(conn *websocket.Conn) error {
	for {
		var ev event.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}

		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case s.out <- ev:
		}
	}
}

// redial reconnects with exponential backoff. It returns nil once the
// stream context is canceled.
func (s *Stream) redial() *websocket.Conn {
	wait := s.cfg.ReconnectBaseWait

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-time.After(wait):
		}

		conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.cfg.URL, nil)
		if err != nil {
			s.logger.Warn("event stream reconnect failed", "error", err, "wait", wait)
			wait *= 2
			if wait > s.cfg.ReconnectMaxWait {
				wait = s.cfg.ReconnectMaxWait
			}
			continue
		}

		s.setConn(conn)
		s.logger.Info("event stream reconnected", "url", s.cfg.URL)
		return conn
	}
}
