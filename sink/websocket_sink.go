package sink

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

type Config struct {
	BufferSize   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// WebSocketSink is the outbound side of one websocket connection.
// Events are encoded on Consume and written by a single writer goroutine,
// the only one allowed to write on the socket.
type WebSocketSink struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	clock    clockwork.Clock
	log      *slog.Logger
	config   Config
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWebSocketSink(conn *websocket.Conn, identity domain.Identity, clock clockwork.Clock, log *slog.Logger, config Config) *WebSocketSink {
	s := newWebSocketSink(conn, identity, clock, log, config)
	s.configurePongHandler()
	s.wg.Add(1)
	go s.run()
	return s
}

func newWebSocketSink(conn *websocket.Conn, identity domain.Identity, clock clockwork.Clock, log *slog.Logger, config Config) *WebSocketSink {
	if config.BufferSize <= 0 {
		config.BufferSize = 1
	}
	return &WebSocketSink{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		clock:    clock,
		log:      log.With("user_id", identity.ID),
		config:   config,
		send:     make(chan []byte, config.BufferSize),
		done:     make(chan struct{}),
	}
}

func (s *WebSocketSink) ID() string {
	return s.id
}

func (s *WebSocketSink) Identity() domain.Identity {
	return s.identity
}

// Consume never blocks.
// A full queue means the client cannot keep up: the connection is closed
// and the reader side observes the disconnect.
func (s *WebSocketSink) Consume(ctx context.Context, e event.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return errors.ErrSinkClosed
	default:
	}

	bytes, err := event.Encode(e)
	if err != nil {
		return err
	}

	select {
	case s.send <- bytes:
		return nil
	case <-s.done:
		return errors.ErrSinkClosed
	default:
		s.log.Warn("Outbound queue full, dropping connection", "conn_id", s.id, "event", e.Name())
		go s.Close()
		return errors.ErrSlowConsumer
	}
}

func (s *WebSocketSink) run() {
	defer s.wg.Done()

	var pings <-chan time.Time
	if s.config.PingInterval > 0 {
		ticker := s.clock.NewTicker(s.config.PingInterval)
		defer ticker.Stop()
		pings = ticker.Chan()
	}

	for {
		select {
		case msg := <-s.send:
			s.updateWriteDeadline()
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debug("Write failed", "conn_id", s.id, "error", err)
				s.abort()
				return
			}
		case <-pings:
			s.updateWriteDeadline()
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug("Ping failed", "conn_id", s.id, "error", err)
				s.abort()
				return
			}
		case <-s.done:
			return
		}
	}
}

// stop closes done once and reports whether this call did it.
// It never waits on the writer, so the writer may call it too.
func (s *WebSocketSink) stop() bool {
	stopped := false
	s.stopOnce.Do(func() {
		close(s.done)
		stopped = true
	})
	return stopped
}

// abort is the writer's exit path after a failed write.
func (s *WebSocketSink) abort() {
	s.stop()
	_ = s.conn.Close()
}

// Close stops the writer and closes the socket. Safe to call many times.
func (s *WebSocketSink) Close() {
	s.stop()
	s.wg.Wait()
	_ = s.conn.Close()
}

// CloseGracefully sends a close frame with reason before closing the socket.
// Only the call that stops the sink writes the frame.
func (s *WebSocketSink) CloseGracefully(reason string) {
	first := s.stop()
	s.wg.Wait()
	if first {
		s.updateWriteDeadline()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
	}
	_ = s.conn.Close()
}

func (s *WebSocketSink) configurePongHandler() {
	if s.config.PingInterval <= 0 {
		return
	}
	s.updateReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.updateReadDeadline()
		return nil
	})
}

func (s *WebSocketSink) updateWriteDeadline() {
	if s.config.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(s.clock.Now().Add(s.config.WriteTimeout))
	}
}

// A client missing two pings in a row is considered gone.
func (s *WebSocketSink) updateReadDeadline() {
	_ = s.conn.SetReadDeadline(s.clock.Now().Add(2 * s.config.PingInterval))
}
