package sink

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestConnPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { _ = serverConn.Close() })
	return serverConn, clientConn
}

var alice = domain.Identity{ID: "u1", Username: "alice"}

func TestWebSocketSink_Consume_Writes_Frame(t *testing.T) {
	req := require.New(t)
	server, client := newTestConnPair(t)
	s := NewWebSocketSink(server, alice, clockwork.NewRealClock(), slog.Default(), Config{
		BufferSize:   4,
		WriteTimeout: time.Second,
		PingInterval: time.Minute,
	})
	t.Cleanup(s.Close)

	// When an event is consumed
	err := s.Consume(context.Background(), event.UserTyping{ChatID: "c1", UserID: "u2", IsTyping: true})
	req.NoError(err)

	// Then the client reads it as a frame
	req.NoError(client.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, raw, err := client.ReadMessage()
	req.NoError(err)
	frame, err := event.Decode(raw)
	req.NoError(err)
	req.Equal("typing", frame.Event)
	req.JSONEq(`{"chatId":"c1","userId":"u2","isTyping":true}`, string(frame.Data))

	req.Equal(alice, s.Identity())
	req.NotEmpty(s.ID())
}

func TestWebSocketSink_Full_Queue_Is_A_Slow_Consumer(t *testing.T) {
	req := require.New(t)
	server, _ := newTestConnPair(t)
	// Given a sink whose writer is not running
	s := newWebSocketSink(server, alice, clockwork.NewRealClock(), slog.Default(), Config{BufferSize: 1})

	// When the queue overflows
	req.NoError(s.Consume(context.Background(), event.ActiveUsers{"u1"}))
	err := s.Consume(context.Background(), event.ActiveUsers{"u1"})

	// Then the sink refuses and shuts itself down
	req.ErrorIs(err, errors.ErrSlowConsumer)
	req.Eventually(func() bool {
		return errors.Is(s.Consume(context.Background(), event.ActiveUsers{}), errors.ErrSinkClosed)
	}, time.Second, 10*time.Millisecond)
}

func TestWebSocketSink_Close_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	server, client := newTestConnPair(t)
	s := NewWebSocketSink(server, alice, clockwork.NewRealClock(), slog.Default(), Config{BufferSize: 4})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()

	req.ErrorIs(s.Consume(context.Background(), event.ActiveUsers{}), errors.ErrSinkClosed)
	req.NoError(client.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := client.ReadMessage()
	req.Error(err)
}

func TestWebSocketSink_CloseGracefully_Sends_Reason(t *testing.T) {
	req := require.New(t)
	server, client := newTestConnPair(t)
	s := NewWebSocketSink(server, alice, clockwork.NewRealClock(), slog.Default(), Config{
		BufferSize:   4,
		WriteTimeout: time.Second,
	})

	s.CloseGracefully("server shutting down")

	req.NoError(client.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	req.True(errors.As(err, &closeErr))
	req.Equal(websocket.CloseNormalClosure, closeErr.Code)
	req.Equal("server shutting down", closeErr.Text)
	s.Close()
}

func TestWebSocketSink_CloseGracefully_Returns_While_Writer_Runs(t *testing.T) {
	req := require.New(t)
	server, client := newTestConnPair(t)
	// Given a sink whose writer is busy with traffic and pings
	s := NewWebSocketSink(server, alice, clockwork.NewRealClock(), slog.Default(), Config{
		BufferSize:   8,
		WriteTimeout: time.Second,
		PingInterval: 10 * time.Millisecond,
	})
	req.NoError(s.Consume(context.Background(), event.ActiveUsers{"u1"}))

	// When it is closed gracefully while a plain Close races with it
	finished := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); s.CloseGracefully("bye") }()
		go func() { defer wg.Done(); s.Close() }()
		wg.Wait()
		close(finished)
	}()

	// Then both calls return and the sink is closed
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		req.FailNow("close did not return")
	}
	req.ErrorIs(s.Consume(context.Background(), event.ActiveUsers{}), errors.ErrSinkClosed)

	req.NoError(client.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		if _, _, err := client.ReadMessage(); err != nil {
			break
		}
	}
}

func TestWebSocketSink_Canceled_Context(t *testing.T) {
	req := require.New(t)
	server, _ := newTestConnPair(t)
	s := newWebSocketSink(server, alice, clockwork.NewRealClock(), slog.Default(), Config{BufferSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req.ErrorIs(s.Consume(ctx, event.ActiveUsers{}), context.Canceled)
}
