package server

import (
	"chat-hub/auth"
	"chat-hub/sink"
	"net/http"

	"github.com/gorilla/websocket"
)

const maxFrameBytes = 64 * 1024

// serveWS authenticates the handshake before upgrading, so a bad token
// is a plain 401 and never becomes a connection.
// The handler goroutine is the only reader of the socket; it returns on
// read failure, which is also how a closed sink surfaces.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.hub.Authenticate(r.Context(), auth.HandshakeToken(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "user_id", identity.ID, "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	out := sink.NewWebSocketSink(conn, identity, s.clock, s.log, s.config.Sink)
	session := s.hub.Connect(r.Context(), out)
	defer func() {
		s.hub.Disconnect(session)
		out.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Websocket closed unexpectedly", "conn_id", out.ID(), "error", err)
			}
			return
		}
		s.hub.Dispatch(session, raw)
	}
}
