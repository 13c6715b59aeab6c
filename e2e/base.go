package e2e

import (
	"bytes"
	"chat-hub/auth"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"
)

type BaseSuite struct {
	suite.Suite
	Config Config
	tokens *auth.TokenManager
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping end-to-end scenarios")
	}
	s.tokens = auth.NewTokenManager(s.Config.JWTSecret, time.Hour, clockwork.NewRealClock())
}

// Step prints a colorized header before running fn as a subtest.
func (s *BaseSuite) Step(name string, fn func()) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
	s.Run(name, fn)
}

func (s *BaseSuite) Token(identity domain.Identity) string {
	token, err := s.tokens.GenerateToken(identity)
	s.Require().NoError(err)
	return token
}

// Do sends a REST call as identity and decodes the response into out when non nil.
func (s *BaseSuite) Do(method, path string, as domain.Identity, body any, out any) int {
	var reader io.Reader
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, "http://"+s.Config.ServerAddr+path, reader)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.Token(as))

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		fmt.Fprintf(&logBuilder, "\nREQUEST: %s\nRESPONSE: %s", raw, payload)
	}
	s.T().Log(logBuilder.String())

	if out != nil {
		s.Require().NoError(json.Unmarshal(payload, out), string(payload))
	}
	return resp.StatusCode
}

func (s *BaseSuite) Dial(identity domain.Identity) *websocket.Conn {
	url := fmt.Sprintf("ws://%s/ws?token=%s", s.Config.ServerAddr, s.Token(identity))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	return conn
}

func (s *BaseSuite) Send(conn *websocket.Conn, name string, data any) {
	raw, err := json.Marshal(data)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteJSON(event.Frame{Event: name, Data: raw}))
}

// Await reads frames until one named name arrives and decodes its data into out.
func (s *BaseSuite) Await(conn *websocket.Conn, name string, out any) {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		s.Require().NoError(err, "waiting for %s", name)
		frame, err := event.Decode(raw)
		s.Require().NoError(err)
		if frame.Event != name {
			continue
		}
		if s.Config.DebugJSON {
			s.T().Logf("EVENT %s: %s", frame.Event, frame.Data)
		}
		s.Require().NoError(json.Unmarshal(frame.Data, out))
		return
	}
}
