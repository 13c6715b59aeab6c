package event

import (
	"chat-hub/domain"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncode_Message_Shape(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sender := domain.Identity{ID: "u1", Username: "alice"}

	// Given a stored message
	msg := domain.Message{ID: "m1", SenderID: "u1", Content: "hi", CreatedAt: at}

	// When it is encoded as a realtime frame
	raw, err := Encode(NewMessagePosted("c1", sender, msg))
	req.NoError(err)

	// Then the envelope carries the event name and the nested message
	var got map[string]any
	req.NoError(json.Unmarshal(raw, &got))
	req.Equal("message", got["event"])
	data := got["data"].(map[string]any)
	req.Equal("c1", data["chatId"])
	body := data["message"].(map[string]any)
	req.Equal("hi", body["content"])
	req.Equal(map[string]any{"id": "u1", "username": "alice"}, body["sender"])
	req.Equal("2026-01-02T03:04:05Z", body["timestamp"])
}

func TestEncode_ActiveUsers_Is_Array(t *testing.T) {
	req := require.New(t)

	raw, err := Encode(ActiveUsers{"u1", "u2"})
	req.NoError(err)
	req.JSONEq(`{"event":"activeUsers","data":["u1","u2"]}`, string(raw))
}

func TestDecode_Inbound(t *testing.T) {
	req := require.New(t)

	f, err := Decode([]byte(`{"event":"typing","data":{"chatId":"c1","isTyping":true}}`))
	req.NoError(err)
	req.Equal("typing", f.Event)

	var typing domain.Typing
	req.NoError(json.Unmarshal(f.Data, &typing))
	req.Equal(domain.Typing{ChatID: "c1", IsTyping: true}, typing)

	_, err = Decode([]byte(`not json`))
	req.Error(err)
}
