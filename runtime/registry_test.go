package runtime

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type Conn struct {
	id       string
	identity domain.Identity
}

func (c Conn) ID() string { return c.id }
func (c Conn) Identity() domain.Identity { return c.identity }
func (c Conn) Consume(_ context.Context, _ event.DomainEvent) error { return nil }

func newConn(id, userID string) Conn {
	return Conn{id: id, identity: domain.Identity{ID: userID, Username: userID}}
}

func TestRegistry_Register_First_And_Last(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	laptop := newConn("c1", "alice")
	phone := newConn("c2", "alice")

	// Given no user is connected
	req.Empty(registry.ActiveIdentities())

	// When alice connects from two devices
	req.True(registry.Register(laptop))
	req.False(registry.Register(phone))

	// Then she is online once with two handles
	req.Equal([]string{"alice"}, registry.ActiveIdentities())
	req.Len(registry.ConnectionsFor("alice"), 2)

	// When the devices disconnect one after the other
	req.False(registry.Unregister(laptop))
	req.True(registry.Unregister(phone))

	// Then she is offline
	req.Empty(registry.ActiveIdentities())
	req.Nil(registry.ConnectionsFor("alice"))
}

func TestRegistry_Register_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	conn := newConn("c1", "alice")

	req.True(registry.Register(conn))
	req.False(registry.Register(conn))
	req.True(registry.Unregister(conn))
	req.False(registry.Unregister(conn))
}

func TestRegistry_Join_One_Room_Multiple_Participants(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := newConn("c1", "alice")
	bob := newConn("c2", "bob")
	registry.Register(alice)
	registry.Register(bob)

	// When participants join a chat
	registry.Join("chat-1", alice)
	registry.Join("chat-1", bob)

	// Then both are members
	members := registry.Members("chat-1")
	req.Len(members, 2)
	req.Contains(members, alice)
	req.Contains(members, bob)

	// When one leaves
	registry.Leave("chat-1", alice)

	// Then only one participant left
	req.Equal([]string{"c2"}, ids(registry.Members("chat-1")))
}

func TestRegistry_Unregister_Leaves_Every_Channel(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := newConn("c1", "alice")
	registry.Register(alice)
	registry.Join("chat-1", alice)
	registry.Join("chat-2", alice)

	// When the connection closes
	registry.Unregister(alice)

	// Then no channel keeps it and no empty set is left
	req.Nil(registry.Members("chat-1"))
	req.Nil(registry.Members("chat-2"))
	req.Empty(registry.channels)
	req.Empty(registry.joined)
}

func TestRegistry_Join_Ignores_Unregistered(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Join("chat-1", newConn("c1", "ghost"))

	req.Nil(registry.Members("chat-1"))
}

func TestRegistry_Clear(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := newConn("c1", "alice")
	registry.Register(alice)
	registry.Join("chat-1", alice)

	registry.Clear()

	req.Empty(registry.ActiveIdentities())
	req.Empty(registry.Connections())
	req.Nil(registry.Members("chat-1"))
}

func ids[T interface{ ID() string }](conns []T) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}
