package runtime

import (
	"chat-hub/contract"
	"slices"
	"sync"
)

type Set map[string]struct{}

// Registry is the in-process presence and channel directory.
// Connections are indexed by id so an identity may hold several at once.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]contract.Connection // map connection -> handle
	presence    map[string]Set                 // map identity -> connections
	channels    map[string]Set                 // map chat -> connections
	joined      map[string]Set                 // map connection -> chats
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]contract.Connection),
		presence:    make(map[string]Set),
		channels:    make(map[string]Set),
		joined:      make(map[string]Set),
	}
}

// Register adds the connection to its identity's active set.
// It returns true when this is the identity's first active connection.
func (r *Registry) Register(conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[conn.ID()]; ok {
		return false
	}
	r.connections[conn.ID()] = conn

	userID := conn.Identity().ID
	conns, ok := r.presence[userID]
	if !ok {
		conns = make(Set)
		r.presence[userID] = conns
	}
	conns[conn.ID()] = struct{}{}
	return len(conns) == 1
}

// Unregister removes the connection and every channel membership it held.
// It returns true when the identity has no connection left.
func (r *Registry) Unregister(conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[conn.ID()]; !ok {
		return false
	}
	delete(r.connections, conn.ID())

	for chatID := range r.joined[conn.ID()] {
		r.removeMember(chatID, conn.ID())
	}
	delete(r.joined, conn.ID())

	userID := conn.Identity().ID
	conns := r.presence[userID]
	delete(conns, conn.ID())
	if len(conns) == 0 {
		delete(r.presence, userID)
		return true
	}
	return false
}

// ActiveIdentities is a sorted snapshot of online identity ids.
func (r *Registry) ActiveIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.presence))
	for userID := range r.presence {
		ids = append(ids, userID)
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) ConnectionsFor(userID string) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(r.presence[userID])
}

func (r *Registry) Connections() []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]contract.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	sortByID(conns)
	return conns
}

// Join subscribes a registered connection to a chat channel.
// Unknown connections are ignored, they are closing.
func (r *Registry) Join(chatID string, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[conn.ID()]; !ok {
		return
	}
	if _, ok := r.channels[chatID]; !ok {
		r.channels[chatID] = make(Set)
	}
	r.channels[chatID][conn.ID()] = struct{}{}

	if _, ok := r.joined[conn.ID()]; !ok {
		r.joined[conn.ID()] = make(Set)
	}
	r.joined[conn.ID()][chatID] = struct{}{}
}

func (r *Registry) Leave(chatID string, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeMember(chatID, conn.ID())
	if chats, ok := r.joined[conn.ID()]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(r.joined, conn.ID())
		}
	}
}

// Members returns the connections joined to chatID, or nil.
func (r *Registry) Members(chatID string) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(r.channels[chatID])
}

// Clear drops every connection and membership, used at shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections = make(map[string]contract.Connection)
	r.presence = make(map[string]Set)
	r.channels = make(map[string]Set)
	r.joined = make(map[string]Set)
}

// removeMember must be called with the write lock held.
// No empty set is left behind in the channel map.
func (r *Registry) removeMember(chatID, connID string) {
	members, ok := r.channels[chatID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.channels, chatID)
	}
}

func (r *Registry) resolve(ids Set) []contract.Connection {
	if len(ids) == 0 {
		return nil
	}
	conns := make([]contract.Connection, 0, len(ids))
	for id := range ids {
		if conn, ok := r.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	sortByID(conns)
	return conns
}

func sortByID(conns []contract.Connection) {
	slices.SortFunc(conns, func(a, b contract.Connection) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
}
