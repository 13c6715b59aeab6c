//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink must not block: a full sink reports an error instead.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is one live realtime connection of an authenticated identity.
type Connection interface {
	EventSink
	ID() string
	Identity() domain.Identity
}

type IIdentityVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// IIdentityLookup resolves a user id against the account system.
// Only an authoritative implementation returns errors.ErrNotFound.
type IIdentityLookup interface {
	Lookup(ctx context.Context, userID string) (domain.Identity, error)
}

// IRegistry tracks presence per identity and channel membership per conversation.
// The in-memory implementation is process local; nothing in the interface assumes it.
type IRegistry interface {
	Register(conn Connection) bool
	Unregister(conn Connection) bool
	ActiveIdentities() []string
	ConnectionsFor(userID string) []Connection
	Connections() []Connection
	Join(chatID string, conn Connection)
	Leave(chatID string, conn Connection)
	Members(chatID string) []Connection
	Clear()
}

// IPresenceNotifier is told that the set of online identities may have changed.
type IPresenceNotifier interface {
	Notify()
}
