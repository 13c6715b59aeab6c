//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/jonboulle/clockwork"
)

type IUserRepository interface {
	Upsert(ctx context.Context, identity domain.Identity) error
	Get(ctx context.Context, userID string) (domain.Identity, error)
	GetMany(ctx context.Context, userIDs []string) ([]domain.Identity, error)
}

// UserRepository is the local directory of identities seen through verified tokens.
// Accounts are owned elsewhere, this only answers lookups for the chat core.
type UserRepository struct {
	db    *badger.DB
	clock clockwork.Clock
}

func NewUserRepository(db *badger.DB, clock clockwork.Clock) *UserRepository {
	return &UserRepository{db: db, clock: clock}
}

type diskUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	UpdatedAt int64  `json:"updatedAt"`
}

func userKey(userID string) []byte {
	return []byte("user:" + userID)
}

// Upsert writes the identity only when it is new or its username changed.
func (u *UserRepository) Upsert(ctx context.Context, identity domain.Identity) error {
	if identity.IsZero() {
		return fmt.Errorf("%w: identity id is required", errors.ErrValidation)
	}
	if current, err := u.Get(ctx, identity.ID); err == nil && current.Username == identity.Username {
		return nil
	}
	return u.db.Update(func(txn *badger.Txn) error {
		current, err := getUser(txn, identity.ID)
		if err == nil && current.Username == identity.Username {
			return nil
		}
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
		bytes, err := json.Marshal(diskUser{
			ID:        identity.ID,
			Username:  identity.Username,
			UpdatedAt: u.clock.Now().UTC().UnixNano(),
		})
		if err != nil {
			return err
		}
		return txn.Set(userKey(identity.ID), bytes)
	})
}

func (u *UserRepository) Get(_ context.Context, userID string) (domain.Identity, error) {
	var identity domain.Identity
	err := u.db.View(func(txn *badger.Txn) error {
		user, err := getUser(txn, userID)
		if err != nil {
			return err
		}
		identity = toIdentity(user)
		return nil
	})
	return identity, err
}

// Lookup answers for the local directory, which only knows identities seen
// through their own tokens. It is not authoritative: an unseen id is accepted
// with an empty username instead of being reported as missing.
func (u *UserRepository) Lookup(ctx context.Context, userID string) (domain.Identity, error) {
	if userID == "" {
		return domain.Identity{}, fmt.Errorf("%w: user id is required", errors.ErrValidation)
	}
	identity, err := u.Get(ctx, userID)
	if errors.Is(err, errors.ErrNotFound) {
		return domain.Identity{ID: userID}, nil
	}
	return identity, err
}

// GetMany resolves userIDs in order. Unknown ids come back with an empty username.
func (u *UserRepository) GetMany(_ context.Context, userIDs []string) ([]domain.Identity, error) {
	identities := make([]domain.Identity, 0, len(userIDs))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, userID := range userIDs {
			user, err := getUser(txn, userID)
			switch {
			case err == nil:
				identities = append(identities, toIdentity(user))
			case errors.Is(err, errors.ErrNotFound):
				identities = append(identities, domain.Identity{ID: userID})
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return identities, nil
}

func getUser(txn *badger.Txn, userID string) (diskUser, error) {
	var user diskUser
	item, err := txn.Get(userKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return user, fmt.Errorf("%w: user %s", errors.ErrNotFound, userID)
	}
	if err != nil {
		return user, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &user)
	})
	return user, err
}

func toIdentity(user diskUser) domain.Identity {
	return domain.Identity{ID: user.ID, Username: user.Username}
}
