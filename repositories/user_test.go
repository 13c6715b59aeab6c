package repositories

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_Upsert_And_Lookup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t), clockwork.NewFakeClock())

	// Given an identity seen through a token
	req.NoError(repository.Upsert(ctx, domain.Identity{ID: "u1", Username: "alice"}))

	// When the username changes on a later token
	req.NoError(repository.Upsert(ctx, domain.Identity{ID: "u1", Username: "alice2"}))

	// Then the latest username is returned
	identity, err := repository.Get(ctx, "u1")
	req.NoError(err)
	req.Equal(domain.Identity{ID: "u1", Username: "alice2"}, identity)

	_, err = repository.Get(ctx, "ghost")
	req.ErrorIs(err, errors.ErrNotFound)

	req.ErrorIs(repository.Upsert(ctx, domain.Identity{}), errors.ErrValidation)
}

func TestUserRepository_GetMany_Keeps_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t), clockwork.NewFakeClock())
	req.NoError(repository.Upsert(ctx, domain.Identity{ID: "u1", Username: "alice"}))
	req.NoError(repository.Upsert(ctx, domain.Identity{ID: "u2", Username: "bob"}))

	identities, err := repository.GetMany(ctx, []string{"u2", "ghost", "u1"})
	req.NoError(err)
	req.Equal([]domain.Identity{
		{ID: "u2", Username: "bob"},
		{ID: "ghost"},
		{ID: "u1", Username: "alice"},
	}, identities)
}

func TestUserRepository_Upsert_Skips_Unchanged_Username(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	db := openDB(t)
	repository := NewUserRepository(db, clock)
	req.NoError(repository.Upsert(ctx, domain.Identity{ID: "u1", Username: "alice"}))
	written := readUpdatedAt(t, db, "u1")

	// When the same identity is seen again later
	clock.Advance(time.Hour)
	req.NoError(repository.Upsert(ctx, domain.Identity{ID: "u1", Username: "alice"}))

	// Then the stored record is left untouched
	req.Equal(written, readUpdatedAt(t, db, "u1"))

	clock.Advance(time.Hour)
	req.NoError(repository.Upsert(ctx, domain.Identity{ID: "u1", Username: "alice2"}))
	req.Greater(readUpdatedAt(t, db, "u1"), written)
}

func TestUserRepository_Lookup_Accepts_Unseen_Ids(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t), clockwork.NewFakeClock())
	req.NoError(repository.Upsert(ctx, domain.Identity{ID: "u1", Username: "alice"}))

	identity, err := repository.Lookup(ctx, "u1")
	req.NoError(err)
	req.Equal(domain.Identity{ID: "u1", Username: "alice"}, identity)

	// Given an id owned by the account service but never connected here
	identity, err = repository.Lookup(ctx, "u2")

	// Then it is accepted without a username
	req.NoError(err)
	req.Equal(domain.Identity{ID: "u2"}, identity)

	_, err = repository.Lookup(ctx, "")
	req.ErrorIs(err, errors.ErrValidation)
}

func readUpdatedAt(t *testing.T, db *badger.DB, userID string) int64 {
	t.Helper()
	var user diskUser
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	require.NoError(t, err)
	return user.UpdatedAt
}
