package auth

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-with-enough-entropy-2026"

func TestTokenManager_RoundTrip(t *testing.T) {
	req := require.New(t)
	clock := clockwork.NewFakeClock()
	tokens := NewTokenManager(secret, time.Hour, clock)
	alice := domain.Identity{ID: "u1", Username: "alice"}

	token, err := tokens.GenerateToken(alice)
	req.NoError(err)

	identity, err := tokens.Verify(context.Background(), token)
	req.NoError(err)
	req.Equal(alice, identity)
}

func TestTokenManager_Rejects(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tokens := NewTokenManager(secret, time.Hour, clock)
	alice := domain.Identity{ID: "u1", Username: "alice"}

	t.Run("expired token", func(t *testing.T) {
		req := require.New(t)
		token, err := tokens.GenerateToken(alice)
		req.NoError(err)

		// When the token outlives its duration
		clock.Advance(2 * time.Hour)

		_, err = tokens.Verify(context.Background(), token)
		req.ErrorIs(err, errors.ErrUnauthorized)
	})

	t.Run("foreign secret", func(t *testing.T) {
		req := require.New(t)
		other := NewTokenManager("another-secret", time.Hour, clock)
		token, err := other.GenerateToken(alice)
		req.NoError(err)

		_, err = tokens.Verify(context.Background(), token)
		req.ErrorIs(err, errors.ErrUnauthorized)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := tokens.Verify(context.Background(), "")
		require.ErrorIs(t, err, errors.ErrUnauthorized)
	})

	t.Run("none algorithm", func(t *testing.T) {
		req := require.New(t)
		claims := &CustomClaims{
			UserID: "u1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		req.NoError(err)

		_, err = tokens.Verify(context.Background(), token)
		req.ErrorIs(err, errors.ErrUnauthorized)
	})

	t.Run("token without expiry", func(t *testing.T) {
		req := require.New(t)
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &CustomClaims{UserID: "u1"}).SignedString([]byte(secret))
		req.NoError(err)

		_, err = tokens.Verify(context.Background(), token)
		req.ErrorIs(err, errors.ErrUnauthorized)
	})
}
