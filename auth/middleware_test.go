package auth

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/mocks"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMiddleware(t *testing.T) {
	tokens := NewTokenManager(secret, time.Hour, clockwork.NewFakeClock())
	alice := domain.Identity{ID: "u1", Username: "alice"}
	fail := func(w http.ResponseWriter, err error) {
		w.WriteHeader(errors.HTTPStatus(err))
	}
	var seen domain.Identity
	handler := Middleware(tokens, fail)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("should inject identity with a valid bearer token", func(t *testing.T) {
		req := require.New(t)
		token, err := tokens.GenerateToken(alice)
		req.NoError(err)

		r := httptest.NewRequest(http.MethodGet, "/chats/user-chats", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		req.Equal(http.StatusOK, w.Code)
		req.Equal(alice, seen)
	})

	t.Run("should answer 401 without a token", func(t *testing.T) {
		req := require.New(t)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chats/user-chats", nil))
		req.Equal(http.StatusUnauthorized, w.Code)
	})

	t.Run("should answer 401 with a malformed header", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/chats/user-chats", nil)
		r.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		req.Equal(http.StatusUnauthorized, w.Code)
	})
}

func TestHandshakeToken_Prefers_Query(t *testing.T) {
	req := require.New(t)
	r := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	r.Header.Set("Authorization", "Bearer def")
	req.Equal("abc", HandshakeToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "bearer def")
	req.Equal("def", HandshakeToken(r))
}

func TestRecordingVerifier_Upserts_Identity(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockIIdentityVerifier(ctrl)
	users := mocks.NewMockIUserRepository(ctrl)
	alice := domain.Identity{ID: "u1", Username: "alice"}
	ctx := context.WithValue(context.Background(), contextKey("request"), "r1")

	// Given the same token verified three times, then a renamed identity
	verifier.EXPECT().Verify(ctx, "good").Return(alice, nil).Times(3)
	verifier.EXPECT().Verify(ctx, "renamed").Return(domain.Identity{ID: "u1", Username: "alice2"}, nil)
	verifier.EXPECT().Verify(ctx, "bad").Return(domain.Identity{}, errors.ErrUnauthorized)

	// Then the directory is written once per username, with the request context
	users.EXPECT().Upsert(ctx, alice).Return(nil).Times(1)
	users.EXPECT().Upsert(ctx, domain.Identity{ID: "u1", Username: "alice2"}).Return(nil).Times(1)

	recording := NewRecordingVerifier(verifier, users, slog.Default())
	for range 3 {
		identity, err := recording.Verify(ctx, "good")
		req.NoError(err)
		req.Equal(alice, identity)
	}
	_, err := recording.Verify(ctx, "renamed")
	req.NoError(err)

	_, err = recording.Verify(ctx, "bad")
	req.ErrorIs(err, errors.ErrUnauthorized)
}

func TestRecordingVerifier_Retries_After_A_Failed_Write(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockIIdentityVerifier(ctrl)
	users := mocks.NewMockIUserRepository(ctrl)
	alice := domain.Identity{ID: "u1", Username: "alice"}
	ctx := context.Background()

	verifier.EXPECT().Verify(ctx, "good").Return(alice, nil).Times(2)
	gomock.InOrder(
		users.EXPECT().Upsert(ctx, alice).Return(errors.ErrConflictRetry),
		users.EXPECT().Upsert(ctx, alice).Return(nil),
	)

	recording := NewRecordingVerifier(verifier, users, slog.Default())
	_, err := recording.Verify(ctx, "good")
	req.NoError(err)
	_, err = recording.Verify(ctx, "good")
	req.NoError(err)
}
