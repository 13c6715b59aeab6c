package auth

import (
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/repositories"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

type contextKey string

const IdentityKey contextKey = "identity"

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(domain.Identity)
	return identity, ok && !identity.IsZero()
}

// BearerToken reads the standard "Bearer <token>" Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// HandshakeToken accepts the token query parameter used by websocket clients,
// falling back to the Authorization header.
func HandshakeToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return BearerToken(r)
}

// RecordingVerifier verifies tokens and keeps the identity directory current,
// so usernames can be resolved for participants who are offline.
// Usernames already recorded by this process are not written again.
type RecordingVerifier struct {
	verifier contract.IIdentityVerifier
	users    repositories.IUserRepository
	log      *slog.Logger
	recorded sync.Map // map user id -> username
}

func NewRecordingVerifier(verifier contract.IIdentityVerifier, users repositories.IUserRepository, log *slog.Logger) *RecordingVerifier {
	return &RecordingVerifier{verifier: verifier, users: users, log: log}
}

func (v *RecordingVerifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	identity, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return domain.Identity{}, err
	}
	if username, ok := v.recorded.Load(identity.ID); ok && username == identity.Username {
		return identity, nil
	}
	if err = v.users.Upsert(ctx, identity); err != nil {
		v.log.Warn("Failed to record identity", "user_id", identity.ID, "error", err)
		return identity, nil
	}
	v.recorded.Store(identity.ID, identity.Username)
	return identity, nil
}

// Middleware rejects requests without a valid bearer token and
// injects the identity into the request context for downstream handlers.
func Middleware(verifier contract.IIdentityVerifier, fail func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.Verify(r.Context(), BearerToken(r))
			if err != nil {
				fail(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
