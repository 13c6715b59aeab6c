package auth

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

const issuer = "chat-hub"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens with a server-held secret.
type TokenManager struct {
	secret            []byte
	authTokenDuration time.Duration
	clock             clockwork.Clock
}

func NewTokenManager(secret string, authTokenDuration time.Duration, clock clockwork.Clock) *TokenManager {
	return &TokenManager{
		secret:            []byte(secret),
		authTokenDuration: authTokenDuration,
		clock:             clock,
	}
}

// GenerateToken creates a signed JWT for identity.
func (m *TokenManager) GenerateToken(identity domain.Identity) (string, error) {
	if identity.IsZero() {
		return "", fmt.Errorf("%w: identity id is required", errors.ErrTokenGeneration)
	}
	now := m.clock.Now()
	claims := &CustomClaims{
		UserID:   identity.ID,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.authTokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// Verify parses the token, checks signature and expiry, and resolves the identity.
// Every failure is reported as ErrUnauthorized.
func (m *TokenManager) Verify(_ context.Context, tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, fmt.Errorf("%w: token is missing", errors.ErrUnauthorized)
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Identity{}, fmt.Errorf("%w: invalid claims", errors.ErrUnauthorized)
	}
	return domain.Identity{ID: claims.UserID, Username: claims.Username}, nil
}
