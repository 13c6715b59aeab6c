package client

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IdentityClient asks the account service whether a user exists.
// It is authoritative: a 404 from the service is a NotFound here.
//
//	GET {baseURL}/{userID} -> 200 {"id": "...", "username": "..."} | 404
type IdentityClient struct {
	log     *slog.Logger
	baseURL string
	token   string
	http    *http.Client
}

func NewIdentityClient(log *slog.Logger, baseURL, token string, timeout time.Duration) *IdentityClient {
	return &IdentityClient{
		log:     log,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *IdentityClient) Lookup(ctx context.Context, userID string) (domain.Identity, error) {
	if userID == "" {
		return domain.Identity{}, fmt.Errorf("%w: user id is required", errors.ErrValidation)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(userID), nil)
	if err != nil {
		return domain.Identity{}, err
	}
	request.Header.Set("Accept", "application/json")
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity lookup: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	switch response.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.Identity{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, userID)
	default:
		c.log.Warn("Identity lookup failed", "user_id", userID, "status", response.StatusCode)
		return domain.Identity{}, fmt.Errorf("identity lookup: unexpected status %d", response.StatusCode)
	}

	var identity domain.Identity
	if err = json.NewDecoder(response.Body).Decode(&identity); err != nil {
		return domain.Identity{}, fmt.Errorf("identity lookup: %w", err)
	}
	if identity.ID == "" {
		identity.ID = userID
	}
	return identity, nil
}
