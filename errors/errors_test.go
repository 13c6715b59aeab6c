package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", fmt.Errorf("%w: content is empty", ErrValidation), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: chat 42", ErrNotFound), http.StatusNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"unauthorized", fmt.Errorf("%w: token expired", ErrUnauthorized), http.StatusUnauthorized},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"conflict exhausted", ErrConflictRetry, http.StatusInternalServerError},
		{"unexpected", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, HTTPStatus(c.err))
		})
	}
}

func TestMessage(t *testing.T) {
	req := require.New(t)

	req.Equal("forbidden: not a participant", Message(fmt.Errorf("%w: not a participant", ErrForbidden), "Failed to send message"))
	req.Equal("Failed to send message", Message(fmt.Errorf("badger: closed"), "Failed to send message"))
}
