package auth

import (
	"chat-hub/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type addParticipants struct {
	Participants []string `json:"participants" validate:"required,min=1,dive,required"`
}

func TestValidate(t *testing.T) {
	req := require.New(t)
	tests := []struct {
		name    string
		req     addParticipants
		wantErr bool
	}{
		{"Valid request", addParticipants{[]string{"u2"}}, false},
		{"Missing participants", addParticipants{}, true},
		{"Empty participant id", addParticipants{[]string{""}}, true},
	}

	for _, tt := range tests {
		err := Validate(tt.req)
		if tt.wantErr {
			req.ErrorIs(err, errors.ErrValidation, tt.name)
			req.Contains(err.Error(), "participants", tt.name)
		} else {
			req.NoError(err, tt.name)
		}
	}
}
