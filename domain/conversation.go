package domain

import (
	"slices"
	"time"
)

type Kind string

const (
	Individual Kind = "individual"
	Group      Kind = "group"
)

func (k Kind) Valid() bool {
	return k == Individual || k == Group
}

// Conversation holds participant ids in insertion order.
// Individual conversations have exactly two participants and no admin.
type Conversation struct {
	ID           string
	Kind         Kind
	Participants []string
	GroupName    string
	Admin        string
	Messages     []Message
	LastActivity time.Time
	CreatedAt    time.Time
}

func (c Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// CanAddParticipants is true only for the admin of a group.
func (c Conversation) CanAddParticipants(userID string) bool {
	return c.Kind == Group && c.Admin != "" && c.Admin == userID
}

// Others returns every participant except userID, preserving order.
func (c Conversation) Others(userID string) []string {
	others := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			others = append(others, p)
		}
	}
	return others
}

func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// PairKey is the unordered key of an individual conversation.
func PairKey(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
