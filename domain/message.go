// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once stored except for their read-by set.
package domain

import (
	"slices"
	"strings"
	"time"
)

// Message belongs to exactly one Conversation.
// Seq is the position assigned by the store when the append was accepted.
type Message struct {
	ID        string
	Seq       uint64
	SenderID  string
	Content   string
	CreatedAt time.Time
	ReadBy    []string
}

// MarkReadBy adds reader to the read-by set.
// Returns false when reader was already present.
func (m *Message) MarkReadBy(reader string) bool {
	if slices.Contains(m.ReadBy, reader) {
		return false
	}
	m.ReadBy = append(m.ReadBy, reader)
	return true
}

func (m Message) IsReadBy(reader string) bool {
	return slices.Contains(m.ReadBy, reader)
}

// NormalizeContent trims surrounding whitespace.
// An empty result is not a valid message.
func NormalizeContent(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	return trimmed, trimmed != ""
}
