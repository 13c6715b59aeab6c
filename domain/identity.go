// Package domain contains core concepts of the chat system.
// This file defines the Identity a verified credential resolves to.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is owned by the external account system.
// The chat core only reads it.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (i Identity) IsZero() bool {
	return i.ID == ""
}
