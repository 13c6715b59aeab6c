package event

import (
	"chat-hub/domain"
	"time"
)

// Outbound realtime event names.
const (
	ActiveUsersType  = "activeUsers"
	MessageType      = "message"
	ChatUpdateType   = "chatUpdate"
	TypingType       = "typing"
	MessagesReadType = "messagesRead"
	ErrorType        = "error"
)

// DomainEvent is anything the hub pushes to a connection.
type DomainEvent interface {
	Name() string
}

// ActiveUsers is the snapshot of online identity ids.
type ActiveUsers []string

func (ActiveUsers) Name() string { return ActiveUsersType }

type MessageBody struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Sender    domain.Identity `json:"sender"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessagePosted is fanned out to the conversation channel, sender included.
type MessagePosted struct {
	ChatID  string      `json:"chatId"`
	Message MessageBody `json:"message"`
}

func (MessagePosted) Name() string { return MessageType }

func NewMessagePosted(chatID string, sender domain.Identity, m domain.Message) MessagePosted {
	return MessagePosted{
		ChatID: chatID,
		Message: MessageBody{
			ID:        m.ID,
			Content:   m.Content,
			Sender:    sender,
			Timestamp: m.CreatedAt,
		},
	}
}

// ChatUpdated reaches every other participant regardless of channel membership.
type ChatUpdated struct {
	ChatID      string    `json:"chatId"`
	LastMessage string    `json:"lastMessage"`
	Timestamp   time.Time `json:"timestamp"`
}

func (ChatUpdated) Name() string { return ChatUpdateType }

type UserTyping struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

func (UserTyping) Name() string { return TypingType }

type MessagesRead struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

func (MessagesRead) Name() string { return MessagesReadType }

// Failure is scoped to the connection whose request was rejected.
type Failure struct {
	Message string `json:"message"`
}

func (Failure) Name() string { return ErrorType }
