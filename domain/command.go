package domain

// Inbound realtime event names.
const (
	JoinChatCommand    = "join_chat"
	SendMessageCommand = "sendMessage"
	TypingCommand      = "typing"
	MarkAsReadCommand  = "markAsRead"
)

type JoinChat struct {
	ChatID string `json:"chatId" validate:"required"`
}

type SendMessage struct {
	ChatID  string `json:"chatId" validate:"required"`
	Content string `json:"content"`
}

type Typing struct {
	ChatID   string `json:"chatId" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

type MarkAsRead struct {
	ChatID string `json:"chatId" validate:"required"`
}
