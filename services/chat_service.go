package services

import (
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/repositories"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

type IChatService interface {
	CreateIndividual(ctx context.Context, requester domain.Identity, otherID string) (Chat, bool, error)
	CreateGroup(ctx context.Context, requester domain.Identity, name string, participants []string) (Chat, error)
	ListForUser(ctx context.Context, userID string) ([]Chat, error)
	Get(ctx context.Context, chatID, requesterID string) (Chat, error)
	ListMessages(ctx context.Context, chatID, requesterID string, cursor *string) ([]MessageView, *string, error)
	AddParticipants(ctx context.Context, chatID, requesterID string, participants []string) (Chat, error)
	MarkRead(ctx context.Context, chatID, requesterID string) (int, error)
}

// Chat is a conversation with every identity resolved for display.
type Chat struct {
	ID           string            `json:"id"`
	ChatType     domain.Kind       `json:"chatType"`
	Participants []domain.Identity `json:"participants"`
	GroupName    string            `json:"groupName,omitempty"`
	GroupAdmin   *domain.Identity  `json:"groupAdmin,omitempty"`
	Messages     []MessageView     `json:"messages"`
	LastUpdated  time.Time         `json:"lastUpdated"`
	CreatedAt    time.Time         `json:"createdAt"`
}

type MessageView struct {
	ID        string          `json:"id"`
	Sender    domain.Identity `json:"sender"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	ReadBy    []string        `json:"readBy"`
}

// ChatService holds the REST use cases: it checks ids against the account
// lookup and turns stored ids into displayable identities.
type ChatService struct {
	log    *slog.Logger
	store  repositories.IConversationRepository
	users  repositories.IUserRepository
	lookup contract.IIdentityLookup
}

func NewChatService(log *slog.Logger, store repositories.IConversationRepository, users repositories.IUserRepository,
	lookup contract.IIdentityLookup) *ChatService {
	return &ChatService{log: log, store: store, users: users, lookup: lookup}
}

// CreateIndividual returns the conversation between requester and otherID,
// creating it when absent. The flag tells whether it was created by this call.
func (s *ChatService) CreateIndividual(ctx context.Context, requester domain.Identity, otherID string) (Chat, bool, error) {
	if otherID == requester.ID {
		return Chat{}, false, fmt.Errorf("%w: cannot start a chat with yourself", errors.ErrValidation)
	}
	if _, err := s.lookup.Lookup(ctx, otherID); err != nil {
		return Chat{}, false, err
	}
	conv, created, err := s.store.GetOrCreateIndividual(ctx, requester.ID, otherID)
	if err != nil {
		return Chat{}, false, err
	}
	if created {
		s.log.Info("Chat created", "chat_id", conv.ID, "user_id", requester.ID, "other_id", otherID)
	}
	chat, err := s.populate(ctx, conv)
	return chat, created, err
}

func (s *ChatService) CreateGroup(ctx context.Context, requester domain.Identity, name string, participants []string) (Chat, error) {
	if err := s.ensureKnown(ctx, participants); err != nil {
		return Chat{}, err
	}
	conv, err := s.store.CreateGroup(ctx, name, participants, requester.ID)
	if err != nil {
		return Chat{}, err
	}
	s.log.Info("Group created", "chat_id", conv.ID, "user_id", requester.ID, "participants", len(conv.Participants))
	return s.populate(ctx, conv)
}

// ListForUser keeps the store order, most recent activity first.
func (s *ChatService) ListForUser(ctx context.Context, userID string) ([]Chat, error) {
	conversations, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	chats := make([]Chat, 0, len(conversations))
	for _, conv := range conversations {
		chat, err := s.populate(ctx, conv)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (s *ChatService) Get(ctx context.Context, chatID, requesterID string) (Chat, error) {
	conv, err := s.store.GetByID(ctx, chatID, requesterID)
	if err != nil {
		return Chat{}, err
	}
	return s.populate(ctx, conv)
}

func (s *ChatService) ListMessages(ctx context.Context, chatID, requesterID string, cursor *string) ([]MessageView, *string, error) {
	messages, next, err := s.store.ListMessages(ctx, chatID, requesterID, cursor)
	if err != nil {
		return nil, nil, err
	}
	directory, err := s.directory(ctx, lo.Map(messages, func(m domain.Message, _ int) string { return m.SenderID }))
	if err != nil {
		return nil, nil, err
	}
	return toMessageViews(messages, directory), next, nil
}

func (s *ChatService) AddParticipants(ctx context.Context, chatID, requesterID string, participants []string) (Chat, error) {
	if err := s.ensureKnown(ctx, participants); err != nil {
		return Chat{}, err
	}
	conv, err := s.store.AddParticipants(ctx, chatID, requesterID, participants)
	if err != nil {
		return Chat{}, err
	}
	return s.populate(ctx, conv)
}

// MarkRead marks every message of the conversation as read by requesterID.
func (s *ChatService) MarkRead(ctx context.Context, chatID, requesterID string) (int, error) {
	return s.store.AppendReadReceipt(ctx, chatID, requesterID, nil)
}

func (s *ChatService) ensureKnown(ctx context.Context, userIDs []string) error {
	for _, userID := range lo.Uniq(userIDs) {
		if _, err := s.lookup.Lookup(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChatService) populate(ctx context.Context, conv domain.Conversation) (Chat, error) {
	ids := append([]string{}, conv.Participants...)
	if conv.Admin != "" {
		ids = append(ids, conv.Admin)
	}
	for _, m := range conv.Messages {
		ids = append(ids, m.SenderID)
	}
	directory, err := s.directory(ctx, ids)
	if err != nil {
		return Chat{}, err
	}

	chat := Chat{
		ID:       conv.ID,
		ChatType: conv.Kind,
		Participants: lo.Map(conv.Participants, func(id string, _ int) domain.Identity {
			return directory[id]
		}),
		GroupName:   conv.GroupName,
		Messages:    toMessageViews(conv.Messages, directory),
		LastUpdated: conv.LastActivity,
		CreatedAt:   conv.CreatedAt,
	}
	if conv.Admin != "" {
		admin := directory[conv.Admin]
		chat.GroupAdmin = &admin
	}
	return chat, nil
}

func (s *ChatService) directory(ctx context.Context, ids []string) (map[string]domain.Identity, error) {
	identities, err := s.users.GetMany(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, err
	}
	return lo.KeyBy(identities, func(i domain.Identity) string { return i.ID }), nil
}

func toMessageViews(messages []domain.Message, directory map[string]domain.Identity) []MessageView {
	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		sender, ok := directory[m.SenderID]
		if !ok {
			sender = domain.Identity{ID: m.SenderID}
		}
		views = append(views, MessageView{
			ID:        m.ID,
			Sender:    sender,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
			ReadBy:    lo.Ternary(m.ReadBy == nil, []string{}, m.ReadBy),
		})
	}
	return views
}
