//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/internal/keylock"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

const maxConflictRetries = 5

type IConversationRepository interface {
	GetOrCreateIndividual(ctx context.Context, userA, userB string) (domain.Conversation, bool, error)
	CreateGroup(ctx context.Context, name string, participants []string, admin string) (domain.Conversation, error)
	GetByID(ctx context.Context, chatID, requesterID string) (domain.Conversation, error)
	AppendMessage(ctx context.Context, chatID, senderID, content string) (domain.Message, domain.Conversation, error)
	AppendReadReceipt(ctx context.Context, chatID, readerID string, messageIDs []string) (int, error)
	AddParticipants(ctx context.Context, chatID, requesterID string, participants []string) (domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, chatID, requesterID string, cursor *string) ([]domain.Message, *string, error)
}

// ConversationRepository keeps each conversation as a header record
// plus one record per message, so appending never rewrites the log.
//
//	chat:{id}                 header
//	msg:{id}:{seq}            message, seq zero padded to 19 digits
//	pair:{len(low)}:{low}|{high}       individual conversation id for an unordered pair
//	member:{len(userID)}:{userID}:{chatID}  membership index
//
// User ids are opaque, so they are length prefixed to keep keys unambiguous.
type ConversationRepository struct {
	db            *badger.DB
	log           *slog.Logger
	clock         clockwork.Clock
	locks         *keylock.KeyLock
	limitMessages *int
}

func NewConversationRepository(db *badger.DB, log *slog.Logger, clock clockwork.Clock, limitMessages *int) *ConversationRepository {
	return &ConversationRepository{
		db:            db,
		log:           log,
		clock:         clock,
		locks:         keylock.New(),
		limitMessages: limitMessages,
	}
}

type diskConversation struct {
	ID           string      `json:"id"`
	Kind         domain.Kind `json:"kind"`
	Participants []string    `json:"participants"`
	GroupName    string      `json:"groupName,omitempty"`
	Admin        string      `json:"admin,omitempty"`
	NextSeq      uint64      `json:"nextSeq"`
	LastActivity int64       `json:"lastActivity"`
	CreatedAt    int64       `json:"createdAt"`
}

type diskMessage struct {
	ID       string   `json:"id"`
	Seq      uint64   `json:"seq"`
	SenderID string   `json:"senderId"`
	Content  string   `json:"content"`
	At       int64    `json:"at"`
	ReadBy   []string `json:"readBy,omitempty"`
}

func chatKey(chatID string) []byte {
	return []byte("chat:" + chatID)
}

func messagePrefix(chatID string) []byte {
	return []byte("msg:" + chatID + ":")
}

func messageKey(chatID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d", chatID, seq))
}

func pairKey(userA, userB string) []byte {
	low, high := domain.PairKey(userA, userB)
	return []byte(fmt.Sprintf("pair:%d:%s|%s", len(low), low, high))
}

func memberPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("member:%d:%s:", len(userID), userID))
}

// splitPrefixed reverses the length prefix written by pairKey and memberPrefix.
// rest is "{n}:{id}{sep}{tail}"; it returns id and tail.
func splitPrefixed(rest string) (string, string, bool) {
	size, body, ok := strings.Cut(rest, ":")
	if !ok {
		return "", "", false
	}
	n, err := strconv.Atoi(size)
	if err != nil || n < 0 || len(body) < n+1 {
		return "", "", false
	}
	return body[:n], body[n+1:], true
}

func memberKey(userID, chatID string) []byte {
	return append(memberPrefix(userID), chatID...)
}

// GetOrCreateIndividual returns the conversation of the unordered pair, creating it when absent.
// Concurrent creators race on the pair key; the loser gets a badger conflict and re-reads the winner.
func (r *ConversationRepository) GetOrCreateIndividual(ctx context.Context, userA, userB string) (domain.Conversation, bool, error) {
	if userA == "" || userB == "" {
		return domain.Conversation{}, false, fmt.Errorf("%w: both participants are required", errors.ErrValidation)
	}
	if userA == userB {
		return domain.Conversation{}, false, fmt.Errorf("%w: cannot open a conversation with yourself", errors.ErrValidation)
	}

	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Conversation{}, false, err
		}
		conv, created, err := r.getOrCreatePair(userA, userB)
		if errors.Is(err, errors.ErrConflictRetry) {
			r.log.Debug("Pair creation conflict, refetching", "attempt", attempt, "user_a", userA, "user_b", userB)
			continue
		}
		return conv, created, err
	}
	return domain.Conversation{}, false, fmt.Errorf("%w: pair %s/%s", errors.ErrConflictRetry, userA, userB)
}

func (r *ConversationRepository) getOrCreatePair(userA, userB string) (domain.Conversation, bool, error) {
	var conv diskConversation
	created := false

	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(userA, userB))
		switch {
		case err == nil:
			var chatID string
			if err = item.Value(func(val []byte) error {
				chatID = string(val)
				return nil
			}); err != nil {
				return err
			}
			conv, err = getHeader(txn, chatID)
			return err
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		now := r.clock.Now().UTC().UnixNano()
		conv = diskConversation{
			ID:           uuid.NewString(),
			Kind:         domain.Individual,
			Participants: []string{userA, userB},
			LastActivity: now,
			CreatedAt:    now,
		}
		if err = setHeader(txn, conv); err != nil {
			return err
		}
		if err = txn.Set(pairKey(userA, userB), []byte(conv.ID)); err != nil {
			return err
		}
		if err = setMembers(txn, conv.ID, conv.Participants); err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.Conversation{}, false, fmt.Errorf("%w: %v", errors.ErrConflictRetry, err)
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return toConversation(conv, nil), created, nil
}

// CreateGroup adds the admin to the participants when absent.
func (r *ConversationRepository) CreateGroup(ctx context.Context, name string, participants []string, admin string) (domain.Conversation, error) {
	if admin == "" {
		return domain.Conversation{}, fmt.Errorf("%w: group admin is required", errors.ErrValidation)
	}
	members := lo.Uniq(lo.Compact(participants))
	if !slices.Contains(members, admin) {
		members = append(members, admin)
	}
	if len(members) < 2 {
		return domain.Conversation{}, fmt.Errorf("%w: a group needs at least 2 participants", errors.ErrValidation)
	}

	now := r.clock.Now().UTC().UnixNano()
	conv := diskConversation{
		ID:           uuid.NewString(),
		Kind:         domain.Group,
		Participants: members,
		GroupName:    strings.TrimSpace(name),
		Admin:        admin,
		LastActivity: now,
		CreatedAt:    now,
	}
	err := r.update(ctx, func(txn *badger.Txn) error {
		if err := setHeader(txn, conv); err != nil {
			return err
		}
		return setMembers(txn, conv.ID, conv.Participants)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(conv, nil), nil
}

// GetByID returns the conversation with its full message log.
func (r *ConversationRepository) GetByID(_ context.Context, chatID, requesterID string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		header, err := getParticipantHeader(txn, chatID, requesterID)
		if err != nil {
			return err
		}
		messages, err := scanMessages(txn, chatID)
		if err != nil {
			return err
		}
		conv = toConversation(header, messages)
		return nil
	})
	return conv, err
}

// AppendMessage stores content at the next sequence number of the conversation.
// Appends to one conversation are serialized, so the sequence is the acceptance order.
func (r *ConversationRepository) AppendMessage(ctx context.Context, chatID, senderID, content string) (domain.Message, domain.Conversation, error) {
	content, ok := domain.NormalizeContent(content)
	if !ok {
		return domain.Message{}, domain.Conversation{}, fmt.Errorf("%w: message content is empty", errors.ErrValidation)
	}

	unlock := r.locks.Lock(chatID)
	defer unlock()

	var stored diskMessage
	var header diskConversation
	err := r.update(ctx, func(txn *badger.Txn) error {
		var err error
		header, err = getParticipantHeader(txn, chatID, senderID)
		if err != nil {
			return err
		}
		now := r.clock.Now().UTC().UnixNano()
		stored = diskMessage{
			ID:       uuid.NewString(),
			Seq:      header.NextSeq,
			SenderID: senderID,
			Content:  content,
			At:       now,
		}
		header.NextSeq++
		header.LastActivity = now

		if err = setMessage(txn, chatID, stored); err != nil {
			return err
		}
		return setHeader(txn, header)
	})
	if err != nil {
		return domain.Message{}, domain.Conversation{}, err
	}
	return toMessage(stored), toConversation(header, nil), nil
}

// AppendReadReceipt marks messageIDs, or every message when empty, as read by readerID.
// It returns how many messages were newly marked; marking twice is a no-op.
func (r *ConversationRepository) AppendReadReceipt(ctx context.Context, chatID, readerID string, messageIDs []string) (int, error) {
	unlock := r.locks.Lock(chatID)
	defer unlock()

	wanted := lo.SliceToMap(messageIDs, func(id string) (string, struct{}) { return id, struct{}{} })
	var changed []diskMessage

	err := r.db.View(func(txn *badger.Txn) error {
		if _, err := getParticipantHeader(txn, chatID, readerID); err != nil {
			return err
		}
		return iterateMessages(txn, chatID, func(m diskMessage) error {
			if len(wanted) > 0 {
				if _, ok := wanted[m.ID]; !ok {
					return nil
				}
			}
			message := toMessage(m)
			if !message.MarkReadBy(readerID) {
				return nil
			}
			m.ReadBy = message.ReadBy
			changed = append(changed, m)
			return nil
		})
	})
	if err != nil || len(changed) == 0 {
		return 0, err
	}
	if err = ctx.Err(); err != nil {
		return 0, err
	}

	// A long log may not fit one transaction, the write batch splits it.
	batch := r.db.NewWriteBatch()
	defer batch.Cancel()
	for _, m := range changed {
		bytes, err := json.Marshal(m)
		if err != nil {
			return 0, err
		}
		if err = batch.Set(messageKey(chatID, m.Seq), bytes); err != nil {
			return 0, err
		}
	}
	if err = batch.Flush(); err != nil {
		return 0, err
	}
	return len(changed), nil
}

// AddParticipants is reserved to the admin of a group conversation.
func (r *ConversationRepository) AddParticipants(ctx context.Context, chatID, requesterID string, participants []string) (domain.Conversation, error) {
	unlock := r.locks.Lock(chatID)
	defer unlock()

	var header diskConversation
	err := r.update(ctx, func(txn *badger.Txn) error {
		var err error
		header, err = getHeader(txn, chatID)
		if err != nil {
			return err
		}
		if !toConversation(header, nil).CanAddParticipants(requesterID) {
			return fmt.Errorf("%w: only the group admin can add participants", errors.ErrForbidden)
		}
		added := lo.Without(lo.Uniq(lo.Compact(participants)), header.Participants...)
		if len(added) == 0 {
			return nil
		}
		header.Participants = append(header.Participants, added...)
		if err = setHeader(txn, header); err != nil {
			return err
		}
		return setMembers(txn, chatID, added)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(header, nil), nil
}

// ListForUser returns the conversations of userID, most recently active first.
// Each conversation carries only its last message.
func (r *ConversationRepository) ListForUser(_ context.Context, userID string) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var chatIDs []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			chatIDs = append(chatIDs, string(it.Item().Key()[len(prefix):]))
		}

		for _, chatID := range chatIDs {
			header, err := getHeader(txn, chatID)
			if errors.Is(err, errors.ErrNotFound) {
				r.log.Warn("Dangling membership index", "user_id", userID, "chat_id", chatID)
				continue
			}
			if err != nil {
				return err
			}
			var messages []domain.Message
			if header.NextSeq > 0 {
				last, err := getMessage(txn, chatID, header.NextSeq-1)
				if err != nil {
					return err
				}
				messages = []domain.Message{toMessage(last)}
			}
			conversations = append(conversations, toConversation(header, messages))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(conversations, func(a, b domain.Conversation) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return conversations, nil
}

// ListMessages walks the log backwards from cursor, newest first.
// The returned cursor is nil once the oldest message has been reached.
func (r *ConversationRepository) ListMessages(_ context.Context, chatID, requesterID string, cursor *string) ([]domain.Message, *string, error) {
	var messages []domain.Message
	var next *string
	err := r.db.View(func(txn *badger.Txn) error {
		if _, err := getParticipantHeader(txn, chatID, requesterID); err != nil {
			return err
		}
		prefix := messagePrefix(chatID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append(slices.Clone(prefix), []byte("9999999999999999999")...)
		default:
			seekKey = append(slices.Clone(prefix), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && *r.limitMessages > 0 && len(messages) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d message reached", *r.limitMessages))
				last := fmt.Sprintf("%019d", messages[len(messages)-1].Seq)
				next = &last
				break
			}
			var m diskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			messages = append(messages, toMessage(m))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return messages, next, nil
}

// update retries a read-write transaction that lost a badger conflict.
func (r *ConversationRepository) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if attempt >= maxConflictRetries {
			return fmt.Errorf("%w: %v", errors.ErrConflictRetry, err)
		}
		r.log.Debug("Transaction conflict, retrying", "attempt", attempt)
	}
}

func getHeader(txn *badger.Txn, chatID string) (diskConversation, error) {
	var conv diskConversation
	item, err := txn.Get(chatKey(chatID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return conv, fmt.Errorf("%w: chat %s", errors.ErrNotFound, chatID)
	}
	if err != nil {
		return conv, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &conv)
	})
	if err == nil && !conv.Kind.Valid() {
		err = fmt.Errorf("chat %s: unknown kind %q", chatID, conv.Kind)
	}
	return conv, err
}

func getParticipantHeader(txn *badger.Txn, chatID, userID string) (diskConversation, error) {
	conv, err := getHeader(txn, chatID)
	if err != nil {
		return conv, err
	}
	if !toConversation(conv, nil).HasParticipant(userID) {
		return conv, fmt.Errorf("%w: not a participant of chat %s", errors.ErrForbidden, chatID)
	}
	return conv, nil
}

func setHeader(txn *badger.Txn, conv diskConversation) error {
	bytes, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return txn.Set(chatKey(conv.ID), bytes)
}

func setMembers(txn *badger.Txn, chatID string, userIDs []string) error {
	for _, userID := range userIDs {
		if err := txn.Set(memberKey(userID, chatID), nil); err != nil {
			return err
		}
	}
	return nil
}

func setMessage(txn *badger.Txn, chatID string, m diskMessage) error {
	bytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return txn.Set(messageKey(chatID, m.Seq), bytes)
}

func getMessage(txn *badger.Txn, chatID string, seq uint64) (diskMessage, error) {
	var m diskMessage
	item, err := txn.Get(messageKey(chatID, seq))
	if err != nil {
		return m, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	})
	return m, err
}

func iterateMessages(txn *badger.Txn, chatID string, fn func(m diskMessage) error) error {
	prefix := messagePrefix(chatID)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var m diskMessage
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		}); err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func scanMessages(txn *badger.Txn, chatID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := iterateMessages(txn, chatID, func(m diskMessage) error {
		messages = append(messages, toMessage(m))
		return nil
	})
	return messages, err
}

func toConversation(d diskConversation, messages []domain.Message) domain.Conversation {
	return domain.Conversation{
		ID:           d.ID,
		Kind:         d.Kind,
		Participants: slices.Clone(d.Participants),
		GroupName:    d.GroupName,
		Admin:        d.Admin,
		Messages:     messages,
		LastActivity: time.Unix(0, d.LastActivity).UTC(),
		CreatedAt:    time.Unix(0, d.CreatedAt).UTC(),
	}
}

func toMessage(d diskMessage) domain.Message {
	return domain.Message{
		ID:        d.ID,
		Seq:       d.Seq,
		SenderID:  d.SenderID,
		Content:   d.Content,
		CreatedAt: time.Unix(0, d.At).UTC(),
		ReadBy:    slices.Clone(d.ReadBy),
	}
}
