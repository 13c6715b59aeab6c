// Package runtime handles connection lifecycle, channel membership and event routing.
// It coordinates the store and the registry without containing domain rules.
package runtime

import (
	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/internal/keylock"
	"chat-hub/moderation"
	"chat-hub/observability"
	"chat-hub/repositories"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type HubConfig struct {
	DeliveryTimeout         time.Duration
	JoinRequiresParticipant bool
	EventsPerSecond         float64
	Burst                   int
	// Filter masks blocked words before a message is stored. Nil keeps content as sent.
	Filter *moderation.Filter
}

// Hub routes realtime events between connections and the conversation store.
// Each inbound event runs as its own task; tasks only meet through the store
// and the registry.
type Hub struct {
	log       *slog.Logger
	verifier  contract.IIdentityVerifier
	store     repositories.IConversationRepository
	registry  contract.IRegistry
	presence  contract.IPresenceNotifier
	metrics   *observability.HubMetrics
	sequencer *keylock.KeyLock
	config    HubConfig
}

func NewHub(log *slog.Logger, verifier contract.IIdentityVerifier, store repositories.IConversationRepository,
	registry contract.IRegistry, presence contract.IPresenceNotifier, metrics *observability.HubMetrics, config HubConfig) *Hub {
	return &Hub{
		log:       log,
		verifier:  verifier,
		store:     store,
		registry:  registry,
		presence:  presence,
		metrics:   metrics,
		sequencer: keylock.New(),
		config:    config,
	}
}

// Session is the hub side of one authenticated connection.
// Its context is canceled on disconnect, aborting in-flight tasks.
type Session struct {
	Conn    contract.Connection
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
	tasks   sync.WaitGroup
}

// Wait blocks until every task started by Dispatch has returned.
func (s *Session) Wait() {
	s.tasks.Wait()
}

// Authenticate resolves the handshake credential.
// A failure must reject the connection before it is upgraded.
func (h *Hub) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	identity, err := h.verifier.Verify(ctx, token)
	if err != nil {
		h.metrics.HandshakeRejected.Inc()
		return domain.Identity{}, err
	}
	return identity, nil
}

// Connect registers an authenticated connection and refreshes presence for everyone.
func (h *Hub) Connect(ctx context.Context, conn contract.Connection) *Session {
	sessionCtx, cancel := context.WithCancel(ctx)
	limit := rate.Inf
	if h.config.EventsPerSecond > 0 {
		limit = rate.Limit(h.config.EventsPerSecond)
	}
	session := &Session{
		Conn:    conn,
		ctx:     sessionCtx,
		cancel:  cancel,
		limiter: rate.NewLimiter(limit, max(h.config.Burst, 1)),
	}

	first := h.registry.Register(conn)
	h.metrics.ActiveConnections.Inc()
	h.log.Info("Connection opened", "conn_id", conn.ID(), "user_id", conn.Identity().ID, "first", first)
	h.presence.Notify()
	return session
}

// Disconnect drops the connection and its channel memberships.
// Presence is broadcast only when the identity went offline.
func (h *Hub) Disconnect(session *Session) {
	session.cancel()
	last := h.registry.Unregister(session.Conn)
	h.metrics.ActiveConnections.Dec()
	h.log.Info("Connection closed", "conn_id", session.Conn.ID(), "user_id", session.Conn.Identity().ID, "last", last)
	if last {
		h.presence.Notify()
	}
}

// Dispatch decodes one inbound frame and runs it.
// join_chat runs inline so later events of the same connection see the membership.
// Everything else runs concurrently with the connection's other events.
func (h *Hub) Dispatch(session *Session, raw []byte) {
	frame, err := event.Decode(raw)
	if err != nil {
		h.reject(session, fmt.Errorf("%w: malformed frame", errors.ErrValidation), "Invalid event")
		return
	}
	h.metrics.EventsReceived.WithLabelValues(frame.Event).Inc()

	if !session.limiter.Allow() {
		h.reject(session, errors.ErrRateLimited, "Too many events")
		return
	}

	if frame.Event == domain.JoinChatCommand {
		h.handle(session, frame)
		return
	}

	session.tasks.Add(1)
	go func() {
		defer session.tasks.Done()
		h.handle(session, frame)
	}()
}

func (h *Hub) handle(session *Session, frame event.Frame) {
	switch frame.Event {
	case domain.JoinChatCommand:
		var cmd domain.JoinChat
		if h.decode(session, frame, &cmd) {
			_ = h.JoinChannel(session.ctx, session, cmd.ChatID)
		}
	case domain.SendMessageCommand:
		var cmd domain.SendMessage
		if h.decode(session, frame, &cmd) {
			_ = h.SendMessage(session.ctx, session, cmd.ChatID, cmd.Content)
		}
	case domain.TypingCommand:
		var cmd domain.Typing
		if h.decode(session, frame, &cmd) {
			h.Typing(session.ctx, session, cmd.ChatID, cmd.IsTyping)
		}
	case domain.MarkAsReadCommand:
		var cmd domain.MarkAsRead
		if h.decode(session, frame, &cmd) {
			h.MarkRead(session.ctx, session, cmd.ChatID)
		}
	default:
		h.reject(session, fmt.Errorf("%w: %w %q", errors.ErrValidation, errors.ErrUnknownEvent, frame.Event), "Unknown event")
	}
}

func (h *Hub) decode(session *Session, frame event.Frame, cmd any) bool {
	if err := json.Unmarshal(frame.Data, cmd); err != nil {
		h.reject(session, fmt.Errorf("%w: %s payload: %v", errors.ErrValidation, frame.Event, err), "Invalid event")
		return false
	}
	if err := auth.Validate(cmd); err != nil {
		h.reject(session, err, "Invalid event")
		return false
	}
	return true
}

// JoinChannel subscribes the connection to the chat channel.
// When participancy is enforced, a non-participant gets an error event and is not joined.
func (h *Hub) JoinChannel(ctx context.Context, session *Session, chatID string) error {
	userID := session.Conn.Identity().ID
	if h.config.JoinRequiresParticipant {
		if _, err := h.store.GetByID(ctx, chatID, userID); err != nil {
			h.reject(session, err, "Failed to join chat")
			return err
		}
	}
	h.registry.Join(chatID, session.Conn)
	h.log.Debug("Joined chat", "conn_id", session.Conn.ID(), "user_id", userID, "chat_id", chatID)
	return nil
}

// SendMessage appends through the store, then fans the message out to the channel,
// sender included. The sequencer is held across append and enqueue so every
// member observes the store order.
func (h *Hub) SendMessage(ctx context.Context, session *Session, chatID, content string) error {
	sender := session.Conn.Identity()
	content, masked := h.config.Filter.Mask(content)
	if len(masked) > 0 {
		h.log.Debug("Message content masked", "chatId", chatID, "sender", sender.ID, "words", len(masked))
	}

	unlock := h.sequencer.Lock(chatID)
	msg, conv, err := h.store.AppendMessage(ctx, chatID, sender.ID, content)
	if err != nil {
		unlock()
		h.reject(session, err, "Failed to send message")
		return err
	}
	h.deliver(ctx, h.registry.Members(chatID), event.NewMessagePosted(chatID, sender, msg), "")
	unlock()
	h.metrics.MessagesSent.Inc()

	update := event.ChatUpdated{ChatID: chatID, LastMessage: msg.Content, Timestamp: msg.CreatedAt}
	for _, participant := range conv.Others(sender.ID) {
		h.deliver(ctx, h.registry.ConnectionsFor(participant), update, "")
	}
	return nil
}

// Typing is relayed to the other members of the channel, nothing is stored.
func (h *Hub) Typing(ctx context.Context, session *Session, chatID string, isTyping bool) {
	evt := event.UserTyping{ChatID: chatID, UserID: session.Conn.Identity().ID, IsTyping: isTyping}
	h.deliver(ctx, h.registry.Members(chatID), evt, session.Conn.ID())
}

// MarkRead records a receipt on every message, then tells the other channel members.
// Unexpected store faults are only logged.
func (h *Hub) MarkRead(ctx context.Context, session *Session, chatID string) {
	userID := session.Conn.Identity().ID
	marked, err := h.store.AppendReadReceipt(ctx, chatID, userID, nil)
	if err != nil {
		if errors.IsDomain(err) {
			h.reject(session, err, "Failed to mark messages as read")
			return
		}
		h.log.Error("Failed to mark messages as read", "chat_id", chatID, "user_id", userID, "error", err)
		return
	}
	h.log.Debug("Messages marked as read", "chat_id", chatID, "user_id", userID, "count", marked)
	h.deliver(ctx, h.registry.Members(chatID), event.MessagesRead{ChatID: chatID, UserID: userID}, session.Conn.ID())
}

// deliver enqueues evt on every connection except exclude.
// Sinks never block; a refused delivery is logged and counted.
func (h *Hub) deliver(ctx context.Context, conns []contract.Connection, evt event.DomainEvent, exclude string) {
	if h.config.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), h.config.DeliveryTimeout)
		defer cancel()
	}
	for _, conn := range conns {
		if conn.ID() == exclude {
			continue
		}
		if err := conn.Consume(ctx, evt); err != nil {
			h.metrics.DeliveriesDropped.WithLabelValues(evt.Name()).Inc()
			h.log.Warn("Delivery dropped", "conn_id", conn.ID(), "event", evt.Name(), "error", err)
		}
	}
}

// reject sends a scoped error event to the originating connection only.
// Internal faults are reported with fallback instead of their cause.
func (h *Hub) reject(session *Session, err error, fallback string) {
	message := errors.Message(err, fallback)
	h.metrics.Rejections.WithLabelValues(fmt.Sprint(errors.HTTPStatus(err))).Inc()
	h.log.Debug("Event rejected", "conn_id", session.Conn.ID(), "error", err)
	if cerr := session.Conn.Consume(session.ctx, event.Failure{Message: message}); cerr != nil {
		h.log.Warn("Failed to deliver error event", "conn_id", session.Conn.ID(), "error", cerr)
	}
}
