package server

import (
	"chat-hub/auth"
	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/services"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

type createChatRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type createGroupRequest struct {
	GroupName    string   `json:"groupName"`
	Participants []string `json:"participants" validate:"required,min=1,dive,required"`
}

type addParticipantsRequest struct {
	Participants []string `json:"participants" validate:"required,min=1,dive,required"`
}

type createChatResponse struct {
	Success bool          `json:"success"`
	Chat    services.Chat `json:"chat"`
	Message string        `json:"message"`
}

type messagesResponse struct {
	Messages []services.MessageView `json:"messages"`
	Cursor   *string                `json:"cursor"`
}

// createChat answers 201 on creation and 200 with the same chat on repeat.
func (s *Server) createChat(w http.ResponseWriter, r *http.Request) {
	requester := s.requester(r)
	var req createChatRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	chat, created, err := s.chatService.CreateIndividual(r.Context(), requester, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !created {
		s.writeJSON(w, http.StatusOK, createChatResponse{Success: true, Chat: chat, Message: "Chat already exists"})
		return
	}
	s.writeJSON(w, http.StatusCreated, createChatResponse{Success: true, Chat: chat, Message: "Chat created successfully"})
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	requester := s.requester(r)
	var req createGroupRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	chat, err := s.chatService.CreateGroup(r.Context(), requester, req.GroupName, req.Participants)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, chat)
}

func (s *Server) userChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chatService.ListForUser(r.Context(), s.requester(r).ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chats)
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.chatService.Get(r.Context(), mux.Vars(r)["chatId"], s.requester(r).ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chat)
}

// listMessages pages backwards from cursor, newest first.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	messages, next, err := s.chatService.ListMessages(r.Context(), mux.Vars(r)["chatId"], s.requester(r).ID, cursor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messagesResponse{Messages: messages, Cursor: next})
}

func (s *Server) addParticipants(w http.ResponseWriter, r *http.Request) {
	var req addParticipantsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	chat, err := s.chatService.AddParticipants(r.Context(), mux.Vars(r)["chatId"], s.requester(r).ID, req.Participants)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chat)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatId"]
	requester := s.requester(r)
	marked, err := s.chatService.MarkRead(r.Context(), chatID, requester.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Debug("Messages marked as read", "chat_id", chatID, "user_id", requester.ID, "count", marked)
	s.writeJSON(w, http.StatusOK, response{Success: true, Message: "Messages marked as read"})
}

// requester is always set behind auth.Middleware.
func (s *Server) requester(r *http.Request) domain.Identity {
	identity, _ := auth.IdentityFromContext(r.Context())
	return identity
}

func decode(r *http.Request, req any) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return fmt.Errorf("%w: malformed body: %v", errors.ErrValidation, err)
	}
	return auth.Validate(req)
}
