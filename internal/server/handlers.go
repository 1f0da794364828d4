// ABOUTME: HTTP handlers for users, chat streaming, conversations, and memory preview
// ABOUTME: The chat handler relays orchestrator events as SSE message/done/error events

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/awaren/awaren-server/internal/auth"
	"github.com/awaren/awaren-server/internal/chat"
	"github.com/awaren/awaren-server/internal/memory"
	"github.com/awaren/awaren-server/internal/store"
)

const memoryPreviewLimit = 10

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"user_name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		s.sendJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user := &store.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			s.sendJSONError(w, http.StatusBadRequest, "email already registered")
			return
		}
		s.logger.Error("failed to create user", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	token, err := s.verifier.Generate(user.ID, s.cfg.Auth.TokenTTL)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusCreated, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and wrong password
		s.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		s.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.verifier.Generate(user.ID, s.cfg.Auth.TokenTTL)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

type chatRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.sendJSONError(w, http.StatusBadRequest, "no text provided")
		return
	}

	// Check streaming support before sending (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev chat.Event) error {
		var err error
		switch ev.Type {
		case chat.EventMessage:
			err = s.writeSSEEvent(w, "message", map[string]string{"chunk": ev.Chunk})
		case chat.EventDone:
			memories := ev.Memories
			if memories == nil {
				memories = []memory.Record{}
			}
			err = s.writeSSEEvent(w, "done", map[string]any{
				"conversation_id": ev.ConversationID,
				"is_new":          ev.IsNew,
				"memories":        memories,
			})
		case chat.EventError:
			err = s.writeSSEEvent(w, "error", map[string]string{"error": ev.Err})
		}
		if err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := s.chat.Stream(r.Context(), identity.UserID, req.Text, req.ConversationID, emit); err != nil {
		// The terminal error event has already been emitted; just log
		s.logger.Error("chat stream failed", "user_id", identity.UserID, "error", err)
	}
}

type conversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	convs, err := s.store.ListConversations(r.Context(), identity.UserID)
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationSummary{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type messageView struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	conversationID := r.PathValue("id")

	// Existence and ownership failures are indistinguishable
	if _, err := s.store.GetConversation(r.Context(), conversationID, identity.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("failed to load conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	messages, err := s.store.ListMessages(r.Context(), conversationID, identity.UserID)
	if err != nil {
		s.logger.Error("failed to list messages", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]messageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageView{Role: m.Role, Content: m.Content})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	conversationID := r.PathValue("id")

	if err := s.store.DeleteConversation(r.Context(), conversationID, identity.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("failed to delete conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"id": conversationID})
}

func (s *Server) handleRelevantMemories(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	query := r.URL.Query().Get("q")
	if query == "" {
		s.sendJSONError(w, http.StatusBadRequest, "q query param required")
		return
	}

	records, err := s.memories.Search(r.Context(), identity.UserID, query, memoryPreviewLimit)
	if err != nil {
		s.logger.Error("memory preview failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if records == nil {
		records = []memory.Record{}
	}

	s.writeJSON(w, http.StatusOK, records)
}
