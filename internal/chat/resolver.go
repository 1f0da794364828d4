// ABOUTME: Conversation Resolver creating or validating ownership of a conversation
// ABOUTME: Falls back to a fresh conversation for missing, malformed, or unowned ids

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/awaren/awaren-server/internal/prompts"
	"github.com/awaren/awaren-server/internal/store"
)

// Resolver creates or validates conversations before a stream starts.
type Resolver struct {
	store  store.Store
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(st store.Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  st,
		logger: logger.With("component", "resolver"),
	}
}

// Resolve returns the conversation the exchange belongs to and whether it was
// created for this request. A supplied id that is malformed, unknown, or
// owned by another user falls back to creating a fresh conversation; the
// stream never fails over a bad id. The new row is durably created before
// any streaming begins.
func (r *Resolver) Resolve(ctx context.Context, userID, conversationID string) (*store.Conversation, bool, error) {
	if conversationID != "" {
		if _, err := uuid.Parse(conversationID); err != nil {
			r.logger.Debug("malformed conversation id, creating new", "user_id", userID)
		} else {
			conv, err := r.store.GetConversation(ctx, conversationID, userID)
			if err == nil {
				return conv, false, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, false, fmt.Errorf("resolving conversation: %w", err)
			}
			r.logger.Debug("conversation not found for user, creating new", "user_id", userID)
		}
	}

	conv := &store.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     prompts.TitlePlaceholder(),
		CreatedAt: time.Now(),
	}
	if err := r.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("creating conversation: %w", err)
	}

	return conv, true, nil
}
