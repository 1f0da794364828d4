// ABOUTME: Persistence Coordinator and Title Generator running after the terminal event
// ABOUTME: Opens fresh store handles so jobs never reuse request-scoped resources

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/awaren/awaren-server/internal/llm"
	"github.com/awaren/awaren-server/internal/memory"
	"github.com/awaren/awaren-server/internal/prompts"
	"github.com/awaren/awaren-server/internal/store"
)

// Persister durably records completed exchanges and generates titles.
// It runs only in background jobs, after the stream's terminal event.
type Persister struct {
	openStore store.Opener
	memories  memory.Store
	provider  llm.Provider
	logger    *slog.Logger
}

// NewPersister creates a Persister. openStore is called once per job to get
// a handle independent of the originating request.
func NewPersister(openStore store.Opener, mem memory.Store, provider llm.Provider, logger *slog.Logger) *Persister {
	return &Persister{
		openStore: openStore,
		memories:  mem,
		provider:  provider,
		logger:    logger.With("component", "persister"),
	}
}

// PersistExchange writes the user/assistant pair to the relational store and
// submits it to the memory store. The two writes are independent: one
// failing does not roll back or skip the other. Each exchange gets exactly
// one attempt.
func (p *Persister) PersistExchange(ctx context.Context, userID, conversationID, userText, assistantText string) error {
	var relErr error

	st, err := p.openStore()
	if err != nil {
		relErr = fmt.Errorf("opening store: %w", err)
	} else {
		defer st.Close()

		now := time.Now()
		userMsg := &store.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			UserID:         userID,
			Role:           store.RoleUser,
			Content:        userText,
			CreatedAt:      now,
		}
		assistantMsg := &store.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			UserID:         userID,
			Role:           store.RoleAssistant,
			Content:        assistantText,
			CreatedAt:      now.Add(time.Millisecond),
		}

		if err := st.AppendExchange(ctx, userMsg, assistantMsg); err != nil {
			relErr = fmt.Errorf("appending exchange: %w", err)
		}
	}

	var memErr error
	if err := p.memories.Add(ctx, userID, memory.Exchange{
		ConversationID: conversationID,
		UserText:       userText,
		AssistantText:  assistantText,
	}); err != nil {
		memErr = fmt.Errorf("adding memory: %w", err)
	}

	return errors.Join(relErr, memErr)
}

// GenerateTitle asks the model for a short title seeded with the first
// message and writes it back. On any generation failure the fallback title
// is written instead; the conversation never keeps its placeholder just
// because the model was down.
func (p *Persister) GenerateTitle(ctx context.Context, userID, conversationID, firstMessage string) error {
	title, err := p.provider.Complete(ctx, prompts.Title(firstMessage))
	if err != nil {
		p.logger.Warn("title generation failed, using fallback", "conversation_id", conversationID, "error", err)
		title = prompts.TitleFallback()
	}

	title = cleanTitle(title)
	if title == "" {
		title = prompts.TitleFallback()
	}

	st, err := p.openStore()
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if err := st.UpdateConversationTitle(ctx, conversationID, userID, title); err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	return nil
}

// cleanTitle strips quotes and whitespace models like to wrap titles in.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	return strings.TrimSpace(title)
}
