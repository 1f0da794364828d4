// ABOUTME: Chat orchestrator driving resolve, assemble, stream, and background persistence
// ABOUTME: Emits ordered message events and exactly one terminal done or error event

package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/awaren/awaren-server/internal/jobs"
	"github.com/awaren/awaren-server/internal/llm"
	"github.com/awaren/awaren-server/internal/memory"
)

// ErrEmptyMessage is returned when the submitted text is empty or whitespace
var ErrEmptyMessage = errors.New("message text is empty")

// EventType discriminates stream events
type EventType string

// Stream event types
const (
	EventMessage EventType = "message"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Event is one element of the chat event stream. Message events carry a
// Chunk; the done event carries the conversation outcome; the error event
// carries a fault description. Done and error are mutually exclusive.
type Event struct {
	Type           EventType
	Chunk          string
	ConversationID string
	IsNew          bool
	Memories       []memory.Record
	Err            string
}

// Service orchestrates one chat exchange end to end.
type Service struct {
	resolver     *Resolver
	assembler    *Assembler
	provider     llm.Provider
	persister    *Persister
	jobs         *jobs.Scheduler
	streamBuffer int
	logger       *slog.Logger
}

// NewService wires the orchestrator from its collaborators.
func NewService(resolver *Resolver, assembler *Assembler, provider llm.Provider, persister *Persister, scheduler *jobs.Scheduler, streamBuffer int, logger *slog.Logger) *Service {
	return &Service{
		resolver:     resolver,
		assembler:    assembler,
		provider:     provider,
		persister:    persister,
		jobs:         scheduler,
		streamBuffer: streamBuffer,
		logger:       logger.With("component", "chat"),
	}
}

// Stream runs one exchange, pushing events into emit in order. emit
// returning an error means the caller is gone: the stream tears down
// silently and nothing is persisted. On success the terminal done event is
// emitted first, then persistence and (for new conversations) title
// generation are scheduled as background jobs.
func (s *Service) Stream(ctx context.Context, userID, text, conversationID string, emit func(Event) error) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	conv, isNew, err := s.resolver.Resolve(ctx, userID, conversationID)
	if err != nil {
		s.logger.Error("conversation resolution failed", "error", err)
		emit(Event{Type: EventError, Err: "failed to start conversation"})
		return err
	}

	assembled, err := s.assembler.Assemble(ctx, userID, conv.ID, text)
	if err != nil {
		s.logger.Error("context assembly failed", "conversation_id", conv.ID, "error", err)
		emit(Event{Type: EventError, Err: "failed to load conversation context"})
		return err
	}

	req := llm.ChatRequest{
		System:  assembled.System,
		History: assembled.History,
		Input:   text,
	}

	bridge := NewBridge(ctx, s.streamBuffer, func(pctx context.Context, push func(chunk string) error) error {
		return s.provider.Stream(pctx, req, push)
	})
	defer bridge.Close()

	var reply strings.Builder
	for {
		select {
		case <-ctx.Done():
			// Caller disconnected: tear down silently, persist nothing
			s.logger.Debug("stream cancelled", "conversation_id", conv.ID)
			return nil

		case item, ok := <-bridge.Items():
			if !ok {
				return nil
			}

			if item.Done {
				if item.Err != nil {
					s.logger.Error("model stream failed", "conversation_id", conv.ID, "error", item.Err)
					emit(Event{Type: EventError, Err: item.Err.Error()})
					return item.Err
				}

				if err := emit(Event{
					Type:           EventDone,
					ConversationID: conv.ID,
					IsNew:          isNew,
					Memories:       assembled.Memories,
				}); err != nil {
					// Terminal event never reached the caller
					return nil
				}

				s.schedulePersistence(userID, conv.ID, text, reply.String(), isNew)
				return nil
			}

			reply.WriteString(item.Chunk)
			if err := emit(Event{Type: EventMessage, Chunk: item.Chunk}); err != nil {
				return nil
			}
		}
	}
}

// schedulePersistence fires the background jobs for a completed exchange.
func (s *Service) schedulePersistence(userID, conversationID, userText, assistantText string, isNew bool) {
	s.jobs.Go("persist-exchange", func(ctx context.Context) error {
		return s.persister.PersistExchange(ctx, userID, conversationID, userText, assistantText)
	})

	if isNew {
		s.jobs.Go("generate-title", func(ctx context.Context) error {
			return s.persister.GenerateTitle(ctx, userID, conversationID, userText)
		})
	}
}
