// ABOUTME: Context Assembler composing model input from history and long-term memory
// ABOUTME: Memory search failures degrade to an empty context; history failures are fatal

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/awaren/awaren-server/internal/memory"
	"github.com/awaren/awaren-server/internal/prompts"
	"github.com/awaren/awaren-server/internal/store"
)

// Context is the assembled model input for one exchange.
type Context struct {
	System   string
	History  []*store.Message
	Memories []memory.Record
}

// Assembler builds model context from the two memory sources.
type Assembler struct {
	store        store.Store
	memories     memory.Store
	historyLimit int
	searchLimit  int
	logger       *slog.Logger
}

// NewAssembler creates an Assembler with the given history window and memory
// search cap.
func NewAssembler(st store.Store, mem memory.Store, historyLimit, searchLimit int, logger *slog.Logger) *Assembler {
	return &Assembler{
		store:        st,
		memories:     mem,
		historyLimit: historyLimit,
		searchLimit:  searchLimit,
		logger:       logger.With("component", "assembler"),
	}
}

// Assemble retrieves the recent history window and the top memory matches
// for the user's input, and composes the system prompt. A memory search
// failure is tolerated and degrades to an empty memory context; a history
// failure aborts before any model call.
func (a *Assembler) Assemble(ctx context.Context, userID, conversationID, input string) (*Context, error) {
	history, err := a.store.ListRecentMessages(ctx, conversationID, userID, a.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	records, err := a.memories.Search(ctx, userID, input, a.searchLimit)
	if err != nil {
		a.logger.Warn("memory search failed, continuing without memories", "error", err)
		records = nil
	}

	texts := make([]string, 0, len(records))
	for _, rec := range records {
		texts = append(texts, rec.Text)
	}

	return &Context{
		System:   prompts.ChatSystem(strings.Join(texts, "\n")),
		History:  history,
		Memories: records,
	}, nil
}
