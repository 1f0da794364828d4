// ABOUTME: Long-term memory types and the Store interface
// ABOUTME: Defines Record, Exchange and the semantic search/add contract

package memory

import "context"

// Record is a single memory returned from semantic search
type Record struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Score      float64  `json:"score"`
	Categories []string `json:"categories"`
}

// Exchange is one completed user/assistant turn to be remembered
type Exchange struct {
	ConversationID string
	UserText       string
	AssistantText  string
}

// Store defines the interface for long-term memory.
// All operations are scoped to a user; a search never returns another
// user's memories.
type Store interface {
	// Search returns up to limit memories relevant to the query, best first.
	Search(ctx context.Context, userID, query string, limit int) ([]Record, error)

	// Add stores a completed exchange as a new memory.
	Add(ctx context.Context, userID string, ex Exchange) error
}
