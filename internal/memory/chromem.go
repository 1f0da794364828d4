// ABOUTME: chromem-go implementation of the memory Store interface
// ABOUTME: Embedded vector database with per-user metadata filtering

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/google/uuid"
)

// ChromemStore implements Store using chromem-go, a pure Go embedded
// vector database. All memories live in one collection per namespace and
// are filtered by user_id metadata on every query.
type ChromemStore struct {
	col    *chromem.Collection
	logger *slog.Logger
}

// ChromemConfig configures a ChromemStore
type ChromemConfig struct {
	Path              string // empty = in-memory only
	Namespace         string
	EmbeddingProvider string // "openai" or "ollama"
	EmbeddingModel    string
	APIKey            string // openai only
	ServerURL         string // ollama only
}

// NewChromemStore creates a memory store with an embedding function selected
// by the configured provider.
func NewChromemStore(cfg ChromemConfig) (*ChromemStore, error) {
	embed, err := embeddingFunc(cfg)
	if err != nil {
		return nil, err
	}
	return NewChromemStoreWithEmbedding(cfg.Path, cfg.Namespace, embed)
}

// NewChromemStoreWithEmbedding creates a memory store with a caller-supplied
// embedding function. Tests use this with a deterministic embedder.
func NewChromemStoreWithEmbedding(path, namespace string, embed chromem.EmbeddingFunc) (*ChromemStore, error) {
	var db *chromem.DB
	var err error

	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("opening memory database: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(namespace, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("creating memory collection: %w", err)
	}

	return &ChromemStore{
		col:    col,
		logger: slog.Default().With("component", "memory"),
	}, nil
}

func embeddingFunc(cfg ChromemConfig) (chromem.EmbeddingFunc, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, chromem.EmbeddingModelOpenAI(cfg.EmbeddingModel)), nil
	case "ollama":
		return chromem.NewEmbeddingFuncOllama(cfg.EmbeddingModel, cfg.ServerURL), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.EmbeddingProvider)
	}
}

// Search returns up to limit memories for the user, best match first.
// An empty collection returns no results rather than an error.
func (s *ChromemStore) Search(ctx context.Context, userID, query string, limit int) ([]Record, error) {
	// chromem requires nResults <= number of stored documents
	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	// The where filter can leave fewer candidates than nResults, which
	// chromem treats as an error. Retry with smaller limits until it fits.
	where := map[string]string{"user_id": userID}
	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		var err error
		results, err = s.col.Query(ctx, query, n, where, nil)
		if err == nil {
			break
		}
		if strings.Contains(err.Error(), "nResults") {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("querying memories: %w", err)
	}

	records := make([]Record, 0, len(results))
	for _, res := range results {
		records = append(records, Record{
			ID:         res.ID,
			Text:       res.Content,
			Score:      float64(res.Similarity),
			Categories: splitCategories(res.Metadata["categories"]),
		})
	}

	s.logger.Debug("memory search", "user_id", userID, "results", len(records))
	return records, nil
}

// Add stores a completed exchange as a single memory document.
func (s *ChromemStore) Add(ctx context.Context, userID string, ex Exchange) error {
	doc := chromem.Document{
		ID:      uuid.NewString(),
		Content: fmt.Sprintf("User: %s\nAssistant: %s", ex.UserText, ex.AssistantText),
		Metadata: map[string]string{
			"user_id":         userID,
			"conversation_id": ex.ConversationID,
			"created_at":      time.Now().UTC().Format(time.RFC3339),
		},
	}

	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("adding memory: %w", err)
	}

	s.logger.Debug("memory added", "user_id", userID, "conversation_id", ex.ConversationID)
	return nil
}

func splitCategories(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// Ensure ChromemStore implements Store interface
var _ Store = (*ChromemStore)(nil)
