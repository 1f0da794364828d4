// ABOUTME: Model provider built on langchaingo with openai/anthropic/ollama backends
// ABOUTME: Exposes push-callback streaming and single-shot completion

package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/awaren/awaren-server/internal/config"
	"github.com/awaren/awaren-server/internal/store"
)

// ChatRequest is a fully assembled model request: system prompt, recent
// history in chronological order, and the new user input.
type ChatRequest struct {
	System  string
	History []*store.Message
	Input   string
}

// Provider defines the model operations the orchestrator needs.
// Stream pushes chunks into the callback as they arrive; Complete returns a
// whole response for non-streaming work such as title generation.
type Provider interface {
	Stream(ctx context.Context, req ChatRequest, onChunk func(chunk string) error) error
	Complete(ctx context.Context, prompt string) (string, error)
}

// Model wraps a langchaingo llms.Model for chat generation
type Model struct {
	llm         llms.Model
	temperature float64
}

// New creates a model provider based on configuration.
func New(cfg config.LLMConfig) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.ServerURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	return &Model{
		llm:         model,
		temperature: cfg.Temperature,
	}, nil
}

// BuildMessages converts a ChatRequest into langchaingo message contents,
// system prompt first, then history in order, then the new input.
func BuildMessages(req ChatRequest) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.History)+2)

	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}

	for _, msg := range req.History {
		role := llms.ChatMessageTypeHuman
		if msg.Role == store.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}

	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Input))
	return messages
}

// Stream generates a response, pushing each chunk into onChunk as the
// backend produces it. An error from onChunk aborts the generation.
func (m *Model) Stream(ctx context.Context, req ChatRequest, onChunk func(chunk string) error) error {
	_, err := m.llm.GenerateContent(ctx, BuildMessages(req),
		llms.WithTemperature(m.temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onChunk(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("streaming generation: %w", err)
	}
	return nil
}

// Complete generates a whole response for a single prompt.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt,
		llms.WithTemperature(m.temperature))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return response, nil
}

// Ensure Model implements Provider
var _ Provider = (*Model)(nil)
