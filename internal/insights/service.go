// ABOUTME: Insight reports generated from long-term memory via templated prompts
// ABOUTME: Hero, data, and deep-dive reports with tolerant JSON parsing and fallbacks

package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/awaren/awaren-server/internal/llm"
	"github.com/awaren/awaren-server/internal/memory"
	"github.com/awaren/awaren-server/internal/prompts"
)

// Search limits per report. The deep dive reads wider for richer context.
const (
	heroSearchLimit        = 10
	preferencesSearchLimit = 5
	rhythmSearchLimit      = 4
	exploreSearchLimit     = 15
)

// HeroReport is the high-level pattern insight shown on the home screen
type HeroReport struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Badge       string `json:"badge"`
}

// DataReport groups raw memory matches by theme, no model involved
type DataReport struct {
	Preferences []memory.Record `json:"preferences"`
	Rhythm      []memory.Record `json:"rhythm"`
}

// DeepReport is the deep-dive exploration of behavioral shifts
type DeepReport struct {
	ModalTitle         string `json:"modal_title"`
	EvolutionSummary   string `json:"evolution_summary"`
	PatternRecognition string `json:"pattern_recognition"`
	ReflectionQuestion string `json:"reflection_question"`
}

// Service computes insight reports. Caching is the transport layer's
// concern; every call here recomputes from memory and the model.
type Service struct {
	memories memory.Store
	provider llm.Provider
	logger   *slog.Logger
}

// NewService creates an insights service.
func NewService(mem memory.Store, provider llm.Provider, logger *slog.Logger) *Service {
	return &Service{
		memories: mem,
		provider: provider,
		logger:   logger.With("component", "insights"),
	}
}

// Hero produces the high-level psychological pattern insight. With no
// memories yet it returns the waiting placeholder instead of calling the
// model.
func (s *Service) Hero(ctx context.Context, userID string) (*HeroReport, error) {
	records, err := s.memories.Search(ctx, userID, prompts.HeroQuery(), heroSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}

	if len(records) == 0 {
		return &HeroReport{
			Title:       "Quiet Mind",
			Description: "AWAREN is waiting for more reflections to identify a distinct pattern.",
			Badge:       "ANALYZING",
		}, nil
	}

	raw, err := s.provider.Complete(ctx, prompts.HeroInsight(joinTexts(records)))
	if err != nil {
		return nil, fmt.Errorf("generating hero insight: %w", err)
	}

	var report HeroReport
	if err := parseModelJSON(raw, &report); err != nil {
		return nil, fmt.Errorf("parsing hero insight: %w", err)
	}
	return &report, nil
}

// Data returns raw themed memory matches without any model call.
func (s *Service) Data(ctx context.Context, userID string) (*DataReport, error) {
	preferences, err := s.memories.Search(ctx, userID, prompts.PreferencesQuery(), preferencesSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching preferences: %w", err)
	}

	rhythm, err := s.memories.Search(ctx, userID, prompts.RhythmQuery(), rhythmSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching rhythm: %w", err)
	}

	if preferences == nil {
		preferences = []memory.Record{}
	}
	if rhythm == nil {
		rhythm = []memory.Record{}
	}

	return &DataReport{Preferences: preferences, Rhythm: rhythm}, nil
}

// Explore produces the deep-dive report. Any model or parse failure
// degrades to the fixed fallback report rather than an error.
func (s *Service) Explore(ctx context.Context, userID string) (*DeepReport, error) {
	records, err := s.memories.Search(ctx, userID, prompts.ExploreQuery(), exploreSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}

	raw, err := s.provider.Complete(ctx, prompts.DeepInsight(joinTexts(records)))
	if err != nil {
		s.logger.Warn("deep insight generation failed, using fallback", "error", err)
		return exploreFallback(), nil
	}

	var report DeepReport
	if err := parseModelJSON(raw, &report); err != nil {
		s.logger.Warn("deep insight response unparseable, using fallback", "error", err)
		return exploreFallback(), nil
	}
	return &report, nil
}

func exploreFallback() *DeepReport {
	return &DeepReport{
		ModalTitle:         "Evolution Sync",
		EvolutionSummary:   "Your neural patterns are currently realigning.",
		PatternRecognition: "AWAREN is waiting for more consistent data points to finalize this recognition.",
		ReflectionQuestion: "What does clarity feel like to you right now?",
	}
}

func joinTexts(records []memory.Record) string {
	texts := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Text != "" {
			texts = append(texts, rec.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// parseModelJSON strips markdown code fences models wrap JSON in, then
// unmarshals into out.
func parseModelJSON(raw string, out any) error {
	clean := strings.ReplaceAll(raw, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)
	return json.Unmarshal([]byte(clean), out)
}
