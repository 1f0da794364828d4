// ABOUTME: Centralized prompt pack, embedded as TOML and loaded at init
// ABOUTME: Owns every model-facing prompt string in the application

package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed prompts.toml
var rawPack []byte

type chatPrompts struct {
	Persona          string `toml:"persona"`
	MemoryAwareness  string `toml:"memory_awareness"`
	FreshInteraction string `toml:"fresh_interaction"`
}

type titlePrompts struct {
	Template    string `toml:"template"`
	Fallback    string `toml:"fallback"`
	Placeholder string `toml:"placeholder"`
}

type insightPrompts struct {
	HeroQuery        string `toml:"hero_query"`
	PreferencesQuery string `toml:"preferences_query"`
	RhythmQuery      string `toml:"rhythm_query"`
	ExploreQuery     string `toml:"explore_query"`
	HeroTemplate     string `toml:"hero_template"`
	ExploreTemplate  string `toml:"explore_template"`
}

type pack struct {
	Chat     chatPrompts    `toml:"chat"`
	Title    titlePrompts   `toml:"title"`
	Insights insightPrompts `toml:"insights"`
}

var p pack

func init() {
	if err := toml.Unmarshal(rawPack, &p); err != nil {
		panic(fmt.Sprintf("prompts: parsing embedded pack: %v", err))
	}
}

// ChatSystem builds the system prompt for the main chat experience. When
// memoryContext is non-empty the prompt includes a memory awareness section
// carrying the retrieved context; otherwise it steers toward a fresh
// interaction.
func ChatSystem(memoryContext string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Chat.Persona))
	b.WriteString("\n\n")

	if memoryContext != "" {
		b.WriteString(strings.TrimSpace(p.Chat.MemoryAwareness))
		b.WriteString("\n")
		b.WriteString(memoryContext)
	} else {
		b.WriteString(strings.TrimSpace(p.Chat.FreshInteraction))
	}

	return b.String()
}

// Title builds the prompt that generates a short conversation title from the
// first user message.
func Title(firstMessage string) string {
	return fmt.Sprintf(p.Title.Template, firstMessage)
}

// TitleFallback is used when title generation fails.
func TitleFallback() string {
	return p.Title.Fallback
}

// TitlePlaceholder is the title a conversation carries before one is generated.
func TitlePlaceholder() string {
	return p.Title.Placeholder
}

// HeroInsight builds the prompt for the high-level pattern insight.
func HeroInsight(memoryContext string) string {
	return fmt.Sprintf(strings.TrimSpace(p.Insights.HeroTemplate), memoryContext)
}

// DeepInsight builds the prompt for the deep-dive exploration report.
func DeepInsight(memoryContext string) string {
	return fmt.Sprintf(strings.TrimSpace(p.Insights.ExploreTemplate), memoryContext)
}

// Semantic queries used for insight memory retrieval.
func HeroQuery() string        { return p.Insights.HeroQuery }
func PreferencesQuery() string { return p.Insights.PreferencesQuery }
func RhythmQuery() string      { return p.Insights.RhythmQuery }
func ExploreQuery() string     { return p.Insights.ExploreQuery }
