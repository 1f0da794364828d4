// ABOUTME: Tests for insight report generation
// ABOUTME: Covers fence-stripped JSON parsing, placeholders, and fallback reports

package insights

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaren/awaren-server/internal/llm"
	"github.com/awaren/awaren-server/internal/memory"
)

type stubMemory struct {
	records []memory.Record
	err     error
}

func (m *stubMemory) Search(ctx context.Context, userID, query string, limit int) ([]memory.Record, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.records) {
		return m.records[:limit], nil
	}
	return m.records, nil
}

func (m *stubMemory) Add(ctx context.Context, userID string, ex memory.Exchange) error {
	return nil
}

// completeOnly implements llm.Provider for the non-streaming path only
type completeOnly struct {
	response string
	err      error
}

func (p *completeOnly) Stream(ctx context.Context, req llm.ChatRequest, onChunk func(string) error) error {
	panic("insights never stream")
}

func (p *completeOnly) Complete(ctx context.Context, prompt string) (string, error) {
	return p.response, p.err
}

func TestHeroNoMemories(t *testing.T) {
	svc := newTestService(&stubMemory{}, &completeOnly{})

	report, err := svc.Hero(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Quiet Mind", report.Title)
	assert.Equal(t, "ANALYZING", report.Badge)
}

func TestHeroParsesFencedJSON(t *testing.T) {
	provider := &completeOnly{response: "```json\n{\"title\": \"Steady Shift\", \"description\": \"desc\", \"badge\": \"GROWTH\"}\n```"}
	mem := &stubMemory{records: []memory.Record{{ID: "m1", Text: "ran daily"}}}
	svc := newTestService(mem, provider)

	report, err := svc.Hero(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Steady Shift", report.Title)
	assert.Equal(t, "GROWTH", report.Badge)
}

func TestHeroModelFailure(t *testing.T) {
	provider := &completeOnly{err: errors.New("model down")}
	mem := &stubMemory{records: []memory.Record{{ID: "m1", Text: "ran daily"}}}
	svc := newTestService(mem, provider)

	_, err := svc.Hero(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestDataReturnsEmptySlicesNotNil(t *testing.T) {
	svc := newTestService(&stubMemory{}, &completeOnly{})

	report, err := svc.Data(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotNil(t, report.Preferences)
	assert.NotNil(t, report.Rhythm)
	assert.Empty(t, report.Preferences)
}

func TestExploreFallbackOnBadJSON(t *testing.T) {
	provider := &completeOnly{response: "I cannot produce JSON today"}
	mem := &stubMemory{records: []memory.Record{{ID: "m1", Text: "x"}}}
	svc := newTestService(mem, provider)

	report, err := svc.Explore(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Evolution Sync", report.ModalTitle)
}

func TestExploreFallbackOnModelFailure(t *testing.T) {
	provider := &completeOnly{err: errors.New("model down")}
	svc := newTestService(&stubMemory{}, provider)

	report, err := svc.Explore(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Evolution Sync", report.ModalTitle)
}

func TestExploreParsesReport(t *testing.T) {
	provider := &completeOnly{response: `{"modal_title":"Mindful Turn","evolution_summary":"s","pattern_recognition":"p","reflection_question":"q"}`}
	svc := newTestService(&stubMemory{}, provider)

	report, err := svc.Explore(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Mindful Turn", report.ModalTitle)
}

func TestSearchFailureIsFatalForHero(t *testing.T) {
	svc := newTestService(&stubMemory{err: errors.New("down")}, &completeOnly{})

	_, err := svc.Hero(context.Background(), "user-1")
	assert.Error(t, err)
}

func newTestService(mem memory.Store, provider *completeOnly) *Service {
	return NewService(mem, provider, slog.Default())
}
