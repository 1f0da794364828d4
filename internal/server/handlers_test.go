// ABOUTME: HTTP-level tests for the full route tree over httptest
// ABOUTME: Exercises the SSE chat contract, conversation CRUD, auth, and insight caching

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaren/awaren-server/internal/auth"
	"github.com/awaren/awaren-server/internal/cache"
	"github.com/awaren/awaren-server/internal/chat"
	"github.com/awaren/awaren-server/internal/config"
	"github.com/awaren/awaren-server/internal/insights"
	"github.com/awaren/awaren-server/internal/jobs"
	"github.com/awaren/awaren-server/internal/llm"
	"github.com/awaren/awaren-server/internal/memory"
	"github.com/awaren/awaren-server/internal/store"
)

// scriptProvider plays back canned chunks; failAfter >= 0 injects a fault.
type scriptProvider struct {
	mu         sync.Mutex
	chunks     []string
	failAfter  int
	completion string
	completes  int
}

func (p *scriptProvider) Stream(ctx context.Context, req llm.ChatRequest, onChunk func(string) error) error {
	p.mu.Lock()
	chunks := append([]string(nil), p.chunks...)
	failAfter := p.failAfter
	p.mu.Unlock()

	for i, c := range chunks {
		if failAfter >= 0 && i == failAfter {
			return errors.New("provider exploded")
		}
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *scriptProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completes++
	return p.completion, nil
}

func (p *scriptProvider) completions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completes
}

type memStub struct {
	mu      sync.Mutex
	records []memory.Record
	added   []memory.Exchange
}

func (m *memStub) Search(ctx context.Context, userID, query string, limit int) ([]memory.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit < len(m.records) {
		return m.records[:limit], nil
	}
	return m.records, nil
}

func (m *memStub) Add(ctx context.Context, userID string, ex memory.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, ex)
	return nil
}

type env struct {
	ts        *httptest.Server
	provider  *scriptProvider
	mem       *memStub
	scheduler *jobs.Scheduler
	token     string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	provider := &scriptProvider{chunks: []string{"Hi ", "there"}, failAfter: -1, completion: "Sunny Day Chat"}
	mem := &memStub{}

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Chat.HistoryLimit = 10
	cfg.Chat.StreamBuffer = 16
	cfg.Memory.SearchLimit = 5
	cfg.Cache.TTL = time.Minute
	cfg.Cache.MaxEntries = 100

	path := filepath.Join(t.TempDir(), "server.db")
	st, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.Default()
	scheduler := jobs.NewScheduler(logger, 5*time.Second)
	opener := func() (store.Store, error) { return store.NewSQLiteStore(path) }

	resolver := chat.NewResolver(st, logger)
	assembler := chat.NewAssembler(st, mem, cfg.Chat.HistoryLimit, cfg.Memory.SearchLimit, logger)
	persister := chat.NewPersister(opener, mem, provider, logger)
	chatSvc := chat.NewService(resolver, assembler, provider, persister, scheduler, cfg.Chat.StreamBuffer, logger)

	insightSvc := insights.NewService(mem, provider, logger)
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	c, err := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	srv := New(cfg, st, mem, chatSvc, insightSvc, verifier, c, scheduler, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	e := &env{ts: ts, provider: provider, mem: mem, scheduler: scheduler}
	e.token = e.register(t, "user@example.com", "hunter2-but-long")
	return e
}

func (e *env) register(t *testing.T, email, password string) string {
	t.Helper()

	body := fmt.Sprintf(`{"email":%q,"user_name":"tester","password":%q}`, email, password)
	resp, err := http.Post(e.ts.URL+"/api/v1/users/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var tok tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	require.NotEmpty(t, tok.AccessToken)
	return tok.AccessToken
}

func (e *env) do(t *testing.T, method, path, body, token string) *http.Response {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// sseEvent is one parsed server-sent event
type sseEvent struct {
	Event string
	Data  map[string]any
}

func parseSSE(t *testing.T, r io.Reader) []sseEvent {
	t.Helper()

	var events []sseEvent
	scanner := bufio.NewScanner(r)
	var current sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var data map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data))
			current.Data = data
		case line == "":
			if current.Event != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func (e *env) streamChat(t *testing.T, text, conversationID string) []sseEvent {
	t.Helper()

	payload := map[string]string{"text": text}
	if conversationID != "" {
		payload["conversation_id"] = conversationID
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp := e.do(t, http.MethodPost, "/api/v1/chat/stream", string(body), e.token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	return parseSSE(t, resp.Body)
}

func joinedSSEChunks(events []sseEvent) string {
	var b bytes.Buffer
	for _, ev := range events {
		if ev.Event == "message" {
			b.WriteString(ev.Data["chunk"].(string))
		}
	}
	return b.String()
}

func TestChatStreamNewConversation(t *testing.T) {
	e := newEnv(t)

	events := e.streamChat(t, "Hello", "")
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, "done", last.Event)
	assert.Equal(t, true, last.Data["is_new"])
	convID, _ := last.Data["conversation_id"].(string)
	require.NotEmpty(t, convID)

	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, "message", ev.Event)
	}
	assert.Equal(t, "Hi there", joinedSSEChunks(events))

	e.scheduler.Wait()

	// Round trip: messages persisted byte for byte
	resp := e.do(t, http.MethodGet, "/api/v1/conversations/"+convID+"/messages", "", e.token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var messages []messageView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&messages))
	require.Len(t, messages, 2)
	assert.Equal(t, messageView{Role: "user", Content: "Hello"}, messages[0])
	assert.Equal(t, messageView{Role: "assistant", Content: "Hi there"}, messages[1])
}

func TestChatStreamResumeConversation(t *testing.T) {
	e := newEnv(t)

	first := e.streamChat(t, "Hello", "")
	convID := first[len(first)-1].Data["conversation_id"].(string)
	e.scheduler.Wait()

	second := e.streamChat(t, "Again", convID)
	last := second[len(second)-1]
	require.Equal(t, "done", last.Event)
	assert.Equal(t, false, last.Data["is_new"])
	assert.Equal(t, convID, last.Data["conversation_id"])

	e.scheduler.Wait()

	resp := e.do(t, http.MethodGet, "/api/v1/conversations/"+convID+"/messages", "", e.token)
	defer resp.Body.Close()
	var messages []messageView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&messages))
	assert.Len(t, messages, 4)
}

func TestChatStreamProviderFault(t *testing.T) {
	e := newEnv(t)
	e.provider.failAfter = 1

	events := e.streamChat(t, "Hello", "")
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, "error", last.Event)
	assert.Contains(t, last.Data["error"], "provider exploded")
	for _, ev := range events {
		assert.NotEqual(t, "done", ev.Event)
	}

	e.scheduler.Wait()

	// No messages were persisted for the failed exchange
	resp := e.do(t, http.MethodGet, "/api/v1/conversations", "", e.token)
	defer resp.Body.Close()
	var convs []conversationSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&convs))
	require.Len(t, convs, 1)

	mresp := e.do(t, http.MethodGet, "/api/v1/conversations/"+convs[0].ID+"/messages", "", e.token)
	defer mresp.Body.Close()
	var messages []messageView
	require.NoError(t, json.NewDecoder(mresp.Body).Decode(&messages))
	assert.Empty(t, messages)
}

func TestChatStreamValidation(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/v1/chat/stream", `{"text":"  "}`, e.token)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)

	for _, path := range []string{
		"/api/v1/conversations",
		"/api/v1/memory/relevant?q=x",
		"/api/v1/insights/hero",
	} {
		resp := e.do(t, http.MethodGet, path, "", "")
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestDeleteConversationOwnership(t *testing.T) {
	e := newEnv(t)

	events := e.streamChat(t, "Hello", "")
	convID := events[len(events)-1].Data["conversation_id"].(string)
	e.scheduler.Wait()

	otherToken := e.register(t, "other@example.com", "password-two")

	// Another user's delete reports not found and changes nothing
	resp := e.do(t, http.MethodDelete, "/api/v1/conversations/"+convID, "", otherToken)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	check := e.do(t, http.MethodGet, "/api/v1/conversations/"+convID+"/messages", "", e.token)
	defer check.Body.Close()
	assert.Equal(t, http.StatusOK, check.StatusCode)

	// The owner's delete works
	owned := e.do(t, http.MethodDelete, "/api/v1/conversations/"+convID, "", e.token)
	owned.Body.Close()
	assert.Equal(t, http.StatusOK, owned.StatusCode)

	gone := e.do(t, http.MethodGet, "/api/v1/conversations/"+convID+"/messages", "", e.token)
	gone.Body.Close()
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Post(e.ts.URL+"/api/v1/users/login", "application/json",
		strings.NewReader(`{"email":"user@example.com","password":"hunter2-but-long"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bad, err := http.Post(e.ts.URL+"/api/v1/users/login", "application/json",
		strings.NewReader(`{"email":"user@example.com","password":"wrong"}`))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)
}

func TestRelevantMemories(t *testing.T) {
	e := newEnv(t)
	e.mem.records = []memory.Record{{ID: "m1", Text: "likes tea", Score: 0.8}}

	resp := e.do(t, http.MethodGet, "/api/v1/memory/relevant?q=tea", "", e.token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []memory.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "likes tea", records[0].Text)
}

func TestInsightCaching(t *testing.T) {
	e := newEnv(t)
	e.mem.records = []memory.Record{{ID: "m1", Text: "runs daily"}}
	e.provider.completion = `{"title":"Steady Runner","description":"d","badge":"GROWTH"}`

	get := func(path string) map[string]any {
		resp := e.do(t, http.MethodGet, path, "", e.token)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	first := get("/api/v1/insights/hero")
	assert.Equal(t, "Steady Runner", first["title"])
	calls := e.provider.completions()

	// Within the TTL the cached report is served, no new model call
	second := get("/api/v1/insights/hero")
	assert.Equal(t, first, second)
	assert.Equal(t, calls, e.provider.completions())

	// refresh=true recomputes and rewarms
	third := get("/api/v1/insights/hero?refresh=true")
	assert.Equal(t, "Steady Runner", third["title"])
	assert.Greater(t, e.provider.completions(), calls)
}

func TestExploreInsightFallback(t *testing.T) {
	e := newEnv(t)
	e.provider.completion = "not json at all"

	resp := e.do(t, http.MethodGet, "/api/v1/insights/explore", "", e.token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Evolution Sync", out["modal_title"])
}

func TestHealth(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
