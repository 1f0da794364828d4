// ABOUTME: Terminal chat client for awaren-server via the HTTP API
// ABOUTME: Provides readline-style input and SSE streaming output with JWT auth

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
)

// getTokenPath returns the location of the saved access token file.
func getTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "awaren", "token")
}

// getToken returns the JWT token from AWAREN_TOKEN or the saved token file.
func getToken() string {
	if token := os.Getenv("AWAREN_TOKEN"); token != "" {
		return token
	}

	path := getTokenPath()
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveToken(token string) error {
	path := getTokenPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0600)
}

// chatRequest is the JSON body sent to POST /api/v1/chat/stream.
type chatRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Username string `json:"user_name,omitempty"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type conversationSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

func main() {
	server := flag.String("server", "http://localhost:8000", "awaren-server URL")
	flag.Parse()

	fmt.Printf("awaren-chat connected to %s\n", *server)
	if getToken() != "" {
		fmt.Println("Auth: access token configured")
	} else {
		fmt.Println("Auth: none (use /register or /login)")
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, server string) error {
	scanner := bufio.NewScanner(os.Stdin)
	var conversationID string

	for {
		if conversationID != "" {
			fmt.Printf("[%s]> ", conversationID[:8])
		} else {
			fmt.Print("> ")
		}

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/exit" || input == "/q":
			return nil

		case input == "/help":
			printHelp()
			fmt.Println()
			continue

		case input == "/register" || input == "/login":
			if err := authenticate(ctx, server, scanner, input == "/register"); err != nil {
				color.Red("[error] %v", err)
			}
			fmt.Println()
			continue

		case input == "/new":
			conversationID = ""
			fmt.Println("Starting a new conversation")
			fmt.Println()
			continue

		case input == "/list":
			if err := listConversations(ctx, server); err != nil {
				color.Red("[error] %v", err)
			}
			fmt.Println()
			continue

		case strings.HasPrefix(input, "/open"):
			args := strings.TrimSpace(strings.TrimPrefix(input, "/open"))
			if args == "" {
				fmt.Println("Usage: /open <conversation_id>")
			} else {
				conversationID = args
				if err := showMessages(ctx, server, conversationID); err != nil {
					color.Red("[error] %v", err)
					conversationID = ""
				}
			}
			fmt.Println()
			continue

		case strings.HasPrefix(input, "/memories"):
			query := strings.TrimSpace(strings.TrimPrefix(input, "/memories"))
			if query == "" {
				fmt.Println("Usage: /memories <query>")
			} else if err := showMemories(ctx, server, query); err != nil {
				color.Red("[error] %v", err)
			}
			fmt.Println()
			continue
		}

		newID, err := sendMessage(ctx, server, conversationID, input)
		if err != nil {
			color.Red("[error] %v", err)
		} else if newID != "" {
			conversationID = newID
		}
		fmt.Println()
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /register          Create an account and save the token")
	fmt.Println("  /login             Log in and save the token")
	fmt.Println("  /new               Start a new conversation")
	fmt.Println("  /list              List your conversations")
	fmt.Println("  /open <id>         Resume a conversation and show its messages")
	fmt.Println("  /memories <query>  Preview memories relevant to a query")
	fmt.Println("  /help              Show this help")
	fmt.Println("  /quit              Exit")
}

// authenticate registers or logs in, then saves the returned token.
func authenticate(ctx context.Context, server string, scanner *bufio.Scanner, register bool) error {
	creds := credentialsRequest{}

	fmt.Print("Email: ")
	if !scanner.Scan() {
		return io.EOF
	}
	creds.Email = strings.TrimSpace(scanner.Text())

	if register {
		fmt.Print("Name: ")
		if !scanner.Scan() {
			return io.EOF
		}
		creds.Username = strings.TrimSpace(scanner.Text())
	}

	fmt.Print("Password: ")
	if !scanner.Scan() {
		return io.EOF
	}
	creds.Password = strings.TrimSpace(scanner.Text())

	path := "/api/v1/users/login"
	if register {
		path = "/api/v1/users/register"
	}

	body, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if err := saveToken(tok.AccessToken); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	color.Green("Authenticated, token saved to %s", getTokenPath())
	return nil
}

func listConversations(ctx context.Context, server string) error {
	resp, err := apiGet(ctx, server, "/api/v1/conversations")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var convs []conversationSummary
	if err := json.NewDecoder(resp.Body).Decode(&convs); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(convs) == 0 {
		fmt.Println("No conversations yet")
		return nil
	}

	for _, c := range convs {
		fmt.Printf("  %s  %s\n", color.HiBlackString(c.ID), c.Title)
	}
	return nil
}

func showMessages(ctx context.Context, server, conversationID string) error {
	resp, err := apiGet(ctx, server, "/api/v1/conversations/"+conversationID+"/messages")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	for _, m := range messages {
		if m.Role == "user" {
			color.Blue("you: %s", m.Content)
		} else {
			fmt.Printf("awaren: %s\n", m.Content)
		}
	}
	return nil
}

func showMemories(ctx context.Context, server, query string) error {
	resp, err := apiGet(ctx, server, "/api/v1/memory/relevant?q="+strings.ReplaceAll(query, " ", "+"))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var records []struct {
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No relevant memories")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("  %s %s\n", color.HiBlackString(fmt.Sprintf("%.2f", rec.Score)), truncate(rec.Text, 100))
	}
	return nil
}

func apiGet(ctx context.Context, server, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if token := getToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting server: %w", err)
	}
	return resp, nil
}

// apiError extracts the server's error message from a non-2xx response.
func apiError(resp *http.Response) error {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			if msg, ok := errResp["error"]; ok {
				return fmt.Errorf("%s", msg)
			}
		}
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}

// sendMessage posts a chat message and streams the SSE response. Returns the
// conversation id from the done event so the loop can resume it.
func sendMessage(ctx context.Context, server, conversationID, text string) (string, error) {
	body, err := json.Marshal(chatRequest{Text: text, ConversationID: conversationID})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/v1/chat/stream", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if token := getToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}

	return streamSSE(ctx, resp.Body)
}

func streamSSE(ctx context.Context, body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)

	var eventType string
	var dataLines []string
	var conversationID string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return conversationID, ctx.Err()
		default:
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if eventType != "" && len(dataLines) > 0 {
				data := strings.Join(dataLines, "\n")
				id, err := handleSSEEvent(eventType, data)
				if err != nil {
					return conversationID, err
				}
				if id != "" {
					conversationID = id
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		}
	}

	return conversationID, scanner.Err()
}

// handleSSEEvent renders one event. Returns the conversation id when the
// terminal done event carries one.
func handleSSEEvent(eventType, data string) (string, error) {
	switch eventType {
	case "message":
		var payload struct {
			Chunk string `json:"chunk"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return "", fmt.Errorf("parsing event data: %w", err)
		}
		fmt.Print(payload.Chunk)

	case "done":
		var payload struct {
			ConversationID string `json:"conversation_id"`
			IsNew          bool   `json:"is_new"`
			Memories       []struct {
				Text string `json:"text"`
			} `json:"memories"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return "", fmt.Errorf("parsing event data: %w", err)
		}
		fmt.Println()
		if len(payload.Memories) > 0 {
			color.HiBlack("(%d memories recalled)", len(payload.Memories))
		}
		return payload.ConversationID, nil

	case "error":
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return "", fmt.Errorf("parsing event data: %w", err)
		}
		color.Red("[error] %s", payload.Error)
	}

	return "", nil
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
