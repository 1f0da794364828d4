// ABOUTME: Main entry point for awaren-server
// ABOUTME: Handles subcommands: serve (default), init, health

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/awaren/awaren-server/internal/auth"
	"github.com/awaren/awaren-server/internal/cache"
	"github.com/awaren/awaren-server/internal/chat"
	"github.com/awaren/awaren-server/internal/config"
	"github.com/awaren/awaren-server/internal/insights"
	"github.com/awaren/awaren-server/internal/jobs"
	"github.com/awaren/awaren-server/internal/llm"
	"github.com/awaren/awaren-server/internal/memory"
	"github.com/awaren/awaren-server/internal/server"
	"github.com/awaren/awaren-server/internal/store"
)

var version = "dev"

const banner = `

  __ ___      ____ _ _ __ ___ _ __
 / _` + "`" + ` \ \ /\ / / _` + "`" + ` | '__/ _ \ '_ \
| (_| |\ V  V / (_| | | |  __/ | | |
 \__,_| \_/\_/ \__,_|_|  \___|_| |_|
                                            `

func main() {
	if len(os.Args) < 2 {
		runServe()
		return
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "init":
		runInit()
	case "health":
		runHealth()
	case "version":
		fmt.Printf("awaren-server %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`awaren-server - memory-augmented chat server

Usage:
  awaren-server [command]

Commands:
  serve    Start the server (default)
  init     Create a starter configuration file
  health   Check whether a running server is healthy
  version  Print the version

Environment:
  AWAREN_CONFIG  Path to the configuration file`)
}

// getConfigPath returns the config file location: AWAREN_CONFIG if set,
// otherwise the XDG config directory.
func getConfigPath() string {
	if path := os.Getenv("AWAREN_CONFIG"); path != "" {
		return path
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "awaren", "server.yaml")
}

// getDataPath returns the default data directory for the database and
// memory store, following XDG conventions.
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "awaren")
}

func runServe() {
	color.Cyan(banner)
	color.White("awaren-server %s", version)
	fmt.Println()

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", configPath, err)
		fmt.Fprintf(os.Stderr, "Run 'awaren-server init' to create one.\n")
		os.Exit(1)
	}

	logger, closeLogs, err := setupLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLogs()
	slog.SetDefault(logger)

	logger.Info("starting awaren-server",
		"version", version,
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	memories, err := memory.NewChromemStore(memory.ChromemConfig{
		Path:              cfg.Memory.Path,
		Namespace:         cfg.Memory.Namespace,
		EmbeddingProvider: cfg.Memory.EmbeddingProvider,
		EmbeddingModel:    cfg.Memory.EmbeddingModel,
		APIKey:            cfg.LLM.APIKey,
		ServerURL:         cfg.LLM.ServerURL,
	})
	if err != nil {
		logger.Error("failed to open memory store", "error", err)
		os.Exit(1)
	}

	provider, err := llm.New(cfg.LLM)
	if err != nil {
		logger.Error("failed to create model provider", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}

	insightCache, err := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer insightCache.Close()

	scheduler := jobs.NewScheduler(logger, jobs.DefaultTimeout)

	// Background jobs open their own store handles; WAL allows concurrent
	// connections to the same database file.
	opener := func() (store.Store, error) {
		return store.NewSQLiteStore(cfg.Database.Path)
	}

	resolver := chat.NewResolver(st, logger)
	assembler := chat.NewAssembler(st, memories, cfg.Chat.HistoryLimit, cfg.Memory.SearchLimit, logger)
	persister := chat.NewPersister(opener, memories, provider, logger)
	chatSvc := chat.NewService(resolver, assembler, provider, persister, scheduler, cfg.Chat.StreamBuffer, logger)

	insightSvc := insights.NewService(memories, provider, logger)
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	srv := server.New(cfg, st, memories, chatSvc, insightSvc, verifier, insightCache, scheduler, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func setupLogger(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	var primary slog.Handler
	if cfg.Format != "json" {
		primary = &colorHandler{level: config.ParseLevel(cfg.Level)}
	}
	return config.BuildLogger(cfg, primary)
}

func runInit() {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file already exists at %s\n", configPath)
		os.Exit(1)
	}

	fmt.Println("awaren-server setup")
	fmt.Println()

	httpAddr := prompt("HTTP listen address", ":8000")
	llmProvider := prompt("LLM provider (openai/anthropic/ollama)", "anthropic")

	defaultModel := "claude-sonnet-4-20250514"
	switch llmProvider {
	case "openai":
		defaultModel = "gpt-4o-mini"
	case "ollama":
		defaultModel = "llama3.1"
	}
	llmModel := prompt("Model", defaultModel)

	embeddingProvider := prompt("Embedding provider (openai/ollama)", "openai")
	embeddingModel := "text-embedding-3-small"
	if embeddingProvider == "ollama" {
		embeddingModel = "nomic-embed-text"
	}

	dataPath := getDataPath()

	cfgYAML := fmt.Sprintf(`server:
  http_addr: "%s"

database:
  path: "%s"

auth:
  jwt_secret: "${AWAREN_JWT_SECRET}"
  token_ttl: "168h"

llm:
  provider: "%s"
  model: "%s"
  api_key: "${AWAREN_API_KEY}"
  temperature: 0.4

memory:
  path: "%s"
  namespace: "awaren"
  embedding_provider: "%s"
  embedding_model: "%s"
  search_limit: 5

chat:
  history_limit: 10
  stream_buffer: 64

cache:
  ttl: "1h"
  max_entries: 10000

logging:
  level: "info"
  format: "text"
`,
		httpAddr,
		filepath.Join(dataPath, "awaren.db"),
		llmProvider,
		llmModel,
		filepath.Join(dataPath, "memories"),
		embeddingProvider,
		embeddingModel,
	)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create config directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(configPath, []byte(cfgYAML), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	color.Green("Config written to %s", configPath)
	fmt.Println()
	fmt.Println("Set these environment variables before starting:")
	fmt.Println("  AWAREN_JWT_SECRET  Secret for signing access tokens")
	fmt.Println("  AWAREN_API_KEY     API key for the model provider")
	fmt.Println()
	fmt.Println("Then run: awaren-server serve")
}

func runHealth() {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		color.Red("Server unreachable: %v", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		color.Red("Unhealthy: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		os.Exit(1)
	}

	color.Green("Healthy: %s", strings.TrimSpace(string(body)))
}

func prompt(label, defaultValue string) string {
	fmt.Printf("%s [%s]: ", label, defaultValue)
	var input string
	fmt.Scanln(&input)
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}
