// ABOUTME: Configuration loading and parsing for awaren-server
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete awaren-server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	Memory   MemoryConfig   `yaml:"memory"`
	Chat     ChatConfig     `yaml:"chat"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds SQLite database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-"`

	TokenTTLRaw string `yaml:"token_ttl"`
}

// LLMConfig holds model provider configuration
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "openai", "anthropic", "ollama"
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	ServerURL   string  `yaml:"server_url"` // ollama only
	Temperature float64 `yaml:"temperature"`
}

// MemoryConfig holds long-term memory store configuration
type MemoryConfig struct {
	Path              string `yaml:"path"`      // empty = in-memory only
	Namespace         string `yaml:"namespace"` // application namespace for scoping
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
	SearchLimit       int    `yaml:"search_limit"`
}

// ChatConfig holds chat orchestration tuning
type ChatConfig struct {
	HistoryLimit int `yaml:"history_limit"` // recent messages fed to the model
	StreamBuffer int `yaml:"stream_buffer"` // token queue depth between producer and consumer
}

// CacheConfig holds the read-through cache configuration
type CacheConfig struct {
	TTL        time.Duration `yaml:"-"`
	MaxEntries int64         `yaml:"max_entries"`

	TTLRaw string `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // optional JSON log file, fanned out alongside stdout
}

// Defaults applied when the config file leaves a value unset.
const (
	DefaultHistoryLimit = 10
	DefaultSearchLimit  = 5
	DefaultStreamBuffer = 64
	DefaultNamespace    = "awaren"
	DefaultCacheTTL     = time.Hour
	DefaultTokenTTL     = 7 * 24 * time.Hour
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Chat.HistoryLimit <= 0 {
		c.Chat.HistoryLimit = DefaultHistoryLimit
	}
	if c.Chat.StreamBuffer <= 0 {
		c.Chat.StreamBuffer = DefaultStreamBuffer
	}
	if c.Memory.SearchLimit <= 0 {
		c.Memory.SearchLimit = DefaultSearchLimit
	}
	if c.Memory.Namespace == "" {
		c.Memory.Namespace = DefaultNamespace
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 10_000
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.4
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Cache.TTLRaw != "" {
		cfg.Cache.TTL, err = time.ParseDuration(cfg.Cache.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache.ttl %q: %w", cfg.Cache.TTLRaw, err)
		}
	}

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing auth.token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	return nil
}
