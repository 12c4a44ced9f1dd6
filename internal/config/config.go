// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	AdminToken     string
	GRPCHealthPort string

	AI              AIConfig
	Chat            ChatConfig
	Search          SearchConfig
	RateLimit       RateLimitConfig
	Log             LogConfig
	ConversationLog ConversationLogConfig

	UsageMonitorInterval time.Duration
}

// AIConfig configures the hosted text-generation and embedding endpoints.
type AIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	ReplyTimeout   time.Duration
	EmbedTimeout   time.Duration
}

// ChatConfig controls the chat session protocol.
type ChatConfig struct {
	HistoryLimit           int
	QueueSize              int
	SuggestionAfterChat    time.Duration
	SuggestionAfterContext time.Duration
	MessagesPerSecond      float64
	MessageBurst           int
	RESTSessions           int
}

// SearchConfig controls similarity lookups over project descriptions.
type SearchConfig struct {
	Threshold          float64
	Limit              int
	EmbeddingCacheSize int
}

// RateLimitConfig controls per-IP throttling of HTTP chat requests.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LogConfig controls process logging.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	MaxOpenFiles  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "3001"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/portfolio.db"),
		AdminToken:     getEnv("ADMIN_TOKEN", ""),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", ""),
		AI: AIConfig{
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			BaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:          getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
			EmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
			ReplyTimeout:   getEnvDuration("AI_REPLY_TIMEOUT", 10*time.Second),
			EmbedTimeout:   getEnvDuration("AI_EMBED_TIMEOUT", 10*time.Second),
		},
		Chat: ChatConfig{
			HistoryLimit:           getEnvInt("CHAT_HISTORY_LIMIT", 10),
			QueueSize:              getEnvInt("CHAT_QUEUE_SIZE", 16),
			SuggestionAfterChat:    getEnvDuration("CHAT_SUGGESTION_DELAY_AFTER_CHAT", 10*time.Second),
			SuggestionAfterContext: getEnvDuration("CHAT_SUGGESTION_DELAY_AFTER_CONTEXT", 5*time.Second),
			MessagesPerSecond:      getEnvFloat("CHAT_RATE_PER_SECOND", 1),
			MessageBurst:           getEnvInt("CHAT_RATE_BURST", 5),
			RESTSessions:           getEnvInt("REST_CHAT_SESSIONS", 1000),
		},
		Search: SearchConfig{
			Threshold:          getEnvFloat("SIMILARITY_THRESHOLD", 0.7),
			Limit:              getEnvInt("SIMILARITY_LIMIT", 3),
			EmbeddingCacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", 1000),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("HTTP_RATE_PER_SECOND", 5),
			Burst:             getEnvInt("HTTP_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 10),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 3),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
			MaxOpenFiles:  getEnvInt("CONVERSATION_LOG_MAX_OPEN_FILES", 256),
		},
		UsageMonitorInterval: getEnvDuration("USAGE_MONITOR_INTERVAL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.AI.BaseURL == "" {
		return fmt.Errorf("GEMINI_BASE_URL cannot be empty")
	}
	if c.AI.ReplyTimeout <= 0 || c.AI.EmbedTimeout <= 0 {
		return fmt.Errorf("AI timeouts must be > 0")
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be > 0")
	}
	if c.Chat.QueueSize <= 0 {
		return fmt.Errorf("CHAT_QUEUE_SIZE must be > 0")
	}
	if c.Chat.SuggestionAfterChat <= 0 || c.Chat.SuggestionAfterContext <= 0 {
		return fmt.Errorf("suggestion delays must be > 0")
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be within [0, 1]")
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("SIMILARITY_LIMIT must be > 0")
	}
	if c.Search.EmbeddingCacheSize <= 0 {
		return fmt.Errorf("EMBEDDING_CACHE_SIZE must be > 0")
	}
	if c.Chat.RESTSessions <= 0 {
		return fmt.Errorf("REST_CHAT_SESSIONS must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AIEnabled reports whether a hosted model is configured.
func (c *Config) AIEnabled() bool {
	return c.AI.APIKey != ""
}

// AllowedOrigins returns the CORS origins for the current environment.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("5s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
