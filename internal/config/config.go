package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Auth
	FolioAPIKey string

	// Generation
	GeneratorProvider string // anthropic, openai or mock
	AnthropicAPIKey   string
	AnthropicModel    string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string

	// Retry policy for generation calls
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// Layout
	WordsPerPage     int
	ContextFragments int

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Session state
	SessionTTL   time.Duration
	DatabasePath string

	// Manuscript import
	MaxUploadBytes       int64
	PDFFallbackPdftotext bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8090"),

		FolioAPIKey: os.Getenv("FOLIO_API_KEY"),

		GeneratorProvider: envOr("GENERATOR_PROVIDER", "anthropic"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:    envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       envOr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),

		RetryMaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 4),
		RetryBaseDelay:   envDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:    envDuration("RETRY_MAX_DELAY", 30*time.Second),

		WordsPerPage:     envInt("WORDS_PER_PAGE", 130),
		ContextFragments: envInt("CONTEXT_FRAGMENTS", 6),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 64),

		SessionTTL:   envDuration("SESSION_TTL", 6*time.Hour),
		DatabasePath: envOr("DATABASE_PATH", "data/folio.db"),

		MaxUploadBytes:       envInt64("MAX_UPLOAD_BYTES", 10<<20), // 10MB
		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 4
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	if cfg.WordsPerPage <= 50 {
		cfg.WordsPerPage = 130
	}
	if cfg.ContextFragments <= 0 {
		cfg.ContextFragments = 6
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 64
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 6 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	return cfg
}

func (c Config) Validate() error {
	if c.FolioAPIKey == "" {
		return fmt.Errorf("FOLIO_API_KEY is required")
	}
	switch c.GeneratorProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	case "mock":
	default:
		return fmt.Errorf("GENERATOR_PROVIDER must be anthropic, openai or mock, got %q", c.GeneratorProvider)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
