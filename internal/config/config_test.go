package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env here
	for _, k := range []string{"PORT", "WORDS_PER_PAGE", "WORKER_COUNT", "RETRY_BASE_DELAY", "GENERATOR_PROVIDER", "SESSION_TTL"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.Port != "8090" || cfg.WordsPerPage != 130 || cfg.WorkerCount != 2 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.RetryBaseDelay != time.Second || cfg.RetryMaxDelay != 30*time.Second || cfg.RetryMaxAttempts != 4 {
		t.Errorf("retry defaults = %v %v %d", cfg.RetryBaseDelay, cfg.RetryMaxDelay, cfg.RetryMaxAttempts)
	}
	if cfg.GeneratorProvider != "anthropic" || cfg.SessionTTL != 6*time.Hour {
		t.Errorf("provider/ttl = %q %v", cfg.GeneratorProvider, cfg.SessionTTL)
	}
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WORDS_PER_PAGE", "200")
	t.Setenv("WORKER_COUNT", "-1")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("RETRY_MAX_DELAY", "100ms")
	t.Setenv("PDF_FALLBACK_PDFTOTEXT", "false")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")

	cfg := Load()
	if cfg.WordsPerPage != 200 {
		t.Errorf("WordsPerPage = %d", cfg.WordsPerPage)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("negative worker count should fall back, got %d", cfg.WorkerCount)
	}
	if cfg.RetryBaseDelay != 250*time.Millisecond || cfg.RetryMaxDelay != 250*time.Millisecond {
		t.Errorf("retry delays = %v %v", cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	}
	if cfg.PDFFallbackPdftotext {
		t.Error("PDF fallback should be disabled")
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
}

func TestValidate(t *testing.T) {
	base := Config{FolioAPIKey: "k", DatabasePath: "x.db"}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"mock ok", func(c *Config) { c.GeneratorProvider = "mock" }, false},
		{"anthropic missing key", func(c *Config) { c.GeneratorProvider = "anthropic" }, true},
		{"anthropic ok", func(c *Config) { c.GeneratorProvider = "anthropic"; c.AnthropicAPIKey = "a" }, false},
		{"openai missing key", func(c *Config) { c.GeneratorProvider = "openai"; c.AnthropicAPIKey = "a" }, true},
		{"openai ok", func(c *Config) { c.GeneratorProvider = "openai"; c.OpenAIAPIKey = "o" }, false},
		{"unknown provider", func(c *Config) { c.GeneratorProvider = "llama" }, true},
		{"no api key", func(c *Config) { c.GeneratorProvider = "mock"; c.FolioAPIKey = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
