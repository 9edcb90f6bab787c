package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds optional Axiom log forwarding configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// OpenRouterConfig holds the remote backend credential and throttling knobs.
// The API key is required only when the remote backend is selected.
type OpenRouterConfig struct {
	APIKey        string
	BaseURL       string
	RequestDelay  time.Duration
	MaxRetries    int
	BackoffFactor float64
	MaxTokens     int
}

// OllamaConfig holds the local backend connectivity.
type OllamaConfig struct {
	Host string
}

// RenderConfig holds rasterization settings.
type RenderConfig struct {
	DPI int
}

// MetricsConfig enables the optional Prometheus endpoint for long jobs.
type MetricsConfig struct {
	Addr string // empty disables the endpoint
}

// Config is the top-level configuration.
type Config struct {
	Logging    LoggingConfig
	Axiom      AxiomConfig
	OpenRouter OpenRouterConfig
	Ollama     OllamaConfig
	Render     RenderConfig
	Metrics    MetricsConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdf2md",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.OpenRouter = OpenRouterConfig{
		APIKey:        getEnv("OPENROUTER_API_KEY", ""),
		BaseURL:       getEnv("OPENROUTER_BASE_URL", ""),
		RequestDelay:  parseDuration(getEnv("OPENROUTER_REQUEST_DELAY", "1s"), time.Second),
		MaxRetries:    parseInt(getEnv("OPENROUTER_MAX_RETRIES", "3"), 3),
		BackoffFactor: parseFloat(getEnv("OPENROUTER_BACKOFF_FACTOR", "2.0"), 2.0),
		MaxTokens:     parseInt(getEnv("OPENROUTER_MAX_TOKENS", "4000"), 4000),
	}

	cfg.Ollama = OllamaConfig{
		Host: getEnv("OLLAMA_HOST", "http://localhost:11434"),
	}

	cfg.Render = RenderConfig{
		DPI: parseInt(getEnv("RENDER_DPI", "300"), 300),
	}

	cfg.Metrics = MetricsConfig{
		Addr: getEnv("METRICS_ADDR", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
